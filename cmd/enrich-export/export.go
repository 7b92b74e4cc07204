package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/enrich-export/internal/config"
	"github.com/Sternrassler/enrich-export/pkg/enrich"
	"github.com/Sternrassler/enrich-export/pkg/logging"
	"github.com/Sternrassler/enrich-export/pkg/tsv"
)

type exportFlags struct {
	mode    string
	paired  bool
	genes   []string
	files   [3]string // genes, up, down
	sets    [3]string // dataset, up, down
	term    string
	dir     string
	fda     bool
	ko      bool
	sort    string
	topN    int // bound to export.default-top-n
	max     int // bound to export.default-max-total
	columns []string
	trailer bool
	out     string
}

func newExportCommand(v *viper.Viper) *cobra.Command {
	f := &exportFlags{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write one export to a file or stdout",
		Long: `Write one export to a file or stdout.

Genes come from --genes, --genes-file or a stored --dataset for unpaired modes,
and from --up-file/--down-file or --dataset-up/--dataset-down with --paired.
Gene files hold one or more symbols per line; blank lines and lines starting
with # are ignored.`,
		Example: `  enrich-export export --genes STAT1,TP53 --mode consensus
  enrich-export export --mode moa --paired --up-file up.txt --down-file down.txt --out moas.tsv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, f)
		},
	}

	defaults := config.DefaultConfig().Export
	flags := cmd.Flags()
	flags.StringVar(&f.mode, "mode", string(enrich.KindSingle), "result shape: single, consensus or moa")
	flags.BoolVar(&f.paired, "paired", false, "export an up/down query")
	flags.StringSliceVar(&f.genes, "genes", nil, "gene symbols of an unpaired query")
	flags.StringVar(&f.files[0], "genes-file", "", "file of gene symbols of an unpaired query (- for stdin)")
	flags.StringVar(&f.files[1], "up-file", "", "file of up-regulated gene symbols")
	flags.StringVar(&f.files[2], "down-file", "", "file of down-regulated gene symbols")
	flags.StringVar(&f.sets[0], "dataset", "", "stored user gene-set id of an unpaired query")
	flags.StringVar(&f.sets[1], "dataset-up", "", "stored user gene-set id of the up set")
	flags.StringVar(&f.sets[2], "dataset-down", "", "stored user gene-set id of the down set")
	flags.StringVar(&f.term, "q", "", "restrict to signatures whose term contains this text")
	flags.StringVar(&f.dir, "dir", "", "restrict to signatures of this direction (up or down)")
	flags.BoolVar(&f.fda, "fda", false, "restrict to FDA-approved perturbations")
	flags.BoolVar(&f.ko, "ko", false, "restrict to CRISPR knockout perturbations")
	flags.StringVar(&f.sort, "sort", enrich.DefaultSort, "upstream ranking key")
	flags.IntVar(&f.topN, "top-n", defaults.DefaultTopN, "number of top signatures aggregated by consensus and moa modes")
	mustBindPFlag(v, "export.default-top-n", flags.Lookup("top-n"))
	flags.IntVar(&f.max, "max-total", defaults.DefaultMaxTotal, "row ceiling of single modes")
	mustBindPFlag(v, "export.default-max-total", flags.Lookup("max-total"))
	flags.StringSliceVar(&f.columns, "columns", nil, "output columns (default: the mode's columns)")
	flags.BoolVar(&f.trailer, "trailer", false, "append an end-of-export summary line")
	flags.StringVarP(&f.out, "out", "o", "-", "output file (- for stdout)")

	cmd.MarkFlagsMutuallyExclusive("genes", "genes-file", "dataset")
	return cmd
}

func runExport(cmd *cobra.Command, f *exportFlags) error {
	cfg := configFrom(cmd)
	kind, err := enrich.ParseKind(f.mode)
	if err != nil {
		return err
	}
	mode := enrich.Mode{Kind: kind, Paired: f.paired}
	logger := logging.NewLogger("enrich-export").With().Str("mode", mode.String()).Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	upstream, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer upstream.Close()

	rdb, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}
	resolver := newResolver(upstream, rdb, cfg)

	filter := enrich.Filter{
		Term: enrich.FilterTerm(f.term, f.dir),
		FDA:  f.fda,
		KO:   f.ko,
		TopN: min(cfg.Export.DefaultTopN, cfg.Export.MaxTopN),
		Sort: f.sort,
	}

	// direct symbols, then a file, then a stored set
	load := func(direct []string, file, dataset string) ([]string, error) {
		switch {
		case len(direct) > 0:
			return normalizeGenes(direct), nil
		case file != "":
			return readGenesFile(cmd.InOrStdin(), file)
		default:
			return resolver.Resolve(ctx, dataset)
		}
	}
	if f.paired {
		if filter.GenesUp, err = load(nil, f.files[1], f.sets[1]); err != nil {
			return err
		}
		if filter.GenesDown, err = load(nil, f.files[2], f.sets[2]); err != nil {
			return err
		}
	} else if filter.Genes, err = load(f.genes, f.files[0], f.sets[0]); err != nil {
		return err
	}

	exp, err := enrich.NewExport(upstream, mode, filter, enrich.Options{
		PageSize: cfg.Export.PageSize,
		MaxTotal: min(cfg.Export.DefaultMaxTotal, cfg.Export.MaxTotalLimit),
		Columns:  f.columns,
		Logger:   &logger,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.out != "-" && f.out != "" {
		file, err := os.Create(f.out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer file.Close()
		out = file
	}
	w := bufio.NewWriter(out)

	opts := []tsv.Option{tsv.WithLogger(logger)}
	if f.trailer {
		opts = append(opts, tsv.WithTrailer())
	}
	stream := exp.Stream(ctx, opts...)
	_, streamErr := stream.WriteTo(w)
	if err := w.Flush(); err != nil && streamErr == nil {
		streamErr = fmt.Errorf("write output: %w", err)
	}

	stats := stream.Stats()
	if streamErr != nil {
		logger.Error().
			Err(streamErr).
			Int("rows", stats.Rows).
			Int("pages", exp.Fetches()).
			Msg("Export aborted")
		return streamErr
	}
	logger.Info().
		Int("rows", stats.Rows).
		Int("skipped", stats.Skipped).
		Int("pages", exp.Fetches()).
		Msg("Export complete")
	return nil
}

// readGenesFile reads gene symbols from path, or from stdin when path is "-".
func readGenesFile(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open gene file: %w", err)
		}
		defer file.Close()
		r = file
	}

	var genes []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		genes = append(genes, strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == '\t' || r == ' '
		})...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read gene file %s: %w", path, err)
	}
	if len(genes) == 0 {
		return nil, errors.Join(enrich.ErrNoGenes, fmt.Errorf("gene file %s is empty", path))
	}
	return normalizeGenes(genes), nil
}

func normalizeGenes(genes []string) []string {
	out := make([]string, 0, len(genes))
	for _, g := range genes {
		if g = strings.ToUpper(strings.TrimSpace(g)); g != "" {
			out = append(out, g)
		}
	}
	return out
}
