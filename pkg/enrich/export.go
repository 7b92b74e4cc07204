package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/enrich-export/pkg/pagination"
	"github.com/Sternrassler/enrich-export/pkg/tsv"
)

// DefaultMaxTotal is the row ceiling of uncounted walks when the caller does
// not pick one.
const DefaultMaxTotal = 100000

// Options tunes one export.
type Options struct {
	// PageSize is the number of nodes requested per upstream page.
	PageSize int
	// MaxTotal caps the offset of uncounted walks. Counted modes stop at the
	// server-reported total instead.
	MaxTotal int
	// Columns selects the output columns. Empty means the mode's declared
	// columns.
	Columns []string
	// Logger receives driver events. Defaults to the global logger.
	Logger *zerolog.Logger
}

// rowSource is the pull side of a driver.
type rowSource interface {
	Next(ctx context.Context) (tsv.Record, error)
	Fetches() int
}

// Export is a ready-to-stream walk over one mode's result set.
type Export struct {
	Mode    Mode
	Columns []string

	src       rowSource
	transform tsv.Transform[tsv.Record]

	// first row pulled by Prime, served by the next Next
	held    bool
	heldRow tsv.Record
	heldErr error
}

// NewExport validates filter and columns and wires the mode's fetcher,
// projector and stop policy. No upstream request is made until the first
// pull.
func NewExport(q Querier, mode Mode, filter Filter, opts Options) (*Export, error) {
	if err := filter.Validate(mode.Paired); err != nil {
		return nil, err
	}
	columns, err := mode.SelectColumns(opts.Columns)
	if err != nil {
		return nil, err
	}

	cfg := pagination.DefaultConfig(mode.String())
	if opts.PageSize > 0 {
		cfg.PageSize = opts.PageSize
	}
	cfg.Logger = opts.Logger

	var policy pagination.Policy = pagination.Counted{}
	if !mode.Counted() {
		maxTotal := opts.MaxTotal
		if maxTotal < 0 {
			maxTotal = 0
		}
		policy = pagination.ShortPage{MaxTotal: maxTotal}
	}

	e := &Export{Mode: mode, Columns: columns, transform: keepTerm}

	switch {
	case mode.Kind == KindSingle && !mode.Paired:
		e.src = pagination.NewDriver(NewSingleFetcher(q, filter), ProjectSingle, policy, cfg)
	case mode.Kind == KindSingle:
		e.src = pagination.NewDriver(NewPairedSingleFetcher(q, filter), ProjectPaired, policy, cfg)
	default:
		e.transform = keepDrug
		e.src = pagination.NewDriver(aggregateFetcher(q, mode, filter), ProjectAggregate, policy, cfg)
	}
	return e, nil
}

func aggregateFetcher(q Querier, mode Mode, filter Filter) pagination.PageFetcher[*AggregateNode] {
	switch {
	case mode.Kind == KindConsensus && mode.Paired:
		return NewPairedConsensusFetcher(q, filter)
	case mode.Kind == KindConsensus:
		return NewConsensusFetcher(q, filter)
	case mode.Paired:
		return NewPairedMoAFetcher(q, filter)
	default:
		return NewMoAFetcher(q, filter)
	}
}

// Prime pulls the first row ahead of streaming, so a failing first page can
// be reported before any output is committed. It is a no-op after the first
// pull.
func (e *Export) Prime(ctx context.Context) error {
	if e.held || e.src.Fetches() > 0 {
		return nil
	}
	row, err := e.src.Next(ctx)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	e.held, e.heldRow, e.heldErr = true, row, err
	return nil
}

// Next returns the next projected row or io.EOF.
func (e *Export) Next(ctx context.Context) (tsv.Record, error) {
	if e.held {
		e.held = false
		return e.heldRow, e.heldErr
	}
	return e.src.Next(ctx)
}

// Fetches returns the number of upstream pages requested so far.
func (e *Export) Fetches() int {
	return e.src.Fetches()
}

// Stream returns the TSV serialization of the export.
func (e *Export) Stream(ctx context.Context, opts ...tsv.Option) *tsv.Stream[tsv.Record] {
	opts = append([]tsv.Option{tsv.WithName(e.Mode.String())}, opts...)
	return tsv.NewColumnStream[tsv.Record](ctx, e.Columns, e, e.transform, opts...)
}

// Rows without a term or drug carry nothing to identify them by and are
// skipped.
func keepTerm(r tsv.Record) (tsv.Record, bool) {
	return r, nonEmpty(r["term"])
}

func keepDrug(r tsv.Record) (tsv.Record, bool) {
	return r, nonEmpty(r["drug"])
}

func nonEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	default:
		return fmt.Sprint(x) != ""
	}
}
