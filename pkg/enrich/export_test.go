package enrich

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/Sternrassler/enrich-export/internal/testutil"
	"github.com/Sternrassler/enrich-export/pkg/client"
	"github.com/Sternrassler/enrich-export/pkg/tsv"
)

func newTestClient(t *testing.T, mock *testutil.MockUpstream) *client.Client {
	t.Helper()
	c, err := client.New(client.DefaultConfig(mock.URL()))
	if err != nil {
		t.Fatalf("client.New() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func exportLines(t *testing.T, e *Export, opts ...tsv.Option) ([]string, tsv.Stats, error) {
	t.Helper()
	stream := e.Stream(context.Background(), opts...)
	var buf bytes.Buffer
	_, err := stream.WriteTo(&buf)
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if buf.Len() == 0 {
		lines = nil
	}
	return lines, stream.Stats(), err
}

var genes = Filter{Genes: []string{"STAT1", "TP53"}}

func TestExport_SinglePagesUntilShortPage(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetHandler(OpSingle, testutil.NodesHandler(false, 1200, testutil.SingleNode))

	e, err := NewExport(newTestClient(t, mock), Mode{Kind: KindSingle}, genes, Options{PageSize: 500, MaxTotal: DefaultMaxTotal})
	if err != nil {
		t.Fatalf("NewExport() error: %v", err)
	}

	lines, stats, err := exportLines(t, e)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if got := mock.RequestCount(OpSingle); got != 3 {
		t.Errorf("upstream fetches = %d, want 3", got)
	}
	if e.Fetches() != 3 {
		t.Errorf("Fetches() = %d, want 3", e.Fetches())
	}
	if len(lines) != 1201 {
		t.Errorf("lines = %d, want 1201", len(lines))
	}
	if lines[0] != strings.Join(singleColumns, "\t") {
		t.Errorf("header = %q", lines[0])
	}
	if stats.Rows != 1200 || stats.Skipped != 0 || !stats.Complete {
		t.Errorf("stats = %+v", stats)
	}

	for i, req := range mock.Requests(OpSingle) {
		if got := req.Int("offset", -1); got != i*500 {
			t.Errorf("request %d offset = %d, want %d", i, got, i*500)
		}
		if got := req.Int("first", -1); got != 500 {
			t.Errorf("request %d first = %d, want 500", i, got)
		}
		if got := req.Strings("genes"); len(got) != 2 {
			t.Errorf("request %d genes = %v", i, got)
		}
	}
}

func TestExport_ConsensusEmptyTotal(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetHandler(OpConsensus, testutil.CountedHandler(false, "consensus", "consensusCount", 0, 0))

	e, err := NewExport(newTestClient(t, mock), Mode{Kind: KindConsensus}, genes, Options{PageSize: 500})
	if err != nil {
		t.Fatalf("NewExport() error: %v", err)
	}

	lines, _, err := exportLines(t, e)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if got := mock.RequestCount(OpConsensus); got != 1 {
		t.Errorf("upstream fetches = %d, want 1", got)
	}
	if len(lines) != 1 || lines[0] != strings.Join(aggregateColumns, "\t") {
		t.Errorf("want header only, got %q", lines)
	}
}

func TestExport_CountedStopsAtReportedTotal(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	// the server has 30 nodes but reports 25
	mock.SetHandler(OpPairedMoAs, testutil.CountedHandler(true, "moas", "moasCount", 30, 25))

	mode := Mode{Kind: KindMoA, Paired: true}
	filter := Filter{GenesUp: []string{"STAT1"}, GenesDown: []string{"TP53"}}
	e, err := NewExport(newTestClient(t, mock), mode, filter, Options{PageSize: 10})
	if err != nil {
		t.Fatalf("NewExport() error: %v", err)
	}

	lines, stats, err := exportLines(t, e)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if got := mock.RequestCount(OpPairedMoAs); got != 3 {
		t.Errorf("upstream fetches = %d, want 3", got)
	}
	if stats.Rows != 25 || len(lines) != 26 {
		t.Errorf("rows = %d, lines = %d; want 25 and 26", stats.Rows, len(lines))
	}
	if lines[0] != strings.Join(pairedAggregateColumns, "\t") {
		t.Errorf("header = %q", lines[0])
	}

	req := mock.Requests(OpPairedMoAs)[0]
	if got := req.Strings("genesUp"); len(got) != 1 || got[0] != "STAT1" {
		t.Errorf("genesUp = %v", got)
	}
	if got := req.Strings("genesDown"); len(got) != 1 || got[0] != "TP53" {
		t.Errorf("genesDown = %v", got)
	}
}

func TestExport_MaxTotalBelowPageSize(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetHandler(OpSingle, testutil.NodesHandler(false, 1200, testutil.SingleNode))

	e, err := NewExport(newTestClient(t, mock), Mode{Kind: KindSingle}, genes, Options{PageSize: 500, MaxTotal: 0})
	if err != nil {
		t.Fatalf("NewExport() error: %v", err)
	}

	lines, stats, err := exportLines(t, e)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if got := mock.RequestCount(""); got != 0 {
		t.Errorf("upstream fetches = %d, want 0", got)
	}
	if len(lines) != 1 || !stats.Complete {
		t.Errorf("want complete header-only stream, got %d lines, stats %+v", len(lines), stats)
	}
}

func TestExport_PairedSingleColumns(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetHandler(OpPairedSingle, testutil.NodesHandler(true, 3, testutil.PairedNode))

	mode := Mode{Kind: KindSingle, Paired: true}
	filter := Filter{GenesUp: []string{"STAT1"}, GenesDown: []string{"TP53"}}
	e, err := NewExport(newTestClient(t, mock), mode, filter, Options{
		PageSize: 10,
		MaxTotal: DefaultMaxTotal,
		Columns:  []string{"term", "cellLine", "geneSetSizeUp", "geneSetSizeDown"},
	})
	if err != nil {
		t.Fatalf("NewExport() error: %v", err)
	}

	lines, _, err := exportLines(t, e, tsv.WithTrailer())
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}

	want := []string{
		"term\tcellLine\tgeneSetSizeUp\tgeneSetSizeDown",
		"CPC000_A375_6H_X2_DRUG0_10UM\tA375\t200\t180",
		"CPC001_A375_6H_X2_DRUG1_10UM\tA375\t200\t180",
		"CPC002_A375_6H_X2_DRUG2_10UM\tA375\t200\t180",
		"#export\tstatus=complete\trows=3\tskipped=0",
	}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Errorf("output mismatch:\ngot:\n%s\nwant:\n%s", strings.Join(lines, "\n"), strings.Join(want, "\n"))
	}
}

func TestExport_SkipsRowsWithoutDrug(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetHandler(OpConsensus, func(req testutil.Request) testutil.MockResponse {
		return testutil.NewDataResponse(testutil.Background(false, map[string]any{
			"consensus": []any{
				map[string]any{"drug": "VORINOSTAT", "countSignificant": 3},
				map[string]any{"drug": "", "countSignificant": 2},
				map[string]any{"countSignificant": 1},
				map[string]any{"drug": "TRICHOSTATIN", "countSignificant": 1},
			},
			"consensusCount": 4,
		}))
	})

	e, err := NewExport(newTestClient(t, mock), Mode{Kind: KindConsensus}, genes, Options{
		PageSize: 10,
		Columns:  []string{"drug", "countSig"},
	})
	if err != nil {
		t.Fatalf("NewExport() error: %v", err)
	}

	lines, stats, err := exportLines(t, e, tsv.WithTrailer())
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	want := []string{
		"drug\tcountSig",
		"VORINOSTAT\t3",
		"TRICHOSTATIN\t1",
		"#export\tstatus=complete\trows=2\tskipped=2",
	}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Errorf("output mismatch:\ngot:\n%s\nwant:\n%s", strings.Join(lines, "\n"), strings.Join(want, "\n"))
	}
	if stats.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", stats.Skipped)
	}
}

func TestExport_UpstreamErrorEndsStream(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	nodes := testutil.NodesHandler(false, 1200, testutil.SingleNode)
	mock.SetHandler(OpSingle, func(req testutil.Request) testutil.MockResponse {
		if req.Int("offset", 0) >= 500 {
			return testutil.NewServerErrorResponse()
		}
		return nodes(req)
	})

	e, err := NewExport(newTestClient(t, mock), Mode{Kind: KindSingle}, genes, Options{PageSize: 500, MaxTotal: DefaultMaxTotal})
	if err != nil {
		t.Fatalf("NewExport() error: %v", err)
	}

	lines, stats, err := exportLines(t, e, tsv.WithTrailer())
	if err == nil {
		t.Fatal("expected stream error")
	}
	var qerr *client.QueryError
	if !errors.As(err, &qerr) || qerr.Class != client.ErrorClassServer {
		t.Errorf("error = %v, want server QueryError", err)
	}
	if len(lines) != 501 {
		t.Errorf("lines = %d, want 501", len(lines))
	}
	if stats.Complete {
		t.Error("stream must not be complete")
	}
	for _, l := range lines {
		if strings.HasPrefix(l, tsv.TrailerPrefix) {
			t.Error("failed stream must not carry a trailer")
		}
	}

	// a failed export keeps failing without new requests
	before := mock.RequestCount(OpSingle)
	if _, err := e.Next(context.Background()); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("Next() after failure = %v", err)
	}
	if mock.RequestCount(OpSingle) != before {
		t.Error("Next() after failure issued another request")
	}
}

func TestNewExport_Rejects(t *testing.T) {
	q := &fakeQuerier{respond: func(client.Request) (string, error) { return "", nil }}

	tests := []struct {
		name    string
		mode    Mode
		filter  Filter
		opts    Options
		wantErr error
	}{
		{name: "no genes", mode: Mode{Kind: KindSingle}, filter: Filter{}, wantErr: ErrNoGenes},
		{name: "paired without down set", mode: Mode{Kind: KindMoA, Paired: true}, filter: Filter{GenesUp: []string{"A"}}, wantErr: ErrNoGenes},
		{name: "unknown column", mode: Mode{Kind: KindConsensus}, filter: genes, opts: Options{Columns: []string{"drug", "nope"}}, wantErr: ErrUnknownColumn},
		{name: "column of another mode", mode: Mode{Kind: KindSingle}, filter: genes, opts: Options{Columns: []string{"drug"}}, wantErr: ErrUnknownColumn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExport(q, tt.mode, tt.filter, tt.opts)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewExport() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if q.calls() != 0 {
		t.Errorf("rejected exports issued %d requests", q.calls())
	}
}

func TestExport_AllModes(t *testing.T) {
	q := &fakeQuerier{respond: func(req client.Request) (string, error) { return "", nil }}
	filter := Filter{Genes: []string{"A"}, GenesUp: []string{"A"}, GenesDown: []string{"B"}}

	for _, mode := range Modes {
		t.Run(mode.String(), func(t *testing.T) {
			e, err := NewExport(q, mode, filter, Options{PageSize: 10, MaxTotal: DefaultMaxTotal})
			if err != nil {
				t.Fatalf("NewExport() error: %v", err)
			}
			lines, stats, err := exportLines(t, e)
			if err != nil {
				t.Fatalf("stream error: %v", err)
			}
			if len(lines) != 1 || !stats.Complete {
				t.Errorf("got %d lines, stats %+v; want header only", len(lines), stats)
			}
			if e.Fetches() != 1 {
				t.Errorf("Fetches() = %d, want 1", e.Fetches())
			}
			if got := fmt.Sprint(e.Columns); got != fmt.Sprint(mode.Columns()) {
				t.Errorf("columns = %v", got)
			}
		})
	}
}

func TestExport_Prime(t *testing.T) {
	t.Run("first page failure", func(t *testing.T) {
		mock := testutil.NewMockUpstream()
		defer mock.Close()
		mock.SetResponse(OpConsensus, testutil.NewGraphQLErrorResponse("background not loaded"))

		e, err := NewExport(newTestClient(t, mock), Mode{Kind: KindConsensus}, genes, Options{PageSize: 10})
		if err != nil {
			t.Fatalf("NewExport() error: %v", err)
		}
		err = e.Prime(context.Background())
		if client.ClassOf(err) != client.ErrorClassGraphQL {
			t.Fatalf("Prime() error = %v, want graphql QueryError", err)
		}
		if _, err := e.Next(context.Background()); client.ClassOf(err) != client.ErrorClassGraphQL {
			t.Errorf("Next() after failed Prime = %v", err)
		}
		if mock.RequestCount(OpConsensus) != 1 {
			t.Errorf("requests = %d, want 1", mock.RequestCount(OpConsensus))
		}
	})

	t.Run("primed stream is unchanged", func(t *testing.T) {
		mock := testutil.NewMockUpstream()
		defer mock.Close()
		mock.SetHandler(OpConsensus, testutil.CountedHandler(false, "consensus", "consensusCount", 15, 15))

		e, err := NewExport(newTestClient(t, mock), Mode{Kind: KindConsensus}, genes, Options{PageSize: 10, Columns: []string{"drug"}})
		if err != nil {
			t.Fatalf("NewExport() error: %v", err)
		}
		if err := e.Prime(context.Background()); err != nil {
			t.Fatalf("Prime() error: %v", err)
		}
		if err := e.Prime(context.Background()); err != nil {
			t.Fatalf("second Prime() error: %v", err)
		}

		lines, stats, err := exportLines(t, e)
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		if len(lines) != 16 || lines[1] != "DRUG0" || lines[15] != "DRUG14" {
			t.Errorf("lines = %q", lines)
		}
		if stats.Rows != 15 || mock.RequestCount(OpConsensus) != 2 {
			t.Errorf("rows = %d, requests = %d", stats.Rows, mock.RequestCount(OpConsensus))
		}
	})

	t.Run("empty result", func(t *testing.T) {
		q := &fakeQuerier{respond: func(client.Request) (string, error) { return "", nil }}
		e, err := NewExport(q, Mode{Kind: KindMoA}, genes, Options{})
		if err != nil {
			t.Fatalf("NewExport() error: %v", err)
		}
		if err := e.Prime(context.Background()); err != nil {
			t.Fatalf("Prime() error: %v", err)
		}
		if _, err := e.Next(context.Background()); !errors.Is(err, io.EOF) {
			t.Errorf("Next() = %v, want io.EOF", err)
		}
	})
}
