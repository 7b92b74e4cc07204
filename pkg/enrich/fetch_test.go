package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Sternrassler/enrich-export/pkg/client"
	"github.com/Sternrassler/enrich-export/pkg/pagination"
)

func TestFilter_Validate(t *testing.T) {
	tests := []struct {
		name    string
		filter  Filter
		paired  bool
		wantErr bool
	}{
		{name: "genes", filter: Filter{Genes: []string{"STAT1"}}},
		{name: "no genes", filter: Filter{}, wantErr: true},
		{name: "paired", filter: Filter{GenesUp: []string{"STAT1"}, GenesDown: []string{"TP53"}}, paired: true},
		{name: "paired missing down", filter: Filter{GenesUp: []string{"STAT1"}}, paired: true, wantErr: true},
		{name: "paired ignores genes", filter: Filter{Genes: []string{"STAT1"}}, paired: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate(tt.paired)
			if tt.wantErr {
				if !errors.Is(err, ErrNoGenes) {
					t.Errorf("Validate() = %v, want ErrNoGenes", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestFilterTerm(t *testing.T) {
	tests := []struct {
		q, dir string
		want   string
	}{
		{"", "", ""},
		{"MCF7", "", "MCF7"},
		{"", "up", "up"},
		{"MCF7", "down", "MCF7 down"},
		{" A549 ", " up ", "A549 up"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FilterTerm(tt.q, tt.dir); got != tt.want {
				t.Errorf("FilterTerm(%q, %q) = %q, want %q", tt.q, tt.dir, got, tt.want)
			}
		})
	}
}

func TestFilter_Variables(t *testing.T) {
	f := Filter{Genes: []string{"STAT1", "TP53"}, Term: "MCF7", FDA: true}
	got := f.variables(false, pagination.Cursor{Offset: 500, PageSize: 500})

	want := map[string]any{
		"genes":      []string{"STAT1", "TP53"},
		"filterTerm": "MCF7",
		"filterFda":  true,
		"filterKo":   false,
		"sort":       DefaultSort,
		"topN":       DefaultTopN,
		"offset":     500,
		"first":      500,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("variables() mismatch (-want +got):\n%s", diff)
	}

	paired := Filter{GenesUp: []string{"STAT1"}, TopN: 50, Sort: "pvalue_mimic"}.
		variables(true, pagination.Cursor{PageSize: 10})
	if diff := cmp.Diff([]string{"STAT1"}, paired["genesUp"]); diff != "" {
		t.Errorf("genesUp mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{}, paired["genesDown"]); diff != "" {
		t.Errorf("genesDown must be an empty list (-want +got):\n%s", diff)
	}
	if _, ok := paired["genes"]; ok {
		t.Error("paired variables must not carry genes")
	}
	if paired["topN"] != 50 || paired["sort"] != "pvalue_mimic" {
		t.Errorf("topN/sort = %v/%v", paired["topN"], paired["sort"])
	}
}

func TestFetchers(t *testing.T) {
	total := 42
	q := &fakeQuerier{respond: func(req client.Request) (string, error) {
		switch req.Operation {
		case OpSingle:
			return `{"nodes": [{"geneSetHash": "a"}, {"geneSetHash": "b"}], "totalCount": 99}`, nil
		case OpConsensus, OpPairedConsensus:
			return `{"consensus": [{"drug": "X"}], "consensusCount": 42}`, nil
		case OpMoAs, OpPairedMoAs:
			return `{"moas": [{"drug": "HDAC inhibitor"}], "moasCount": 42}`, nil
		default:
			return "", nil
		}
	}}
	f := Filter{Genes: []string{"STAT1"}, GenesUp: []string{"STAT1"}, GenesDown: []string{"TP53"}}
	c := pagination.Cursor{PageSize: 10}
	ctx := context.Background()

	single, err := NewSingleFetcher(q, f).FetchPage(ctx, c)
	if err != nil {
		t.Fatalf("single: %v", err)
	}
	if len(single.Nodes) != 2 || single.TotalCount != nil {
		t.Errorf("single page = %d nodes, total %v; want 2 nodes and no total", len(single.Nodes), single.TotalCount)
	}

	aggregates := map[string]pagination.PageFetcher[*AggregateNode]{
		OpConsensus:       NewConsensusFetcher(q, f),
		OpPairedConsensus: NewPairedConsensusFetcher(q, f),
		OpMoAs:            NewMoAFetcher(q, f),
		OpPairedMoAs:      NewPairedMoAFetcher(q, f),
	}
	for op, fetcher := range aggregates {
		t.Run(op, func(t *testing.T) {
			page, err := fetcher.FetchPage(ctx, c)
			if err != nil {
				t.Fatalf("FetchPage() error: %v", err)
			}
			if len(page.Nodes) != 1 {
				t.Errorf("nodes = %d, want 1", len(page.Nodes))
			}
			if page.TotalCount == nil || *page.TotalCount != total {
				t.Errorf("total = %v, want %d", page.TotalCount, total)
			}
		})
	}

	// unknown data leaves an empty page, which ends any walk
	paired, err := NewPairedSingleFetcher(q, f).FetchPage(ctx, c)
	if err != nil {
		t.Fatalf("paired: %v", err)
	}
	if len(paired.Nodes) != 0 {
		t.Errorf("paired nodes = %d, want 0", len(paired.Nodes))
	}

	wantPaths := map[string]string{
		OpSingle:          pathEnrich,
		OpConsensus:       pathEnrich,
		OpMoAs:            pathEnrich,
		OpPairedSingle:    pathPairedEnrich,
		OpPairedConsensus: pathPairedEnrich,
		OpPairedMoAs:      pathPairedEnrich,
	}
	for _, req := range q.requests {
		if req.Path != wantPaths[req.Operation] {
			t.Errorf("%s path = %q, want %q", req.Operation, req.Path, wantPaths[req.Operation])
		}
		if req.Query == "" {
			t.Errorf("%s sent an empty query document", req.Operation)
		}
	}
}

func TestFetcher_WrapsErrors(t *testing.T) {
	upstream := &client.QueryError{Operation: OpSingle, Class: client.ErrorClassServer, StatusCode: 502, Message: "bad gateway"}
	q := &fakeQuerier{respond: func(client.Request) (string, error) { return "", upstream }}

	_, err := NewSingleFetcher(q, Filter{Genes: []string{"STAT1"}}).FetchPage(context.Background(), pagination.Cursor{PageSize: 10})
	if err == nil {
		t.Fatal("expected error")
	}

	var qerr *client.QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("error %v does not wrap *client.QueryError", err)
	}
	if qerr.StatusCode != 502 {
		t.Errorf("status = %d, want 502", qerr.StatusCode)
	}
	if client.ClassOf(err) != client.ErrorClassServer {
		t.Errorf("class = %q, want %q", client.ClassOf(err), client.ErrorClassServer)
	}
}
