package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/enrich-export/pkg/client"
	"github.com/Sternrassler/enrich-export/pkg/pagination"
)

// ErrNoGenes is returned for a filter without resolvable genes.
var ErrNoGenes = errors.New("no genes")

// DefaultSort is the ranking used when the caller does not pick one.
const DefaultSort = "pvalue"

// DefaultTopN is the number of top-ranked signatures aggregated by consensus
// and MoA queries when the caller does not pick one.
const DefaultTopN = 10000

// Querier executes one upstream GraphQL request.
type Querier interface {
	Query(ctx context.Context, req client.Request, out any) error
}

// Filter is the fixed query input of one export.
type Filter struct {
	// Genes is the submitted gene set of unpaired modes.
	Genes []string
	// GenesUp and GenesDown are the submitted sets of paired modes.
	GenesUp   []string
	GenesDown []string

	// Term restricts results to signatures whose term contains it.
	Term string
	// FDA restricts results to FDA-approved perturbations.
	FDA bool
	// KO restricts results to CRISPR knockout perturbations.
	KO bool
	// TopN bounds how many significant signatures feed consensus and MoA
	// aggregation. It is unrelated to the page size.
	TopN int
	// Sort is the upstream ranking key.
	Sort string
}

// FilterTerm joins a free-text query and a direction into the upstream
// filter term: "q dir", or whichever of the two is set.
func FilterTerm(q, dir string) string {
	return strings.TrimSpace(strings.TrimSpace(q) + " " + strings.TrimSpace(dir))
}

// Validate rejects a filter without genes for the given pairing.
func (f Filter) Validate(paired bool) error {
	if paired {
		if len(f.GenesUp) == 0 || len(f.GenesDown) == 0 {
			return fmt.Errorf("%w: at least one gene set is empty", ErrNoGenes)
		}
		return nil
	}
	if len(f.Genes) == 0 {
		return ErrNoGenes
	}
	return nil
}

func (f Filter) variables(paired bool, c pagination.Cursor) map[string]any {
	sort := f.Sort
	if sort == "" {
		sort = DefaultSort
	}
	topN := f.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}

	vars := map[string]any{
		"filterTerm": f.Term,
		"filterFda":  f.FDA,
		"filterKo":   f.KO,
		"sort":       sort,
		"topN":       topN,
		"offset":     c.Offset,
		"first":      c.PageSize,
	}
	if paired {
		vars["genesUp"] = nonNil(f.GenesUp)
		vars["genesDown"] = nonNil(f.GenesDown)
	} else {
		vars["genes"] = nonNil(f.Genes)
	}
	return vars
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// queryFetcher issues one GraphQL query per page and unwraps its envelope.
type queryFetcher[E, N any] struct {
	querier Querier
	filter  Filter
	paired  bool
	op      string
	query   string
	path    string
	unwrap  func(E) ([]N, *int)
}

func (f *queryFetcher[E, N]) FetchPage(ctx context.Context, c pagination.Cursor) (pagination.Page[N], error) {
	var env E
	err := f.querier.Query(ctx, client.Request{
		Operation: f.op,
		Query:     f.query,
		Variables: f.filter.variables(f.paired, c),
		Path:      f.path,
	}, &env)
	if err != nil {
		return pagination.Page[N]{}, fmt.Errorf("%s: %w", f.op, err)
	}
	nodes, total := f.unwrap(env)
	return pagination.Page[N]{Nodes: nodes, TotalCount: total}, nil
}

// NewSingleFetcher pages unpaired per-signature results. The page carries no
// total; the walk relies on the short-page rule.
func NewSingleFetcher(q Querier, f Filter) pagination.PageFetcher[*SingleNode] {
	return &queryFetcher[singleEnvelope, *SingleNode]{
		querier: q, filter: f, op: OpSingle, query: singleQuery, path: pathEnrich,
		unwrap: func(e singleEnvelope) ([]*SingleNode, *int) { return e.Nodes, nil },
	}
}

// NewConsensusFetcher pages unpaired consensus perturbations.
func NewConsensusFetcher(q Querier, f Filter) pagination.PageFetcher[*AggregateNode] {
	return &queryFetcher[consensusEnvelope, *AggregateNode]{
		querier: q, filter: f, op: OpConsensus, query: consensusQuery, path: pathEnrich,
		unwrap: func(e consensusEnvelope) ([]*AggregateNode, *int) { return e.Consensus, e.ConsensusCount },
	}
}

// NewMoAFetcher pages unpaired mechanisms of action.
func NewMoAFetcher(q Querier, f Filter) pagination.PageFetcher[*AggregateNode] {
	return &queryFetcher[moaEnvelope, *AggregateNode]{
		querier: q, filter: f, op: OpMoAs, query: moasQuery, path: pathEnrich,
		unwrap: func(e moaEnvelope) ([]*AggregateNode, *int) { return e.MoAs, e.MoAsCount },
	}
}

// NewPairedSingleFetcher pages up/down per-signature results.
func NewPairedSingleFetcher(q Querier, f Filter) pagination.PageFetcher[*PairedNode] {
	return &queryFetcher[pairedEnvelope, *PairedNode]{
		querier: q, filter: f, paired: true, op: OpPairedSingle, query: pairedSingleQuery, path: pathPairedEnrich,
		unwrap: func(e pairedEnvelope) ([]*PairedNode, *int) { return e.Nodes, nil },
	}
}

// NewPairedConsensusFetcher pages up/down consensus perturbations.
func NewPairedConsensusFetcher(q Querier, f Filter) pagination.PageFetcher[*AggregateNode] {
	return &queryFetcher[consensusEnvelope, *AggregateNode]{
		querier: q, filter: f, paired: true, op: OpPairedConsensus, query: pairedConsensusQuery, path: pathPairedEnrich,
		unwrap: func(e consensusEnvelope) ([]*AggregateNode, *int) { return e.Consensus, e.ConsensusCount },
	}
}

// NewPairedMoAFetcher pages up/down mechanisms of action.
func NewPairedMoAFetcher(q Querier, f Filter) pagination.PageFetcher[*AggregateNode] {
	return &queryFetcher[moaEnvelope, *AggregateNode]{
		querier: q, filter: f, paired: true, op: OpPairedMoAs, query: pairedMoAsQuery, path: pathPairedEnrich,
		unwrap: func(e moaEnvelope) ([]*AggregateNode, *int) { return e.MoAs, e.MoAsCount },
	}
}
