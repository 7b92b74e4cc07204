package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sternrassler/enrich-export/pkg/client"
	"github.com/Sternrassler/enrich-export/pkg/pagination"
)

// TermSearchPageSize is the number of gene sets requested per term-search page.
const TermSearchPageSize = 10

type termSearchEnvelope struct {
	Nodes    []*TermSearchNode `json:"nodes"`
	PageInfo struct {
		HasNextPage bool    `json:"hasNextPage"`
		EndCursor   *string `json:"endCursor"`
	} `json:"pageInfo"`
}

// NewTermSearchFetcher pages the gene sets whose term matches terms.
func NewTermSearchFetcher(q Querier, terms []string) pagination.KeysetFetcher[*TermSearchNode] {
	terms = nonNil(terms)
	return pagination.KeysetFunc[*TermSearchNode](func(ctx context.Context, after string, first int) (pagination.KeysetPage[*TermSearchNode], error) {
		vars := map[string]any{"filterTerm": terms, "first": first, "after": nil}
		if after != "" {
			vars["after"] = after
		}

		var env termSearchEnvelope
		err := q.Query(ctx, client.Request{
			Operation: OpTermSearch,
			Query:     termSearchQuery,
			Variables: vars,
			Path:      pathTermSearch,
		}, &env)
		if err != nil {
			return pagination.KeysetPage[*TermSearchNode]{}, fmt.Errorf("%s: %w", OpTermSearch, err)
		}

		page := pagination.KeysetPage[*TermSearchNode]{Nodes: env.Nodes, HasNextPage: env.PageInfo.HasNextPage}
		if env.PageInfo.EndCursor != nil {
			page.EndCursor = *env.PageInfo.EndCursor
		}
		return page, nil
	})
}

// FormatGMT renders a term-search node as a GMT line: the term, an empty
// description field, then the gene symbols.
func FormatGMT(n *TermSearchNode) (string, bool) {
	if n == nil || n.Term == "" {
		return "", false
	}
	genes := make([]string, 0, len(n.Genes.Nodes))
	for _, g := range n.Genes.Nodes {
		genes = append(genes, g.Symbol)
	}
	return strings.ReplaceAll(n.Term, "\t", " ") + "\t\t" + strings.Join(genes, "\t") + "\n", true
}

// GMTFilename is the download name of a term-search export.
func GMTFilename(terms []string) string {
	name := strings.Join(terms, "_")
	name = strings.Map(func(r rune) rune {
		switch r {
		case '"', '\\', '/', '\r', '\n':
			return '_'
		}
		return r
	}, name)
	return name + "_genesets.tsv"
}
