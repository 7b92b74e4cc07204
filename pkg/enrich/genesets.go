package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/enrich-export/pkg/cache"
	"github.com/Sternrassler/enrich-export/pkg/client"
)

// GeneSetCache stores resolved user gene sets by id.
type GeneSetCache interface {
	GetGenes(ctx context.Context, id string) ([]string, error)
	SetGenes(ctx context.Context, id string, genes []string) error
}

type userGeneSet struct {
	Genes       []*string `json:"genes"`
	Description *string   `json:"description"`
}

// Resolver turns user gene-set ids into normalized gene lists.
type Resolver struct {
	querier Querier
	cache   GeneSetCache
	logger  zerolog.Logger
}

// NewResolver creates a resolver. store may be nil.
func NewResolver(q Querier, store GeneSetCache) *Resolver {
	return &Resolver{
		querier: q,
		cache:   store,
		logger:  log.With().Str("component", "geneset-resolver").Logger(),
	}
}

// Resolve returns the upper-cased, non-empty genes of the user gene set id.
// An unknown id resolves to an empty list. Cache failures are logged and
// fall through to the upstream.
func (r *Resolver) Resolve(ctx context.Context, id string) ([]string, error) {
	if id == "" {
		return nil, nil
	}

	if r.cache != nil {
		genes, err := r.cache.GetGenes(ctx, id)
		if err == nil {
			return genes, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.logger.Warn().Err(err).Str("gene_set", id).Msg("Gene set cache read failed")
		}
	}

	var set userGeneSet
	err := r.querier.Query(ctx, client.Request{
		Operation: OpFetchGeneSet,
		Query:     fetchUserGeneSetQuery,
		Variables: map[string]any{"id": id},
		Path:      pathUserGeneSet,
	}, &set)
	if err != nil {
		return nil, fmt.Errorf("resolve gene set %s: %w", id, err)
	}

	genes := make([]string, 0, len(set.Genes))
	for _, g := range set.Genes {
		if g == nil || *g == "" {
			continue
		}
		genes = append(genes, strings.ToUpper(*g))
	}

	if r.cache != nil && len(genes) > 0 {
		if err := r.cache.SetGenes(ctx, id, genes); err != nil {
			r.logger.Warn().Err(err).Str("gene_set", id).Msg("Gene set cache write failed")
		}
	}
	return genes, nil
}
