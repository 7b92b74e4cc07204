package pagination

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// KeysetPage is one page of a cursor-token paginated result set.
type KeysetPage[N any] struct {
	Nodes       []N
	EndCursor   string
	HasNextPage bool
}

// KeysetFetcher fetches the page following the opaque cursor after ("" for
// the first page).
type KeysetFetcher[N any] interface {
	FetchAfter(ctx context.Context, after string, first int) (KeysetPage[N], error)
}

// KeysetFunc adapts a function to KeysetFetcher.
type KeysetFunc[N any] func(ctx context.Context, after string, first int) (KeysetPage[N], error)

func (f KeysetFunc[N]) FetchAfter(ctx context.Context, after string, first int) (KeysetPage[N], error) {
	return f(ctx, after, first)
}

// Keyset walks a cursor-token paginated result set one node per pull. The
// walk ends when the server reports no next page, returns an empty page, or
// maxNodes nodes have been returned.
type Keyset[N any] struct {
	fetcher  KeysetFetcher[N]
	first    int
	maxNodes int
	logger   zerolog.Logger

	after   string
	hasNext bool
	nodes   []N
	emitted int
	pages   int
	err     error
}

// NewKeyset creates a keyset walker requesting first nodes per page.
func NewKeyset[N any](fetcher KeysetFetcher[N], first, maxNodes int) *Keyset[N] {
	if first <= 0 {
		first = 10
	}
	if maxNodes <= 0 {
		maxNodes = Unlimited
	}
	return &Keyset[N]{
		fetcher:  fetcher,
		first:    first,
		maxNodes: maxNodes,
		logger:   log.With().Str("mode", "keyset").Logger(),
		hasNext:  true,
	}
}

// Next returns the next node, io.EOF at the end of the walk, or the error that
// ended it.
func (k *Keyset[N]) Next(ctx context.Context) (N, error) {
	var zero N
	for len(k.nodes) == 0 {
		if k.err != nil {
			return zero, k.err
		}
		if !k.hasNext || k.emitted >= k.maxNodes {
			return zero, io.EOF
		}
		if err := ctx.Err(); err != nil {
			k.err = err
			return zero, err
		}

		page, err := k.fetcher.FetchAfter(ctx, k.after, k.first)
		k.pages++
		if err != nil {
			k.err = fmt.Errorf("fetch page after %q: %w", k.after, err)
			return zero, k.err
		}
		exportPagesTotal.WithLabelValues("keyset").Inc()

		k.logger.Debug().
			Str("after", k.after).
			Int("fetched", len(page.Nodes)).
			Bool("has_next", page.HasNextPage).
			Msg("Fetched page")

		k.nodes = page.Nodes
		k.after = page.EndCursor
		k.hasNext = page.HasNextPage && len(page.Nodes) > 0 && page.EndCursor != ""
	}

	node := k.nodes[0]
	k.nodes = k.nodes[1:]
	k.emitted++
	if k.emitted >= k.maxNodes {
		k.nodes = nil
	}
	return node, nil
}

// Pages returns the number of pages requested so far.
func (k *Keyset[N]) Pages() int {
	return k.pages
}
