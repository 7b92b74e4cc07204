package pagination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for page walks.
var (
	exportPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_export_pages_total",
		Help: "Total upstream pages fetched by export drivers, by mode",
	}, []string{"mode"})

	exportPageNodes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enrich_export_page_nodes",
		Help:    "Nodes returned per fetched page, by mode",
		Buckets: []float64{0, 1, 10, 50, 100, 250, 500, 1000},
	}, []string{"mode"})

	exportPageFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enrich_export_page_fetch_duration_seconds",
		Help:    "Duration of a single page fetch, by mode",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"mode"})
)

// DefaultPageSize is the number of nodes requested per page.
const DefaultPageSize = 500

// Config holds driver configuration.
type Config struct {
	// PageSize is the number of nodes requested per fetch.
	PageSize int
	// Name labels logs and metrics (e.g. "consensus", "paired_single").
	Name string
	// Logger receives per-page debug events. Defaults to the global logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns the driver configuration used by exports.
func DefaultConfig(name string) Config {
	return Config{
		PageSize: DefaultPageSize,
		Name:     name,
	}
}

// Page is one upstream page of nodes.
type Page[N any] struct {
	Nodes []N
	// TotalCount is the server-reported size of the whole result set, nil
	// for uncounted queries.
	TotalCount *int
}

// PageFetcher issues exactly one upstream query per call.
type PageFetcher[N any] interface {
	FetchPage(ctx context.Context, c Cursor) (Page[N], error)
}

// FetchFunc adapts a function to PageFetcher.
type FetchFunc[N any] func(ctx context.Context, c Cursor) (Page[N], error)

func (f FetchFunc[N]) FetchPage(ctx context.Context, c Cursor) (Page[N], error) {
	return f(ctx, c)
}

// Projector flattens one node into zero or more output rows.
type Projector[N, R any] func(N) []R

// Driver walks an offset-paginated result set one row per pull. It performs
// no work between calls to Next and is not restartable.
type Driver[N, R any] struct {
	fetcher PageFetcher[N]
	project Projector[N, R]
	policy  Policy
	config  Config
	logger  zerolog.Logger

	state   State
	nodes   []N // unprojected nodes of the current page
	pending []R // unconsumed rows of the current node
	err     error

	fetches int
	rows    int
	start   time.Time
}

// NewDriver creates a driver positioned at offset zero.
func NewDriver[N, R any](fetcher PageFetcher[N], project Projector[N, R], policy Policy, config Config) *Driver[N, R] {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.Name == "" {
		config.Name = "export"
	}

	logger := log.Logger
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Driver[N, R]{
		fetcher: fetcher,
		project: project,
		policy:  policy,
		config:  config,
		logger:  logger.With().Str("mode", config.Name).Logger(),
		state:   InitialState(config.PageSize),
	}
}

// Next returns the next row, io.EOF once the walk is complete, or the error
// that ended it. After an error every later call returns the same error.
func (d *Driver[N, R]) Next(ctx context.Context) (R, error) {
	var zero R
	for {
		if len(d.pending) > 0 {
			row := d.pending[0]
			d.pending = d.pending[1:]
			d.rows++
			return row, nil
		}
		if len(d.nodes) > 0 {
			node := d.nodes[0]
			d.nodes = d.nodes[1:]
			d.pending = d.project(node)
			continue
		}
		if d.err != nil {
			return zero, d.err
		}
		if !d.policy.Admit(d.state) {
			d.finish()
			return zero, io.EOF
		}
		if err := d.fetch(ctx); err != nil {
			d.err = err
			d.state.Done = true
			return zero, err
		}
	}
}

// All adapts the driver to a range-over-func sequence. Iteration stops after
// the first error is yielded.
func (d *Driver[N, R]) All(ctx context.Context) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		for {
			row, err := d.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

// State returns the current driver position.
func (d *Driver[N, R]) State() State {
	return d.state
}

// Fetches returns the number of upstream pages requested so far.
func (d *Driver[N, R]) Fetches() int {
	return d.fetches
}

func (d *Driver[N, R]) fetch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.fetches == 0 {
		d.start = time.Now()
	}

	cursor := d.state.Cursor
	fetchStart := time.Now()
	page, err := d.fetcher.FetchPage(ctx, cursor)
	exportPageFetchDuration.WithLabelValues(d.config.Name).Observe(time.Since(fetchStart).Seconds())
	d.fetches++
	if err != nil {
		d.logger.Warn().
			Err(err).
			Int("offset", cursor.Offset).
			Int("page", d.fetches).
			Msg("Page fetch failed")
		return fmt.Errorf("fetch page at offset %d: %w", cursor.Offset, err)
	}

	exportPagesTotal.WithLabelValues(d.config.Name).Inc()
	exportPageNodes.WithLabelValues(d.config.Name).Observe(float64(len(page.Nodes)))

	next, keep := d.policy.Step(d.state, PageInfo{Len: len(page.Nodes), TotalCount: page.TotalCount})
	d.state = next
	d.nodes = page.Nodes[:keep]

	event := d.logger.Debug().
		Int("offset", cursor.Offset).
		Int("fetched", len(page.Nodes)).
		Int("kept", keep).
		Int("page", d.fetches).
		Bool("done", next.Done)
	if next.Total >= 0 {
		event = event.Int("total", next.Total)
	}
	event.Msg("Fetched page")

	return nil
}

func (d *Driver[N, R]) finish() {
	if d.start.IsZero() {
		return
	}
	d.logger.Debug().
		Str("policy", d.policy.Name()).
		Int("pages", d.fetches).
		Int("rows", d.rows).
		Dur("duration", time.Since(d.start)).
		Msg("Walk complete")
	d.start = time.Time{}
}
