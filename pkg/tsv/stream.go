package tsv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for serialized output.
var (
	exportRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_export_rows_total",
		Help: "Total data lines written to export streams, by mode",
	}, []string{"mode"})

	exportRowsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_export_rows_skipped_total",
		Help: "Total source items skipped because they had no usable output, by mode",
	}, []string{"mode"})
)

// TrailerPrefix starts the optional in-band end-of-stream line.
const TrailerPrefix = "#export"

// Source is a pull-driven sequence. Next returns io.EOF once exhausted.
type Source[T any] interface {
	Next(ctx context.Context) (T, error)
}

// SliceSource serves a finite in-memory list.
type SliceSource[T any] struct {
	items []T
}

// FromSlice returns a Source over items.
func FromSlice[T any](items []T) *SliceSource[T] {
	return &SliceSource[T]{items: items}
}

func (s *SliceSource[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if len(s.items) == 0 {
		return zero, io.EOF
	}
	item := s.items[0]
	s.items = s.items[1:]
	return item, nil
}

// Formatter renders one item as a complete line including its trailing
// newline. It returns false when the item has no usable output.
type Formatter[T any] func(T) (string, bool)

// Transform maps one item onto a Record. It returns false when the item has
// no usable output.
type Transform[T any] func(T) (Record, bool)

// Stats summarizes a stream.
type Stats struct {
	Rows     int
	Skipped  int
	Complete bool
}

// Option configures a Stream.
type Option func(*options)

type options struct {
	name    string
	trailer bool
	logger  *zerolog.Logger
}

// WithName labels metrics and logs of the stream.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithTrailer appends a final "#export\tstatus=complete\trows=N\tskipped=M"
// line after a successfully exhausted source, so a reader of the file alone can
// tell a complete export from a truncated one.
func WithTrailer() Option {
	return func(o *options) { o.trailer = true }
}

// WithLogger sets the logger used for skip events.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = &logger }
}

// Stream is a pull-based io.Reader over a Source. The header line is the first
// output; after that every refill pulls the source until one line is
// produced or the source ends. At most one line is buffered.
type Stream[T any] struct {
	ctx    context.Context
	src    Source[T]
	format Formatter[T]
	opts   options
	logger zerolog.Logger

	header     string
	headerSent bool
	buf        string
	done       bool
	err        error
	stats      Stats
}

var (
	_ io.Reader   = (*Stream[Record])(nil)
	_ io.WriterTo = (*Stream[Record])(nil)
)

// NewStream creates a stream writing header (may be empty) followed by one
// formatted line per usable item.
func NewStream[T any](ctx context.Context, header string, src Source[T], format Formatter[T], opts ...Option) *Stream[T] {
	o := options{name: "export"}
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.Logger
	if o.logger != nil {
		logger = *o.logger
	}
	return &Stream[T]{
		ctx:    ctx,
		src:    src,
		format: format,
		opts:   o,
		logger: logger,
		header: header,
	}
}

// NewColumnStream creates a stream whose header is columns tab-joined and whose
// rows are the transformed records' values for those columns.
func NewColumnStream[T any](ctx context.Context, columns []string, src Source[T], transform Transform[T], opts ...Option) *Stream[T] {
	cols := append([]string(nil), columns...)
	format := func(item T) (string, bool) {
		rec, ok := transform(item)
		if !ok || rec == nil {
			return "", false
		}
		return rec.Line(cols), true
	}
	return NewStream(ctx, strings.Join(cols, "\t")+"\n", src, format, opts...)
}

// Identity is the Transform of sources that already yield Records.
func Identity(r Record) (Record, bool) {
	return r, r != nil
}

// Read implements io.Reader.
func (s *Stream[T]) Read(p []byte) (int, error) {
	for s.buf == "" {
		if s.err != nil {
			return 0, s.err
		}
		if s.done {
			return 0, io.EOF
		}
		s.fill()
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// WriteTo implements io.WriterTo, writing one line per call to w.
func (s *Stream[T]) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for {
		for s.buf == "" && s.err == nil && !s.done {
			s.fill()
		}
		if s.buf != "" {
			n, err := io.WriteString(w, s.buf)
			total += int64(n)
			s.buf = s.buf[n:]
			if err != nil {
				return total, err
			}
			continue
		}
		if s.err != nil {
			return total, s.err
		}
		return total, nil
	}
}

// Stats returns the rows written and items skipped so far.
func (s *Stream[T]) Stats() Stats {
	return s.stats
}

// Err returns the error that ended the stream, if any.
func (s *Stream[T]) Err() error {
	return s.err
}

func (s *Stream[T]) fill() {
	if !s.headerSent {
		s.headerSent = true
		if s.header != "" {
			s.buf = s.header
			return
		}
	}

	for {
		item, err := s.src.Next(s.ctx)
		if errors.Is(err, io.EOF) {
			s.done = true
			s.stats.Complete = true
			if s.opts.trailer {
				s.buf = fmt.Sprintf("%s\tstatus=complete\trows=%d\tskipped=%d\n", TrailerPrefix, s.stats.Rows, s.stats.Skipped)
			}
			return
		}
		if err != nil {
			s.err = err
			return
		}

		line, ok := s.format(item)
		if !ok {
			s.stats.Skipped++
			exportRowsSkipped.WithLabelValues(s.opts.name).Inc()
			s.logger.Debug().
				Str("mode", s.opts.name).
				Int("skipped", s.stats.Skipped).
				Msg("Skipped item without output")
			continue
		}

		s.stats.Rows++
		exportRowsTotal.WithLabelValues(s.opts.name).Inc()
		s.buf = line
		return
	}
}
