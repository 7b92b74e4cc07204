package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/enrich-export/pkg/enrich"
	"github.com/Sternrassler/enrich-export/pkg/logging"
	"github.com/Sternrassler/enrich-export/pkg/metrics"
	"github.com/Sternrassler/enrich-export/pkg/pagination"
	"github.com/Sternrassler/enrich-export/pkg/ratelimit"
	"github.com/Sternrassler/enrich-export/pkg/tsv"
)

const (
	contentTypeTSV = "text/tab-separated-values"

	modeTermSearch = "term_search"

	msgNoGenes        = "no genes"
	msgPairedNoGenes  = "At least one gene set is empty"
	msgMissingTerm    = "Missing 'term' query parameter"
	msgUpstreamFailed = "upstream request failed"
	msgTooMany        = "too many concurrent exports, retry later"
)

// exportStream is the serialized side of an export.
type exportStream interface {
	WriteTo(w io.Writer) (int64, error)
	Stats() tsv.Stats
}

// request carries the per-export state shared by every handler.
type request struct {
	id     string
	mode   string
	start  time.Time
	logger zerolog.Logger
}

func (s *Server) newRequest(w http.ResponseWriter, mode string) *request {
	id := uuid.NewString()
	w.Header().Set(HeaderExportID, id)
	return &request{
		id:     id,
		mode:   mode,
		start:  time.Now(),
		logger: logging.ForExport(s.logger, id, mode),
	}
}

func (s *Server) handleEnrich(paired bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		mode := enrich.Mode{Kind: enrich.KindSingle, Paired: paired}
		switch {
		case boolParam(q, "consensus"):
			mode.Kind = enrich.KindConsensus
		case boolParam(q, "moas"):
			mode.Kind = enrich.KindMoA
		}
		req := s.newRequest(w, mode.String())

		filter, err := s.filter(r.Context(), q, paired)
		if err != nil {
			s.failed(w, r, req, err)
			return
		}

		maxTotal := intParam(q, "maxTotal", s.limits.DefaultMaxTotal, 0, s.limits.MaxTotalLimit)
		exp, err := enrich.NewExport(s.querier, mode, filter, enrich.Options{
			PageSize: s.limits.PageSize,
			MaxTotal: maxTotal,
			Columns:  listParam(q, "columns"),
			Logger:   &req.logger,
		})
		switch {
		case errors.Is(err, enrich.ErrNoGenes):
			msg := msgNoGenes
			if paired {
				msg = msgPairedNoGenes
			}
			s.reject(w, req, http.StatusBadRequest, msg)
			return
		case errors.Is(err, enrich.ErrUnknownColumn):
			s.reject(w, req, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			s.failed(w, r, req, err)
			return
		}

		release, ok := s.acquire(w, r, req)
		if !ok {
			return
		}
		defer release()

		req.logger.Info().
			Int("top_n", filter.TopN).
			Int("max_total", maxTotal).
			Strs("columns", exp.Columns).
			Msg("Export started")

		if err := exp.Prime(r.Context()); err != nil {
			s.failed(w, r, req, err)
			return
		}

		stream := exp.Stream(r.Context(), streamOptions(q, req)...)
		s.serve(w, r, req, "enrich_"+mode.String()+".tsv", stream)
	}
}

func (s *Server) handleTermSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := s.newRequest(w, modeTermSearch)

	var terms []string
	for _, t := range q["term"] {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		s.reject(w, req, http.StatusBadRequest, msgMissingTerm)
		return
	}

	release, ok := s.acquire(w, r, req)
	if !ok {
		return
	}
	defer release()

	req.logger.Info().Strs("terms", terms).Msg("Export started")

	walker := pagination.NewKeyset(enrich.NewTermSearchFetcher(s.querier, terms), enrich.TermSearchPageSize, 0)
	opts := append([]tsv.Option{tsv.WithName(modeTermSearch)}, streamOptions(q, req)...)
	stream := tsv.NewStream[*enrich.TermSearchNode](r.Context(), "", walker, enrich.FormatGMT, opts...)
	s.serve(w, r, req, enrich.GMTFilename(terms), stream)
}

// filter builds the export filter, resolving the submitted gene sets.
func (s *Server) filter(ctx context.Context, q url.Values, paired bool) (enrich.Filter, error) {
	f := enrich.Filter{
		Term: enrich.FilterTerm(q.Get("q"), q.Get("dir")),
		FDA:  boolParam(q, "fda"),
		KO:   boolParam(q, "ko"),
		TopN: intParam(q, "topn", s.limits.DefaultTopN, 1, s.limits.MaxTopN),
		Sort: q.Get("sort"),
	}

	var err error
	if paired {
		if f.GenesUp, err = s.resolver.Resolve(ctx, q.Get("datasetup")); err != nil {
			return f, err
		}
		if f.GenesDown, err = s.resolver.Resolve(ctx, q.Get("datasetdown")); err != nil {
			return f, err
		}
		return f, nil
	}
	f.Genes, err = s.resolver.Resolve(ctx, q.Get("dataset"))
	return f, err
}

func (s *Server) acquire(w http.ResponseWriter, r *http.Request, req *request) (func(), bool) {
	release, err := s.tracker.Acquire(r.Context())
	switch {
	case err == nil:
		return release, true
	case errors.Is(err, ratelimit.ErrTooManyExports):
		w.Header().Set("Retry-After", "1")
		s.reject(w, req, http.StatusTooManyRequests, msgTooMany)
	case r.Context().Err() != nil:
		s.failed(w, r, req, err)
	default:
		metrics.ExportsTotal.WithLabelValues(req.mode, metrics.StatusRejected).Inc()
		req.logger.Error().Err(err).Msg("Export slot unavailable")
		http.Error(w, "export slots unavailable", http.StatusServiceUnavailable)
	}
	return nil, false
}

// reject answers a request refused before any export work started.
func (s *Server) reject(w http.ResponseWriter, req *request, status int, msg string) {
	metrics.ExportsTotal.WithLabelValues(req.mode, metrics.StatusRejected).Inc()
	req.logger.Warn().
		Int("status", status).
		Str("reason", msg).
		Msg("Export rejected")
	http.Error(w, msg, status)
}

// failed answers a request whose export failed before any output. A client
// that went away gets no answer.
func (s *Server) failed(w http.ResponseWriter, r *http.Request, req *request, err error) {
	metrics.ExportsTotal.WithLabelValues(req.mode, metrics.StatusAborted).Inc()
	if r.Context().Err() != nil {
		req.logger.Info().Err(err).Msg("Export cancelled by client")
		return
	}
	req.logger.Error().
		Err(err).
		Dur("duration", time.Since(req.start)).
		Msg("Export failed")
	http.Error(w, msgUpstreamFailed, http.StatusBadGateway)
}

// serve streams an export. Headers are committed with the first byte; a
// failure before that is answered with 502, a failure after it aborts the
// response so the client never mistakes a truncated file for a complete one.
func (s *Server) serve(w http.ResponseWriter, r *http.Request, req *request, filename string, stream exportStream) {
	out := &lazyWriter{w: w, commit: func() {
		h := w.Header()
		h.Set("Content-Type", contentTypeTSV)
		h.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		h.Set("Trailer", TrailerStatus+", "+TrailerRows+", "+TrailerSkipped)
		w.WriteHeader(http.StatusOK)
	}}

	_, err := stream.WriteTo(out)
	stats := stream.Stats()
	metrics.ExportDuration.WithLabelValues(req.mode).Observe(time.Since(req.start).Seconds())

	if err != nil {
		if !out.committed {
			s.failed(w, r, req, err)
			return
		}
		metrics.ExportsTotal.WithLabelValues(req.mode, metrics.StatusAborted).Inc()
		event := req.logger.Error()
		if r.Context().Err() != nil {
			event = req.logger.Info()
		}
		event.
			Err(err).
			Int("rows", stats.Rows).
			Int("skipped", stats.Skipped).
			Dur("duration", time.Since(req.start)).
			Msg("Export aborted")
		panic(http.ErrAbortHandler)
	}

	out.ensureCommitted()
	h := w.Header()
	h.Set(TrailerStatus, metrics.StatusComplete)
	h.Set(TrailerRows, strconv.Itoa(stats.Rows))
	h.Set(TrailerSkipped, strconv.Itoa(stats.Skipped))

	metrics.ExportsTotal.WithLabelValues(req.mode, metrics.StatusComplete).Inc()
	req.logger.Info().
		Int("rows", stats.Rows).
		Int("skipped", stats.Skipped).
		Dur("duration", time.Since(req.start)).
		Msg("Export complete")
}

// lazyWriter defers committing the response until the first write.
type lazyWriter struct {
	w         io.Writer
	commit    func()
	committed bool
}

func (l *lazyWriter) Write(p []byte) (int, error) {
	l.ensureCommitted()
	return l.w.Write(p)
}

func (l *lazyWriter) ensureCommitted() {
	if !l.committed {
		l.committed = true
		l.commit()
	}
}

func streamOptions(q url.Values, req *request) []tsv.Option {
	opts := []tsv.Option{tsv.WithLogger(req.logger)}
	if boolParam(q, "trailer") {
		opts = append(opts, tsv.WithTrailer())
	}
	return opts
}

func boolParam(q url.Values, name string) bool {
	return strings.EqualFold(strings.TrimSpace(q.Get(name)), "true")
}

// intParam parses name, falling back to def when absent or malformed and
// clamping to [lo, hi].
func intParam(q url.Values, name string, def, lo, hi int) int {
	v, err := strconv.Atoi(strings.TrimSpace(q.Get(name)))
	if err != nil {
		v = def
	}
	return min(max(v, lo), hi)
}

func listParam(q url.Values, name string) []string {
	var out []string
	for _, raw := range q[name] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}
