package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/zhcorpus/internal/cache"
	"github.com/hyperjump/zhcorpus/internal/dictionary"
	"github.com/hyperjump/zhcorpus/internal/models"
	"github.com/hyperjump/zhcorpus/internal/ranges"
	"github.com/hyperjump/zhcorpus/internal/report"
	"github.com/hyperjump/zhcorpus/internal/sampling"
	"github.com/hyperjump/zhcorpus/internal/termindex"
)

func invalidArg(err error) error {
	return fmt.Errorf("%w: %v", sampling.ErrInvalidArgument, err)
}

// intParam parses an optional integer query parameter; a missing value is 0.
func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, invalidArg(fmt.Errorf("%s must be an integer, got %q", name, v))
	}
	return n, nil
}

// boolParam parses an optional boolean query parameter; a missing value is false.
func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, invalidArg(fmt.Errorf("%s must be a boolean, got %q", name, v))
	}
	return b, nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	size, err := intParam(r, "sample_size")
	if err != nil {
		s.respondErr(w, err)
		return
	}
	q := models.SearchQuery{Term: r.URL.Query().Get("term"), SampleSize: size}
	if err := q.Validate(s.config.Sampling.DefaultSampleSize, s.config.Sampling.MaxSampleSize); err != nil {
		s.respondErr(w, invalidArg(err))
		return
	}
	s.logger.Debug("search request", zap.String("term", q.Term), zap.Int("sample_size", q.SampleSize))
	samples, err := s.deps.Sampler.SearchSamples(r.Context(), q.Term, q.SampleSize)
	if err != nil {
		s.logger.Error("search failed", zap.String("term", q.Term), zap.Error(err))
		s.respondErr(w, err)
		return
	}
	snap := s.deps.Ranges.Snapshot()
	s.respondJSON(w, http.StatusOK, &models.SearchResponse{
		Term:       q.Term,
		Samples:    samples,
		Sources:    distinctSources(samples),
		Generation: snap.Generation,
		QueryTime:  time.Since(start).Milliseconds(),
	})
}

func distinctSources(samples []*models.Sample) int {
	seen := map[string]struct{}{}
	for _, sm := range samples {
		seen[sm.Source] = struct{}{}
	}
	return len(seen)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit, err := intParam(r, "cap")
	if err != nil {
		s.respondErr(w, err)
		return
	}
	perSource, err := boolParam(r, "per_source")
	if err != nil {
		s.respondErr(w, err)
		return
	}
	q := models.CountQuery{Term: r.URL.Query().Get("term"), Cap: limit, PerSource: perSource}
	if err := q.Validate(s.config.Sampling.DefaultCountCap, s.config.Sampling.MaxCountCap); err != nil {
		s.respondErr(w, invalidArg(err))
		return
	}
	resp := &models.CountResponse{Term: q.Term, Cap: q.Cap}
	if q.PerSource {
		counts, err := s.deps.Sampler.CountPerSource(r.Context(), q.Term, q.Cap)
		if err != nil {
			s.logger.Error("count failed", zap.String("term", q.Term), zap.Error(err))
			s.respondErr(w, err)
			return
		}
		resp.PerSource = counts
	} else {
		total, err := s.deps.Sampler.CountTotal(r.Context(), q.Term, q.Cap)
		if err != nil {
			s.logger.Error("count failed", zap.String("term", q.Term), zap.Error(err))
			s.respondErr(w, err)
			return
		}
		resp.Total = &total
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRanked(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if limit == 0 {
		limit = s.config.Sampling.RankedLimit
	}
	term := r.URL.Query().Get("term")
	hits, err := s.deps.Sampler.Ranked(r.Context(), term, limit, s.config.Sampling.RankedCap)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"term": term, "results": hits})
}

func (s *Server) handleWordReport(w http.ResponseWriter, r *http.Request) {
	mode, err := models.ParseReportMode(r.URL.Query().Get("mode"))
	if err != nil {
		s.respondErr(w, invalidArg(err))
		return
	}
	term := r.URL.Query().Get("term")
	ctx, cancel := context.WithTimeout(r.Context(), s.config.Report.Timeout())
	defer cancel()

	build := func(ctx context.Context) (*models.WordReport, error) {
		return s.deps.Reports.BuildWordReport(ctx, term, mode)
	}
	var rep *models.WordReport
	if s.deps.Cache != nil {
		rep, err = s.deps.Cache.GetOrBuild(ctx, s.deps.Ranges.Snapshot().Generation, mode, term, cache.BuildFunc(build))
	} else {
		rep, err = build(ctx)
	}
	if err != nil {
		s.logger.Error("word report failed", zap.String("term", term), zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rep)
}

func (s *Server) handleSourceRanges(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.deps.Ranges.Snapshot())
}

func (s *Server) handleMaterialize(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Ranges.Materialize(r.Context())
	if err != nil {
		s.logger.Error("materialize failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	headword := r.URL.Query().Get("headword")
	if headword == "" {
		s.respondError(w, http.StatusBadRequest, "headword is required")
		return
	}
	entries, err := s.deps.Dictionary.Lookup(r.Context(), headword)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if len(entries) == 0 {
		s.respondError(w, http.StatusNotFound, "headword not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"headword": headword, "entries": entries})
}

func (s *Server) handleDialect(w http.ResponseWriter, r *http.Request) {
	headword := r.URL.Query().Get("headword")
	if headword == "" {
		s.respondError(w, http.StatusBadRequest, "headword is required")
		return
	}
	forms, err := s.deps.Dictionary.DialectForms(r.Context(), headword)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	out := models.DialectSection{
		PronunciationOverlays: []models.PronunciationOverlay{},
		LexicalDivergences:    []models.LexicalDivergence{},
	}
	for _, f := range forms {
		switch v := f.(type) {
		case models.PronunciationOverlay:
			out.PronunciationOverlays = append(out.PronunciationOverlays, v)
		case models.LexicalDivergence:
			out.LexicalDivergences = append(out.LexicalDivergences, v)
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"headword": headword, "dialects": out})
}

func (s *Server) handleGlosses(w http.ResponseWriter, r *http.Request) {
	if s.deps.Glosses == nil {
		s.respondError(w, http.StatusNotImplemented, "gloss index not enabled")
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if limit <= 0 {
		limit = s.config.Sampling.RankedLimit
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	hits, err := s.deps.Glosses.Search(r.Context(), q, r.URL.Query().Get("lang"), limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	resp := map[string]interface{}{"query": q, "results": hits}
	if len(hits) == 0 {
		if suggestion, ok, err := s.deps.Glosses.Suggest(q); err != nil {
			s.logger.Warn("glosses: suggestion failed", zap.Error(err))
		} else if ok {
			resp["suggestion"] = suggestion
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cs, err := s.deps.Corpus.Stats(ctx)
	if err != nil {
		s.logger.Error("stats: corpus failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	resp := map[string]interface{}{
		"corpus":        cs,
		"source_ranges": s.deps.Ranges.Snapshot().Len(),
	}
	if s.deps.Dictionary != nil {
		ds, err := s.deps.Dictionary.Stats(ctx)
		if err != nil {
			s.logger.Error("stats: dictionary failed", zap.Error(err))
			s.respondErr(w, err)
			return
		}
		resp["dictionary"] = ds
	}
	if s.deps.Glosses != nil {
		if n, err := s.deps.Glosses.DocCount(); err == nil {
			resp["glosses"] = n
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleServerStats(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Ranges.Snapshot()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"version":        s.version,
		"go_version":     runtime.Version(),
		"started_at":     s.started.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"generation":     snap.Generation,
		"ranges_built":   snap.BuiltAt,
		"goroutines":     runtime.NumGoroutine(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps package sentinel errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sampling.ErrInvalidArgument), errors.Is(err, termindex.ErrEmptyTerm):
		return http.StatusBadRequest
	case errors.Is(err, dictionary.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ranges.ErrOverlappingRanges):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, report.ErrReportFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	s.respondError(w, statusFor(err), err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
