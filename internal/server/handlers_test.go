package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/zhcorpus/internal/cache"
	"github.com/hyperjump/zhcorpus/internal/config"
	"github.com/hyperjump/zhcorpus/internal/glossindex"
	"github.com/hyperjump/zhcorpus/internal/metrics"
	"github.com/hyperjump/zhcorpus/internal/models"
	"github.com/hyperjump/zhcorpus/internal/ranges"
	"github.com/hyperjump/zhcorpus/internal/report"
	"github.com/hyperjump/zhcorpus/internal/sampling"
	"github.com/hyperjump/zhcorpus/internal/termindex"
	"github.com/hyperjump/zhcorpus/internal/testutil"
)

func newTestServer(t *testing.T, materialize bool) (*Server, http.Handler) {
	t.Helper()
	store := testutil.NewCorpus(t,
		testutil.Source{Name: "A", Texts: testutil.Filler(100, "豆腐", 5, 40), PerDoc: 20},
		testutil.Source{Name: "B", Texts: testutil.Filler(50, "豆腐", 20), PerDoc: 25},
	)
	dict := testutil.NewDictionary(t, testutil.Tofu(), testutil.Walk())
	mat, err := ranges.New(store.DB())
	require.NoError(t, err)
	if materialize {
		_, err = mat.Materialize(context.Background())
		require.NoError(t, err)
	}
	glosses, err := glossindex.Open(filepath.Join(t.TempDir(), "glosses"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = glosses.Close() })
	_, err = glosses.Rebuild(context.Background(), dict)
	require.NoError(t, err)

	engine := sampling.NewEngine(termindex.NewFTSIndex(store.DB()), store, mat)
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	deps := Deps{
		Corpus:     store,
		Dictionary: dict,
		Sampler:    engine,
		Ranges:     mat,
		Reports:    report.NewSynthesizer(dict, engine, store, mat, report.Config{}),
		Glosses:    glosses,
		Cache:      cache.New(nil, 0),
		Metrics:    metrics.New(),
	}
	srv := NewServer(deps, cfg, "test", nil)
	return srv, srv.Router()
}

func get(t *testing.T, h http.Handler, path string, params url.Values) *httptest.ResponseRecorder {
	t.Helper()
	target := path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

func TestHandleSearch(t *testing.T) {
	_, h := newTestServer(t, true)
	w := get(t, h, "/api/v1/search", url.Values{"term": {"豆腐"}, "sample_size": {"10"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.SearchResponse
	decode(t, w, &resp)
	require.Len(t, resp.Samples, 3)
	assert.Equal(t, []int64{5, 40, 120}, []int64{resp.Samples[0].SegmentID, resp.Samples[1].SegmentID, resp.Samples[2].SegmentID})
	assert.Equal(t, "B", resp.Samples[2].Source)
	assert.Equal(t, 2, resp.Sources)
	assert.NotEmpty(t, resp.Generation)
}

func TestHandleSearch_BadRequests(t *testing.T) {
	_, h := newTestServer(t, true)
	cases := []url.Values{
		{"term": {""}},
		{"term": {"豆腐"}, "sample_size": {"lots"}},
		{"term": {"豆腐"}, "sample_size": {"-1"}},
	}
	for _, params := range cases {
		w := get(t, h, "/api/v1/search", params)
		assert.Equal(t, http.StatusBadRequest, w.Code, params.Encode())
		assert.Contains(t, w.Body.String(), "error")
	}
}

func TestHandleSearch_NoRanges(t *testing.T) {
	_, h := newTestServer(t, false)
	w := get(t, h, "/api/v1/search", url.Values{"term": {"豆腐"}})
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.SearchResponse
	decode(t, w, &resp)
	assert.Empty(t, resp.Samples)
}

func TestHandleCount(t *testing.T) {
	_, h := newTestServer(t, true)

	w := get(t, h, "/api/v1/count", url.Values{"term": {"豆腐"}})
	require.Equal(t, http.StatusOK, w.Code)
	var total models.CountResponse
	decode(t, w, &total)
	require.NotNil(t, total.Total)
	assert.Equal(t, models.Count{Count: 3, Exact: true}, *total.Total)
	assert.Nil(t, total.PerSource)

	w = get(t, h, "/api/v1/count", url.Values{"term": {"豆腐"}, "cap": {"2"}, "per_source": {"true"}})
	require.Equal(t, http.StatusOK, w.Code)
	var per models.CountResponse
	decode(t, w, &per)
	assert.Nil(t, per.Total)
	require.Len(t, per.PerSource, 2)
	assert.Equal(t, models.Count{Count: 2, Exact: false}, per.PerSource[0].Count)
	assert.Equal(t, models.Count{Count: 1, Exact: true}, per.PerSource[1].Count)

	w = get(t, h, "/api/v1/count", url.Values{"term": {"豆腐"}, "per_source": {"yes"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRanked(t *testing.T) {
	_, h := newTestServer(t, true)
	w := get(t, h, "/api/v1/ranked", url.Values{"term": {"豆腐"}, "limit": {"5"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Results []*sampling.RankedSample `json:"results"`
	}
	decode(t, w, &resp)
	assert.Len(t, resp.Results, 3)
}

func TestHandleWordReport(t *testing.T) {
	_, h := newTestServer(t, true)
	w := get(t, h, "/api/v1/word_report", url.Values{"term": {"豆腐"}, "mode": {"full"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rep models.WordReport
	decode(t, w, &rep)
	assert.Equal(t, models.ModeFull, rep.Mode)
	require.Len(t, rep.Entries, 1)
	assert.Len(t, rep.Dialects.PronunciationOverlays, 1)
	assert.Len(t, rep.Dialects.LexicalDivergences, 1)
	require.Len(t, rep.Evidence, 3)
	assert.NotEmpty(t, rep.Evidence[0].Context)
	assert.False(t, rep.Failed())

	w = get(t, h, "/api/v1/word_report", url.Values{"term": {"豆腐"}, "mode": {"verbose"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSourceRanges(t *testing.T) {
	_, h := newTestServer(t, false)
	w := get(t, h, "/api/v1/source_ranges", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var empty models.RangeSnapshot
	decode(t, w, &empty)
	assert.Empty(t, empty.Ranges)

	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, httptest.NewRequest(http.MethodPost, "/api/v1/admin/source_ranges", nil))
	require.Equal(t, http.StatusOK, pw.Code, pw.Body.String())

	w = get(t, h, "/api/v1/source_ranges", nil)
	var snap models.RangeSnapshot
	decode(t, w, &snap)
	require.Len(t, snap.Ranges, 2)
	assert.Equal(t, models.SourceRange{SourceName: "A", MinID: 1, MaxID: 100, SegmentCount: 100}, snap.Ranges[0])
	assert.Equal(t, models.SourceRange{SourceName: "B", MinID: 101, MaxID: 150, SegmentCount: 50}, snap.Ranges[1])
}

func TestHandleLookupAndDialect(t *testing.T) {
	_, h := newTestServer(t, true)

	w := get(t, h, "/api/v1/lookup", url.Values{"headword": {"豆腐"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bean curd")

	w = get(t, h, "/api/v1/lookup", url.Values{"headword": {"麒麟"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = get(t, h, "/api/v1/lookup", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = get(t, h, "/api/v1/dialect", url.Values{"headword": {"走"}})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Dialects models.DialectSection `json:"dialects"`
	}
	decode(t, w, &resp)
	assert.Len(t, resp.Dialects.PronunciationOverlays, 1)
	assert.Len(t, resp.Dialects.LexicalDivergences, 2)
}

func TestHandleGlosses(t *testing.T) {
	_, h := newTestServer(t, true)
	w := get(t, h, "/api/v1/glosses", url.Values{"q": {"bean curd"}, "lang": {"en"}})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Results []*glossindex.Hit `json:"results"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "豆腐", resp.Results[0].Simplified)

	w = get(t, h, "/api/v1/glosses", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGlosses_Suggestion(t *testing.T) {
	_, h := newTestServer(t, true)
	w := get(t, h, "/api/v1/glosses", url.Values{"q": {"baen curdd"}})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Results    []*glossindex.Hit `json:"results"`
		Suggestion string            `json:"suggestion"`
	}
	decode(t, w, &resp)
	assert.Empty(t, resp.Results)
	assert.Equal(t, "bean curd", resp.Suggestion)
}

func TestHandleGlosses_NotEnabled(t *testing.T) {
	srv, _ := newTestServer(t, true)
	srv.deps.Glosses = nil
	w := get(t, srv.Router(), "/api/v1/glosses", url.Values{"q": {"tofu"}})
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestHandleStats(t *testing.T) {
	_, h := newTestServer(t, true)
	w := get(t, h, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Corpus struct {
			Sources  int64 `json:"sources"`
			Segments int64 `json:"segments"`
		} `json:"corpus"`
		SourceRanges int `json:"source_ranges"`
		Dictionary   struct {
			Headwords int64 `json:"headwords"`
		} `json:"dictionary"`
	}
	decode(t, w, &resp)
	assert.Equal(t, int64(2), resp.Corpus.Sources)
	assert.Equal(t, int64(150), resp.Corpus.Segments)
	assert.Equal(t, 2, resp.SourceRanges)
	assert.Equal(t, int64(2), resp.Dictionary.Headwords)
}

func TestHandleServerStatsHealthAndMetrics(t *testing.T) {
	_, h := newTestServer(t, true)

	w := get(t, h, "/api/v1/server_stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]interface{}
	decode(t, w, &stats)
	assert.Equal(t, "test", stats["version"])
	assert.Contains(t, stats, "uptime_seconds")

	w = get(t, h, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(t, h, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "zhcorpus_http_requests_total"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(sampling.ErrInvalidArgument))
	assert.Equal(t, http.StatusConflict, statusFor(ranges.ErrOverlappingRanges))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(report.ErrReportFailed))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
