package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCollectorRender(t *testing.T) {
	c := NewCollector()
	c.ObserveHTTPRequest("GET /api/meteorites/{id}", http.MethodGet, http.StatusOK, 20*time.Millisecond)
	c.ObserveHTTPRequest("GET /api/meteorites/{id}", http.MethodGet, http.StatusInternalServerError, 7*time.Second)
	c.ObserveImport(500, 3)
	c.ObserveImport(20, 0)
	c.ObserveCacheLookup(true)
	c.ObserveCacheLookup(false)
	c.ObserveCacheLookup(false)

	out := c.render()
	for _, want := range []string{
		`meteorite_http_requests_total{handler="GET /api/meteorites/{id}",method="GET",code="200"} 1`,
		`meteorite_http_requests_total{handler="GET /api/meteorites/{id}",method="GET",code="500"} 1`,
		`meteorite_http_request_errors_total{handler="GET /api/meteorites/{id}",method="GET"} 1`,
		`meteorite_http_request_duration_seconds_bucket{handler="GET /api/meteorites/{id}",method="GET",le="0.025"} 1`,
		`meteorite_http_request_duration_seconds_bucket{handler="GET /api/meteorites/{id}",method="GET",le="5"} 1`,
		`meteorite_http_request_duration_seconds_bucket{handler="GET /api/meteorites/{id}",method="GET",le="+Inf"} 2`,
		`meteorite_http_request_duration_seconds_count{handler="GET /api/meteorites/{id}",method="GET"} 2`,
		"meteorite_import_batches_total 2",
		"meteorite_import_records_total 520",
		"meteorite_import_skipped_rows_total 3",
		`meteorite_stats_cache_lookups_total{result="hit"} 1`,
		`meteorite_stats_cache_lookups_total{result="miss"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	c := NewCollector()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/meteorites/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := c.Middleware(mux)

	for _, path := range []string{"/api/meteorites/1", "/api/meteorites/2", "/missing"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := c.render()
	if !strings.Contains(out, `meteorite_http_requests_total{handler="GET /api/meteorites/{id}",method="GET",code="404"} 2`) {
		t.Fatalf("route pattern not used as label:\n%s", out)
	}
	if !strings.Contains(out, `meteorite_http_requests_total{handler="unmatched",method="GET",code="404"} 1`) {
		t.Fatalf("unmatched request not recorded:\n%s", out)
	}
}

func TestHandlerContentType(t *testing.T) {
	c := NewCollector()
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(string(body), "# TYPE meteorite_http_requests_total counter") {
		t.Fatalf("unexpected body:\n%s", body)
	}
}

func TestEscape(t *testing.T) {
	if got := escape("a\"b\\c\nd"); got != `a\"b\\cd` {
		t.Fatalf("escape: %q", got)
	}
}
