package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	xerrors "meteorite-explorer/internal/errors"
	"meteorite-explorer/internal/meteorite"
	"meteorite-explorer/internal/observability/metrics"
	"meteorite-explorer/pkg/logger"
)

func f64(v float64) *float64 { return &v }

func year(v int) *int { return &v }

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	store := meteorite.NewMemoryStore()
	err := store.SaveAll(context.Background(), []meteorite.Meteorite{
		{ID: 1, Name: "Aachen", RecClass: "L5", Fall: "Fell", Mass: f64(21), Year: year(1880), RecLat: f64(50.775), RecLong: f64(6.08333)},
		{ID: 2, Name: "Aarhus", RecClass: "H6", Fall: "Fell", Mass: f64(720), Year: year(1951)},
		{ID: 6, Name: "Abee", RecClass: "EH4", Fall: "Fell", Mass: f64(107000), Year: year(1952)},
		{ID: 10, Name: "Acapulco", RecClass: "Acapulcoite", Fall: "Found", Mass: f64(1914), Year: year(1976)},
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	opts = append([]Option{WithCollector(metrics.NewCollector())}, opts...)
	return NewServer(":0", meteorite.NewService(store), opts...)
}

func do(t *testing.T, h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHandleGet(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := do(t, h, http.MethodGet, "/api/meteorites/6", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}
	got := decode[meteorite.Meteorite](t, rec)
	if got.Name != "Abee" || got.RecClass != "EH4" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.RecLat != nil {
		t.Fatalf("unknown coordinates must encode as null")
	}
}

func TestHandleGetErrors(t *testing.T) {
	h := newTestServer(t).Handler()

	t.Run("not found", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/meteorites/404", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
		body := decode[errorPayload](t, rec)
		if body.Error.Code != string(meteorite.CodeMeteoriteNotFound) {
			t.Fatalf("unexpected error body: %+v", body)
		}
	})

	t.Run("non numeric id", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/meteorites/abc", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("unknown endpoint", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/landings", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
		body := decode[errorPayload](t, rec)
		if body.Error.Code != string(xerrors.CodeNotFound) {
			t.Fatalf("unexpected error body: %+v", body)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/meteorites/1", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestHandleList(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := do(t, h, http.MethodGet, "/api/meteorites?page=1&size=2&sort=mass,desc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	page := decode[meteorite.Page](t, rec)
	if page.TotalElements != 4 || page.TotalPages != 2 || page.Number != 1 || page.Size != 2 {
		t.Fatalf("unexpected page envelope: %+v", page)
	}
	if len(page.Content) != 2 || page.Content[0].ID != 2 || page.Content[1].ID != 1 {
		t.Fatalf("unexpected content: %+v", page.Content)
	}

	rec = do(t, h, http.MethodGet, "/api/meteorites?name=aa", nil)
	page = decode[meteorite.Page](t, rec)
	if page.TotalElements != 2 {
		t.Fatalf("name filter: %+v", page)
	}
}

func TestHandleListHugePage(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := do(t, h, http.MethodGet, "/api/meteorites?page=9223372036854775807&size=20", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	page := decode[meteorite.Page](t, rec)
	if !page.Empty || len(page.Content) != 0 || page.TotalElements != 4 {
		t.Fatalf("expected an empty page past the end: %+v", page)
	}
}

func TestHandleSearch(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := do(t, h, http.MethodGet, "/api/meteorites/search?fall=fell&minMass=500&maxMass=200000", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	page := decode[meteorite.Page](t, rec)
	if page.TotalElements != 2 || page.Content[0].ID != 2 || page.Content[1].ID != 6 {
		t.Fatalf("unexpected search result: %+v", page)
	}

	rec = do(t, h, http.MethodGet, "/api/meteorites/search?recclass=l5&year=1880", nil)
	page = decode[meteorite.Page](t, rec)
	if page.TotalElements != 1 || page.Content[0].Name != "Aachen" {
		t.Fatalf("unexpected search result: %+v", page)
	}
}

func TestBadQueryParameters(t *testing.T) {
	h := newTestServer(t).Handler()
	for _, target := range []string{
		"/api/meteorites?page=two",
		"/api/meteorites?size=1.5",
		"/api/meteorites?sort=colour",
		"/api/meteorites/search?year=recent",
		"/api/meteorites/search?minMass=heavy",
		"/api/meteorites/search?minMass=10&maxMass=1",
	} {
		rec := do(t, h, http.MethodGet, target, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
		body := decode[errorPayload](t, rec)
		if body.Error.Code == "" || body.Error.Message == "" {
			t.Fatalf("%s: empty error body %q", target, rec.Body.String())
		}
	}
}

func TestHandleStatistics(t *testing.T) {
	h := newTestServer(t).Handler()

	trends := decode[map[string]int64](t, do(t, h, http.MethodGet, "/api/meteorites/stats/trends", nil))
	if trends["1880"] != 1 || len(trends) != 4 {
		t.Fatalf("unexpected trends: %v", trends)
	}

	mass := decode[map[string]int64](t, do(t, h, http.MethodGet, "/api/meteorites/stats/mass-distribution", nil))
	if mass[meteorite.MassUnder1kg] != 2 || mass[meteorite.Mass1To10kg] != 1 || mass[meteorite.MassOver10kg] != 1 {
		t.Fatalf("unexpected mass distribution: %v", mass)
	}

	classes := decode[map[string]int64](t, do(t, h, http.MethodGet, "/api/meteorites/stats/classification", nil))
	if classes["EH4"] != 1 || len(classes) != 4 {
		t.Fatalf("unexpected classification: %v", classes)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t).Handler()

	health := decode[healthResponse](t, do(t, h, http.MethodGet, "/healthz", nil))
	if health.Status != "ok" || health.Records != 4 {
		t.Fatalf("unexpected health: %+v", health)
	}

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	if !strings.Contains(rec.Body.String(), `meteorite_http_requests_total{handler="GET /healthz",method="GET",code="200"} 1`) {
		t.Fatalf("health request not counted:\n%s", rec.Body.String())
	}

	h = newTestServer(t, WithoutMetricsEndpoint()).Handler()
	if rec := do(t, h, http.MethodGet, "/metrics", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("metrics endpoint should be disabled, got %d", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := do(t, h, http.MethodGet, "/healthz", http.Header{HeaderRequestID: {"abc-123"}})
	if got := rec.Header().Get(HeaderRequestID); got != "abc-123" {
		t.Fatalf("request id not propagated: %q", got)
	}

	rec = do(t, h, http.MethodGet, "/api/meteorites/404", nil)
	if got := rec.Header().Get(HeaderRequestID); len(got) != 36 {
		t.Fatalf("expected generated uuid, got %q", got)
	}
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, WithCORSOrigins("https://explorer.example")).Handler()

	rec := do(t, h, http.MethodGet, "/healthz", http.Header{"Origin": {"https://explorer.example"}})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://explorer.example" {
		t.Fatalf("allowed origin not echoed: %q", got)
	}

	rec = do(t, h, http.MethodGet, "/healthz", http.Header{"Origin": {"https://evil.example"}})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin allowed: %q", got)
	}

	rec = do(t, h, http.MethodOptions, "/api/meteorites", http.Header{
		"Origin":                        {"https://explorer.example"},
		"Access-Control-Request-Method": {"GET"},
	})
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatalf("unexpected preflight response: %d %v", rec.Code, rec.Header())
	}
}

type panickingExplorer struct{ Explorer }

func (panickingExplorer) Count(context.Context) (int64, error) { panic("boom") }

type failingExplorer struct{ Explorer }

func (failingExplorer) Trends(context.Context) (map[int]int64, error) {
	return nil, errors.New("dial tcp 10.0.0.5:3306: connection refused")
}

func TestServerFailures(t *testing.T) {
	h := NewServer(":0", panickingExplorer{}, WithCollector(metrics.NewCollector())).Handler()
	if rec := do(t, h, http.MethodGet, "/healthz", nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("panic not recovered as 500: %d", rec.Code)
	}

	h = NewServer(":0", failingExplorer{}, WithCollector(metrics.NewCollector())).Handler()
	rec := do(t, h, http.MethodGet, "/api/meteorites/stats/trends", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Fatalf("internal error leaked to caller: %s", rec.Body.String())
	}

	h = NewServer(":0", nil, WithCollector(metrics.NewCollector())).Handler()
	if rec := do(t, h, http.MethodGet, "/api/meteorites", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a service, got %d", rec.Code)
	}
}

func TestWriteErrorLogsBySeverity(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		level     string
		retryable bool
	}{
		{"not found", meteorite.ErrNotFound, "INFO", false},
		{"unavailable", xerrors.New(xerrors.CodeUnavailable, ""), "WARN", true},
		{"store failure", xerrors.Wrap(meteorite.CodeStoreFailure, errors.New("disk"), "query"), "ERROR", true},
		{"uncoded", errors.New("boom"), "ERROR", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(logger.WithContext(req.Context(), log))
			rec := httptest.NewRecorder()

			writeError(rec, req, tc.err)

			var entry struct {
				Level string `json:"level"`
				Code  string `json:"code"`
			}
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("decode log %q: %v", buf.String(), err)
			}
			if entry.Level != tc.level || entry.Code != string(xerrors.CodeOf(tc.err)) {
				t.Fatalf("unexpected log entry: %s", buf.String())
			}
			body := decode[errorPayload](t, rec)
			if body.Error.Retryable != tc.retryable {
				t.Fatalf("retryable: got %v want %v", body.Error.Retryable, tc.retryable)
			}
		})
	}
}

func TestWriteJSONEncodingFailure(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	writeJSON(rec, req, http.StatusOK, map[string]float64{"mass": math.NaN()})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for an unencodable body, got %d", rec.Code)
	}
	body := decode[errorPayload](t, rec)
	if body.Error.Code != string(xerrors.CodeUnknown) {
		t.Fatalf("unexpected fallback body: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	writeJSON(rec, req, http.StatusCreated, map[string]int{"records": 2})
	if rec.Code != http.StatusCreated || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected response: %d %v", rec.Code, rec.Header())
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := newTestServer(t, WithTimeouts(time.Second, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, ln) }()

	transport := &http.Transport{DisableKeepAlives: true}
	client := &http.Client{Transport: transport, Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	transport.CloseIdleConnections()
}
