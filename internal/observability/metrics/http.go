package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type requestKey struct {
	handler string
	method  string
	code    string
}

type routeKey struct {
	handler string
	method  string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

// Collector accumulates request, import and cache metrics and renders them
// in the Prometheus text exposition format.
type Collector struct {
	mu          sync.Mutex
	requests    map[requestKey]uint64
	errors      map[routeKey]uint64
	latency     map[routeKey]*histogram
	imported    uint64
	skipped     uint64
	imports     uint64
	cacheHits   uint64
	cacheMisses uint64
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		requests: make(map[requestKey]uint64),
		errors:   make(map[routeKey]uint64),
		latency:  make(map[routeKey]*histogram),
	}
}

// Default is the process-wide collector behind the package functions.
var Default = NewCollector()

// ObserveHTTPRequest records one served request on Default.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	Default.ObserveHTTPRequest(handler, method, status, duration)
}

// ObserveImport records one imported batch on Default.
func ObserveImport(records, skipped int) {
	Default.ObserveImport(records, skipped)
}

// ObserveCacheLookup records a statistics cache hit or miss on Default.
func ObserveCacheLookup(hit bool) {
	Default.ObserveCacheLookup(hit)
}

// Handler exposes Default.
func Handler() http.Handler {
	return Default.Handler()
}

// ObserveHTTPRequest records one served request.
func (c *Collector) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests[requestKey{handler: handler, method: method, code: strconv.Itoa(status)}]++
	key := routeKey{handler: handler, method: method}
	if status >= 500 {
		c.errors[key]++
	}
	hist := c.latency[key]
	if hist == nil {
		hist = newHistogram()
		c.latency[key] = hist
	}
	hist.observe(duration.Seconds())
}

// ObserveImport records one imported batch.
func (c *Collector) ObserveImport(records, skipped int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.imports++
	c.imported += uint64(max(records, 0))
	c.skipped += uint64(max(skipped, 0))
}

// ObserveCacheLookup records a statistics cache hit or miss.
func (c *Collector) ObserveCacheLookup(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.cacheHits++
	} else {
		c.cacheMisses++
	}
}

func newHistogram() *histogram {
	buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// observe counts value in every bucket whose bound it does not exceed.
// Values above the last bound only show in the +Inf bucket, which is count.
func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			return
		}
	}
}

// Handler serves the collected metrics.
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, c.render())
	})
}

func (c *Collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	reqs := make([]requestKey, 0, len(c.requests))
	for key := range c.requests {
		reqs = append(reqs, key)
	}
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].handler != reqs[j].handler {
			return reqs[i].handler < reqs[j].handler
		}
		if reqs[i].method != reqs[j].method {
			return reqs[i].method < reqs[j].method
		}
		return reqs[i].code < reqs[j].code
	})
	errs := sortedRoutes(c.errors)
	lats := sortedRoutes(c.latency)

	var b strings.Builder
	b.Grow(2048)

	b.WriteString("# HELP meteorite_http_requests_total Total number of HTTP requests processed.\n")
	b.WriteString("# TYPE meteorite_http_requests_total counter\n")
	for _, key := range reqs {
		fmt.Fprintf(&b, "meteorite_http_requests_total{handler=\"%s\",method=\"%s\",code=\"%s\"} %d\n",
			escape(key.handler), escape(key.method), escape(key.code), c.requests[key])
	}

	b.WriteString("# HELP meteorite_http_request_errors_total Total number of HTTP requests that resulted in a server error.\n")
	b.WriteString("# TYPE meteorite_http_request_errors_total counter\n")
	for _, key := range errs {
		fmt.Fprintf(&b, "meteorite_http_request_errors_total{handler=\"%s\",method=\"%s\"} %d\n",
			escape(key.handler), escape(key.method), c.errors[key])
	}

	b.WriteString("# HELP meteorite_http_request_duration_seconds HTTP request duration in seconds.\n")
	b.WriteString("# TYPE meteorite_http_request_duration_seconds histogram\n")
	for _, key := range lats {
		hist := c.latency[key]
		labels := fmt.Sprintf("handler=\"%s\",method=\"%s\"", escape(key.handler), escape(key.method))
		for idx, bound := range hist.buckets {
			fmt.Fprintf(&b, "meteorite_http_request_duration_seconds_bucket{%s,le=\"%s\"} %d\n", labels, formatFloat(bound), hist.counts[idx])
		}
		fmt.Fprintf(&b, "meteorite_http_request_duration_seconds_bucket{%s,le=\"+Inf\"} %d\n", labels, hist.count)
		fmt.Fprintf(&b, "meteorite_http_request_duration_seconds_sum{%s} %s\n", labels, formatFloat(hist.sum))
		fmt.Fprintf(&b, "meteorite_http_request_duration_seconds_count{%s} %d\n", labels, hist.count)
	}

	writeCounter(&b, "meteorite_import_batches_total", "Number of imported record batches.", c.imports)
	writeCounter(&b, "meteorite_import_records_total", "Number of records stored by imports.", c.imported)
	writeCounter(&b, "meteorite_import_skipped_rows_total", "Number of source rows rejected by imports.", c.skipped)

	b.WriteString("# HELP meteorite_stats_cache_lookups_total Statistics cache lookups by result.\n")
	b.WriteString("# TYPE meteorite_stats_cache_lookups_total counter\n")
	fmt.Fprintf(&b, "meteorite_stats_cache_lookups_total{result=\"hit\"} %d\n", c.cacheHits)
	fmt.Fprintf(&b, "meteorite_stats_cache_lookups_total{result=\"miss\"} %d\n", c.cacheMisses)

	return b.String()
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, value)
}

func sortedRoutes[V any](m map[routeKey]V) []routeKey {
	keys := make([]routeKey, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].handler != keys[j].handler {
			return keys[i].handler < keys[j].handler
		}
		return keys[i].method < keys[j].method
	})
	return keys
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// StartServer serves Default on addr at /metrics until ctx is done.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
