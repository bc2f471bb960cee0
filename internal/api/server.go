package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"meteorite-explorer/internal/meteorite"
	"meteorite-explorer/internal/observability/metrics"
	"meteorite-explorer/pkg/logger"
)

// Explorer is the read side of the meteorite service used by the handlers.
type Explorer interface {
	Get(ctx context.Context, id int64) (meteorite.Meteorite, error)
	List(ctx context.Context, name string, page meteorite.PageRequest) (meteorite.Page, error)
	Search(ctx context.Context, filter meteorite.Filter, page meteorite.PageRequest) (meteorite.Page, error)
	Count(ctx context.Context) (int64, error)
	Trends(ctx context.Context) (map[int]int64, error)
	MassDistribution(ctx context.Context) (map[string]int64, error)
	Classification(ctx context.Context) (map[string]int64, error)
}

// Mounter adds extra routes, such as the explorer pages, to the server mux.
type Mounter interface {
	Register(mux *http.ServeMux)
}

// Server exposes the REST interface over HTTP.
type Server struct {
	addr              string
	explorer          Explorer
	collector         *metrics.Collector
	corsOrigins       []string
	readHeaderTimeout time.Duration
	shutdownTimeout   time.Duration
	serveMetrics      bool
	mounts            []Mounter
	log               *slog.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithCORSOrigins sets the origins allowed to call the API. "*" allows any.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithCollector sets where request metrics go.
func WithCollector(c *metrics.Collector) Option {
	return func(s *Server) {
		if c != nil {
			s.collector = c
		}
	}
}

// WithTimeouts sets the header read and graceful shutdown timeouts.
func WithTimeouts(readHeader, shutdown time.Duration) Option {
	return func(s *Server) {
		if readHeader > 0 {
			s.readHeaderTimeout = readHeader
		}
		if shutdown > 0 {
			s.shutdownTimeout = shutdown
		}
	}
}

// WithoutMetricsEndpoint stops the server from serving /metrics itself,
// for when a dedicated metrics listener is configured.
func WithoutMetricsEndpoint() Option {
	return func(s *Server) {
		s.serveMetrics = false
	}
}

// WithMount registers additional routes.
func WithMount(m Mounter) Option {
	return func(s *Server) {
		if m != nil {
			s.mounts = append(s.mounts, m)
		}
	}
}

// NewServer builds a Server for addr.
func NewServer(addr string, explorer Explorer, opts ...Option) *Server {
	s := &Server{
		addr:              addr,
		explorer:          explorer,
		collector:         metrics.Default,
		corsOrigins:       []string{"*"},
		readHeaderTimeout: 5 * time.Second,
		shutdownTimeout:   5 * time.Second,
		serveMetrics:      true,
		log:               logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the full middleware chain around the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/meteorites", s.handleList)
	mux.HandleFunc("GET /api/meteorites/search", s.handleSearch)
	mux.HandleFunc("GET /api/meteorites/{id}", s.handleGet)
	mux.HandleFunc("GET /api/meteorites/stats/trends", s.handleTrends)
	mux.HandleFunc("GET /api/meteorites/stats/mass-distribution", s.handleMassDistribution)
	mux.HandleFunc("GET /api/meteorites/stats/classification", s.handleClassification)
	mux.HandleFunc("GET /api/", handleUnknownEndpoint)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.serveMetrics {
		mux.Handle("GET /metrics", s.collector.Handler())
	}
	for _, m := range s.mounts {
		m.Register(mux)
	}

	var handler http.Handler = mux
	handler = recoverPanics(handler)
	handler = s.collector.Middleware(handler)
	handler = accessLog(handler)
	handler = cors(s.corsOrigins, handler)
	handler = requestID(handler)
	return handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: s.readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.log.InfoContext(ctx, "http server listening", slog.String("address", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("http server shutdown", slog.Any("error", err))
			return err
		}
		s.log.Info("http server stopped")
		return nil
	case err := <-errCh:
		return err
	}
}

// withContext rejects new requests once the root context is cancelled.
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeJSON(w, r, http.StatusServiceUnavailable, errorBody("UNAVAILABLE", "server is shutting down"))
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
