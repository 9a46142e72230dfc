package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/harun/quill/internal/observability"
	"github.com/harun/quill/internal/tracing"
	"github.com/harun/quill/pkg/agent"
	"github.com/harun/quill/pkg/ledger"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Runner executes agent runs.
type Runner interface {
	Run(ctx context.Context, req agent.RunRequest) (*agent.RunResponse, error)
	Converse(ctx context.Context, req agent.RunRequest) (*agent.RunResponse, error)
}

// Approver releases withheld actions.
type Approver interface {
	Approve(ctx context.Context, entryID string) (*agent.ApprovalResult, error)
}

// Ledger is the read and advance surface of the ledger.
type Ledger interface {
	Get(ctx context.Context, id string) (ledger.Entry, error)
	Advance(ctx context.Context, id string, status ledger.Status) (ledger.Entry, error)
	URL(id string) string
}

// Config holds server configuration
type Config struct {
	Addr           string
	Runner         Runner
	Approver       Approver
	Ledger         Ledger
	AllowedOrigins []string
	RateLimit      RateLimit
	// MaxBodyBytes caps request bodies. Defaults to 1 MiB.
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
	Logger          zerolog.Logger
}

// Server is the HTTP surface for runs and ledger actions.
type Server struct {
	addr            string
	runner          Runner
	approver        Approver
	ledger          Ledger
	origins         []string
	limiters        *limiterSet
	maxBody         int64
	shutdownTimeout time.Duration
	logger          zerolog.Logger
	httpServer      *http.Server
}

// New validates cfg and builds a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Approver == nil {
		return nil, fmt.Errorf("approver is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Server{
		addr:            cfg.Addr,
		runner:          cfg.Runner,
		approver:        cfg.Approver,
		ledger:          cfg.Ledger,
		origins:         origins,
		limiters:        newLimiterSet(cfg.RateLimit),
		maxBody:         cfg.MaxBodyBytes,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          cfg.Logger.With().Str("component", "server").Logger(),
	}, nil
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.traceRequests)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", observability.MetricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/agent/run", s.handleRun)
		r.Post("/agent/converse", s.handleConverse)

		r.Route("/ledger/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetEntry)
			r.Post("/approve", s.handleApprove)
			r.Post("/status", s.handleAdvance)
		})
	})

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
	})
	return c.Handler(r)
}

// Start listens on the configured address and serves until ctx is done or
// the listener fails. It shuts down gracefully on cancellation.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down http server: %w", err)
		}
		return nil
	}
}

// traceRequests seeds tracing values and logs each request.
func (s *Server) traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := tracing.NewRequestContext(r.Context())
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			ctx = tracing.WithRequestID(ctx, reqID)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
