// Package server exposes queries and live feeds over HTTP. Non-streaming
// requests are answered with JSON; streaming requests hold the connection
// open as a server-sent event stream until the client goes away.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/sqlstream/internal/server/notifier"
	"github.com/leapstack-labs/sqlstream/internal/state"
	"github.com/leapstack-labs/sqlstream/internal/stream"
	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// DefaultListen is the address used when Config.Listen is empty.
const DefaultListen = ":8080"

const shutdownTimeout = 5 * time.Second

// Backend answers the non-streaming endpoints. *query.Executor satisfies it.
type Backend interface {
	Ping(ctx context.Context) error
	FindValues(ctx context.Context, text string, vars map[string]string) ([]core.MetricFindValue, error)
}

// SessionLister reads journaled sessions. *state.Journal satisfies it.
type SessionLister interface {
	List(ctx context.Context, limit int) ([]state.SessionRecord, error)
}

// Config holds configuration for the server.
type Config struct {
	Listen     string
	Dispatcher *stream.Dispatcher
	Backend    Backend

	// Sessions and Notifier back the session history endpoints; both are
	// optional.
	Sessions SessionLister
	Notifier *notifier.Notifier

	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Server is the HTTP front end.
type Server struct {
	listen string
	router chi.Router
	logger *slog.Logger
}

// NewServer creates a new server instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "server")

	listen := cfg.Listen
	if listen == "" {
		listen = DefaultListen
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notifier.New()
	}

	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.RequestLogger(&middleware.DefaultLogFormatter{
			Logger:  slog.NewLogLogger(logger.Handler(), slog.LevelDebug),
			NoColor: true,
		}),
		middleware.Recoverer,
	)
	SetupRoutes(r, NewHandlers(cfg, logger))

	return &Server{listen: listen, router: r, logger: logger}
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve starts the server and blocks until the context is cancelled.
// Open streams are closed when ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listen, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting server", "addr", ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.router,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Debug("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
