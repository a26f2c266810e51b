// Package server provides the HTTP server and handlers.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bryan-buckman/buildlog/internal/auth"
	"github.com/bryan-buckman/buildlog/internal/feed"
	"github.com/bryan-buckman/buildlog/internal/metrics"
	"github.com/bryan-buckman/buildlog/internal/ratelimit"
	"github.com/bryan-buckman/buildlog/internal/realtime"
	"github.com/bryan-buckman/buildlog/internal/recovery"
)

// MaxBodyBytes is the default cap on request bodies.
const MaxBodyBytes = 10 << 10

// APIVersion is reported by /api/version. Clients compare it to decide
// whether to run the update command.
const APIVersion = 1

// Database is what the health check needs from storage.
type Database interface {
	Ping(ctx context.Context) error
	DatabaseType() string
}

// Options configures the HTTP surface.
type Options struct {
	Addr            string
	PublicURL       string
	TrustProxy      bool
	MaxBodyBytes    int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Deps are the collaborators the handlers call.
type Deps struct {
	DB       Database
	Feeds    *feed.Service
	Auth     *auth.Verifier
	Recovery *recovery.Service
	Limiter  ratelimit.Limiter
	Hub      *realtime.Hub
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Server is the main HTTP server.
type Server struct {
	opts     Options
	db       Database
	feeds    *feed.Service
	auth     *auth.Verifier
	recovery *recovery.Service
	limiter  ratelimit.Limiter
	hub      *realtime.Hub
	metrics  *metrics.Metrics
	logger   *slog.Logger
	router   chi.Router
	now      func() time.Time
}

// New creates a new server.
func New(opts Options, deps Deps) *Server {
	s := &Server{
		opts:     opts,
		db:       deps.DB,
		feeds:    deps.Feeds,
		auth:     deps.Auth,
		recovery: deps.Recovery,
		limiter:  deps.Limiter,
		hub:      deps.Hub,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      time.Now,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, notFoundRoute)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, methodNotAllowed)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Writes.
		r.Group(func(r chi.Router) {
			r.Use(s.limitBody)
			r.Post("/check", s.handleCheck)
			r.Post("/claim", s.handleClaim)
			r.Post("/post/{slug}", s.handlePost)
			r.Get("/post/{slug}", s.handleLatest)
			r.Delete("/post/{slug}", s.handleDeleteLatest)
			r.Post("/nest/{slug}", s.handleNest)
			r.Patch("/profile/{slug}", s.handleProfile)
			r.Post("/recover", s.handleRecover)
			r.Post("/recover/verify", s.handleRecoverVerify)
		})

		// Reads.
		r.Get("/active", s.handleActive)
		r.Get("/discover", s.handleDiscover)
		r.Get("/global", s.handleGlobal)
		r.Get("/feed/{slug}", s.handleFeed)
		r.Get("/feed/{slug}/rss", s.handleFeedRSS)
		r.Get("/stats", s.handleStats)
		r.Get("/health", s.handleHealth)
		r.Get("/version", s.handleVersion)
		if s.hub != nil {
			r.Handle("/stream", s.hub)
		}
	})

	s.router = r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
