// Package server exposes annotation runs, recordings and history over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vedantwpatil/FormFrame/internal/annotate"
	"github.com/vedantwpatil/FormFrame/internal/history"
	"github.com/vedantwpatil/FormFrame/internal/log"
	"github.com/vedantwpatil/FormFrame/internal/recording"
)

// History is the ledger the server records to and lists from.
type History interface {
	annotate.Ledger
	List(ctx context.Context, limit int) ([]history.Entry, error)
	Get(ctx context.Context, id string) (history.Entry, error)
}

type Config struct {
	Listen string
	// InputDir confines the video_path of POST /runs; defaults to "input".
	InputDir      string
	RunsPerMinute int
	FallbackStill bool
	Run           annotate.Options
}

type Deps struct {
	Deps    annotate.Deps
	URLs    *recording.ObjectURLs
	History History
}

// Server serves the run API. Runs share one object URL registry.
type Server struct {
	cfg     Config
	urls    *recording.ObjectURLs
	history History
	runs    *Runs
	router  chi.Router
	http    *http.Server
	logger  zerolog.Logger
}

func New(cfg Config, deps Deps) *Server {
	if deps.URLs == nil {
		deps.URLs = recording.NewObjectURLs()
	}
	if cfg.RunsPerMinute <= 0 {
		cfg.RunsPerMinute = 10
	}
	if cfg.InputDir == "" {
		cfg.InputDir = "input"
	}
	runDeps := deps.Deps
	runDeps.URLs = deps.URLs
	if deps.History != nil {
		runDeps.Ledger = deps.History
	}

	s := &Server{
		cfg:     cfg,
		urls:    deps.URLs,
		history: deps.History,
		runs:    NewRuns(cfg.Run, runDeps, cfg.FallbackStill),
		logger:  log.WithComponent("server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(requestLog(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/runs", func(r chi.Router) {
		r.With(runRateLimit(s.cfg.RunsPerMinute)).Post("/", s.handleCreateRun)
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Delete("/{id}", s.handleCancelRun)
	})
	r.Get("/blobs/{id}", s.handleBlob)
	r.Get("/recordings/{name}", s.handleRecording)
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Runs exposes the run manager.
func (s *Server) Runs() *Runs {
	return s.runs
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Listen).Msg("http server listening")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting requests and cancels active runs.
func (s *Server) Shutdown(ctx context.Context) error {
	var httpErr error
	if s.http != nil {
		httpErr = s.http.Shutdown(ctx)
	}
	runErr := s.runs.Shutdown(ctx)
	s.logger.Info().Msg("server stopped")
	return errors.Join(httpErr, runErr)
}
