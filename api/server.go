package api

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"

	"formintake/api/handlers"
	"formintake/config"
	"formintake/core/utils"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

type BackgroundWorker interface {
	StartWithContext(ctx context.Context)
	StopWithContext(ctx context.Context) error
}

type ServerDeps struct {
	Intake  handlers.IntakeProcessor
	DB      handlers.Pinger
	Metrics http.Handler
	HTTP    *HTTPMetrics
	Workers []BackgroundWorker
}

type Server struct {
	cfg     *config.AppConfig
	logger  *utils.Logger
	intake  handlers.IntakeProcessor
	db      handlers.Pinger
	metrics http.Handler
	httpM   *HTTPMetrics
	trusted []netip.Prefix
	workers []BackgroundWorker
	router  chi.Router
	httpSrv *http.Server
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		intake:  deps.Intake,
		db:      deps.DB,
		metrics: deps.Metrics,
		httpM:   deps.HTTP,
		trusted: parseTrustedProxies(cfg.TrustedProxies),
		workers: deps.Workers,
	}
	s.router = s.routes()
	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.httpM.middleware)

	webhook := handlers.NewWebhookHandler(s.cfg.Webhook, s.intake, s.logger)
	health := handlers.NewHealthHandler(s.db)

	r.MethodFunc(http.MethodPost, s.cfg.Webhook.Path, webhook.Receive)
	r.MethodFunc(http.MethodGet, "/healthz", health.Health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]string{"code": "app.not_found"}})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": map[string]string{"code": "app.method_not_allowed"}})
	})
	return r
}

// Run serves until ctx is cancelled, then drains requests and stops workers.
func (s *Server) Run(ctx context.Context) error {
	for _, w := range s.workers {
		w.StartWithContext(ctx)
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("HTTP listening on %s (webhook %s)", s.httpSrv.Addr, s.cfg.Webhook.Path)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorf("HTTP shutdown: %v", err)
	}
	for _, w := range s.workers {
		if err := w.StopWithContext(shutdownCtx); err != nil {
			s.logger.Errorf("worker stop: %v", err)
		}
	}
	return serveErr
}
