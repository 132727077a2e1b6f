// Package server exposes the metrics registry over HTTP for pull-based
// scraping, plus a health endpoint.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/airmon/airflow-process-exporter/internal/config"
)

const (
	// shutdownTimeout bounds graceful shutdown of in-flight scrapes.
	shutdownTimeout = 5 * time.Second

	// readHeaderTimeout guards against slow-header clients.
	readHeaderTimeout = 10 * time.Second
)

// Server serves the metrics endpoint until its context is cancelled.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// New creates a Server exposing metricsHandler at the configured metrics
// path, with a /healthz endpoint and a root redirect for convenience.
func New(cfg *config.Config, metricsHandler http.Handler, logger *zap.Logger) *Server {
	mux := newMux(cfg.Exporter.MetricsPath, metricsHandler)
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Exporter.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		logger: logger,
	}
}

func newMux(metricsPath string, metricsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, metricsHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if metricsPath != "/" {
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			http.Redirect(w, r, metricsPath, http.StatusFound)
		})
	}
	return mux
}

// Run starts the listener and blocks until the context is cancelled or the
// listener fails. Shutdown waits for in-flight scrapes up to a timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Serving metrics", zap.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
