package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bayonhq/coagent"
	"github.com/bayonhq/coagent/api/handlers"
	"github.com/bayonhq/coagent/config"
)

// server wires the engine into HTTP listeners: the API server and an
// optional Prometheus scrape endpoint.
type server struct {
	cfg    *config.Config
	engine *coagent.Engine
	logger *zap.Logger

	api     *http.Server
	metrics *http.Server
}

func newServer(cfg *config.Config, engine *coagent.Engine, version string, logger *zap.Logger) *server {
	wf := handlers.NewWorkflowHandler(engine, logger)
	health := handlers.NewHealthHandler(version)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /version", health.HandleVersion)
	mux.HandleFunc("POST /api/v1/workflows", wf.HandleSubmit)
	mux.HandleFunc("GET /api/v1/workflows", wf.HandleList)
	mux.HandleFunc("GET /api/v1/workflows/{id}", wf.HandleStatus)
	mux.HandleFunc("POST /api/v1/workflows/{id}/cancel", wf.HandleCancel)

	s := &server{
		cfg:    cfg,
		engine: engine,
		logger: logger,
		api: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      withRecovery(withRequestLog(mux, logger), logger),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	if cfg.Server.MetricsPort > 0 {
		mm := http.NewServeMux()
		mm.Handle("GET /metrics", promhttp.Handler())
		s.metrics = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
			Handler: mm,
		}
	}

	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("api server listening", zap.String("addr", s.api.Addr))
		if err := s.api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	if s.metrics != nil {
		g.Go(func() error {
			s.logger.Info("metrics server listening", zap.String("addr", s.metrics.Addr))
			if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := s.api.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("api shutdown: %w", err))
		}
		if s.metrics != nil {
			if err := s.metrics.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
			}
		}
		if err := s.engine.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("engine close: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// statusWriter captures the response code for access logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func withRequestLog(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)

		logger.Info("http request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func withRecovery(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("handler panic",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
