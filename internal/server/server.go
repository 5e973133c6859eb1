package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"pixelmill/internal/config"
	"pixelmill/internal/logging"
	"pixelmill/internal/store"
	"pixelmill/internal/worker"
)

// Server exposes the HTTP surface: CSV batch upload, batch status queries,
// processed image downloads, a webhook echo endpoint, and health reporting.
type Server struct {
	cfg    *config.Config
	store  *store.Store
	worker *worker.Worker
	logger *slog.Logger

	listener net.Listener
	server   *http.Server
}

// New builds a stopped server. The worker may be nil; health reporting then
// omits pass information.
func New(cfg *config.Config, st *store.Store, w *worker.Worker, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}

	srv := &Server{
		cfg:    cfg,
		store:  st,
		worker: w,
		logger: logging.NewComponentLogger(logger, "server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/upload", srv.handleUpload)
	mux.HandleFunc("/batches", srv.handleBatches)
	mux.HandleFunc("/status/", srv.handleStatus)
	mux.HandleFunc("/webhook", srv.handleWebhookEcho)
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.Handle("/processed/", http.StripPrefix("/processed/",
		http.FileServer(http.Dir(cfg.Paths.OutputDir))))

	srv.server = &http.Server{
		Handler:           srv.withRequestLogging(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// withRequestLogging tags each request with a correlation id and logs it on
// completion.
func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		ctx := logging.WithRequestID(r.Context(), requestID)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		s.logger.Debug("request handled",
			logging.String(logging.FieldCorrelationID, requestID),
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

// Start binds the listener and serves until the context is cancelled or Stop
// is called.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.Server.Bind)
	if bind == "" {
		return fmt.Errorf("server bind address is empty")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", bind, err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down, letting in-flight requests drain.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound address, or empty when the server is stopped.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
