package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/thinkrealty/leadflow/internal/ratelimit"
	"github.com/thinkrealty/leadflow/internal/service/leads"
)

// Server is the LeadFlow HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	LeadSvc *leads.Service
	Pinger  Pinger
	Logger  *slog.Logger

	// Limiter throttles the public capture endpoint per client IP.
	// Nil disables rate limiting.
	Limiter ratelimit.Limiter

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		LeadSvc:             cfg.LeadSvc,
		Pinger:              cfg.Pinger,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()

	// Capture is the only endpoint exposed to the public internet
	// (web forms, portal webhooks), so it alone gets rate limited.
	capture := ratelimit.Middleware(cfg.Limiter, cfg.Logger, ratelimit.IPKeyFunc,
		func(r *http.Request) string { return RequestIDFromContext(r.Context()) },
	)

	// Lead pipeline.
	mux.Handle("POST /api/v1/leads", capture(http.HandlerFunc(h.HandleCaptureLead)))
	mux.HandleFunc("GET /api/v1/leads/{lead_id}", h.HandleGetLead)
	mux.HandleFunc("PUT /api/v1/leads/{lead_id}/update", h.HandleUpdateLead)
	mux.HandleFunc("POST /api/v1/leads/{lead_id}/reassign", h.HandleReassignLead)

	// Health (no envelope surprises: same JSON envelope as everything else).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
