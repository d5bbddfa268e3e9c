package observability

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Health tracks process readiness.
// The process is ready once the Wyoming listener is bound and stays ready
// until the provider reports an authentication failure.
type Health struct {
	listening  atomic.Bool
	authFailed atomic.Bool
}

// NewHealth creates a Health in the not-ready state.
func NewHealth() *Health {
	return &Health{}
}

// MarkListening records that the Wyoming listener is accepting connections.
func (h *Health) MarkListening() { h.listening.Store(true) }

// MarkAuthFailed records a provider authentication failure.
func (h *Health) MarkAuthFailed() {
	if !h.authFailed.Swap(true) {
		log.Error().Msg("STT provider authentication failed; marking service not ready")
	}
}

// Ready reports readiness and, when not ready, the reason.
func (h *Health) Ready() (bool, string) {
	switch {
	case h.authFailed.Load():
		return false, "stt provider authentication failed"
	case !h.listening.Load():
		return false, "wyoming listener not started"
	default:
		return true, ""
	}
}

// Server provides HTTP endpoints for observability.
type Server struct {
	server *http.Server
	addr   string
}

// NewServer creates a new observability HTTP server serving handler.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// ListenAndServe blocks until the server stops. A graceful shutdown returns nil.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.addr).Msg("Starting observability HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Observability HTTP server error")
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down observability HTTP server")
	return s.server.Shutdown(ctx)
}
