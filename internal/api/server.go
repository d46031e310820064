package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfoundry/foresight/pkg/config"
)

// Server is the operator HTTP server.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
	config     *config.Config
}

// NewServer creates the HTTP server around a router.
func NewServer(cfg *config.Config, log zerolog.Logger, router http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log:    log.With().Str("component", "api").Logger(),
		config: cfg,
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().
		Str("port", s.config.Port).
		Str("env", s.config.Env).
		Msg("starting API server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down API server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
