package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"carmarket/internal/platform/logger"

	"go.uber.org/zap"
)

// Server wraps the HTTP listener with lifecycle management.
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
}

func NewServer(port string, handler *Handler, log *logger.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + port,
			Handler:      handler.Routes(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: log.Named("HTTPServer"),
	}
}

// Run blocks serving requests until the listener is closed.
func (s *Server) Run() error {
	s.logger.Info("HTTP server starting", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
