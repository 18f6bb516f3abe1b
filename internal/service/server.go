package service

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server HTTP server lifecycle shared by both binaries
type Server struct {
	name       string
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer creates a server; writeTimeout 0 keeps streaming responses open
func NewServer(name, addr string, handler http.Handler, writeTimeout time.Duration, logger *zap.Logger) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      writeTimeout,
	}
	return &Server{name: name, httpServer: s, logger: logger}
}

// Start blocks until the server stops; http.ErrServerClosed means a clean Stop
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("server", s.name), zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server", zap.String("server", s.name))
	return s.httpServer.Shutdown(ctx)
}
