package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/config"
	"log/slog"
	"net/http"
	"time"
)

type Server struct {
	http   *http.Server
	logger *slog.Logger
}

func New(handler http.Handler, config *config.Server, logger *slog.Logger) *Server {
	s := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.RegisterOnShutdown(func() {
		s.SetKeepAlivesEnabled(false)
	})

	return &Server{http: s, logger: logger.With("component", "http")}
}

func (s *Server) Start() error {
	s.logger.Info("starting http server", slog.String("addr", s.http.Addr))

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("could not start http server: %w", err)
	}
	return nil
}

func (s *Server) Close() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("server shutdown signal received, starting graceful shutdown")

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server graceful shutdown failed, forcing close", slog.Any("error", err))
		return s.http.Close()
	}

	s.logger.Info("http server shutdown complete")
	return nil
}
