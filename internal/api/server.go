// Package api exposes the ingest pipeline over HTTP: the upload
// endpoint, read-only views of records and twins, the live alert
// socket, and the static mount for stored images.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sitewatch/sitewatch/internal/alerts"
	"github.com/sitewatch/sitewatch/internal/capture"
	"github.com/sitewatch/sitewatch/internal/ingest"
	"github.com/sitewatch/sitewatch/internal/twin"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Addr       string
	Service    *ingest.Service
	Repository capture.Repository
	Store      twin.Store
	Hub        *alerts.Hub
	UploadsDir string
	Namespace  string
	Logger     *slog.Logger
	StartTime  time.Time
	Version    string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
