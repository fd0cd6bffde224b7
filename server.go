package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/oszuidwest/zwfm-meter/internal/capture"
	"github.com/oszuidwest/zwfm-meter/internal/config"
	"github.com/oszuidwest/zwfm-meter/internal/meter"
	"github.com/oszuidwest/zwfm-meter/internal/server"
	"github.com/oszuidwest/zwfm-meter/internal/types"
)

// Server is an HTTP server that exposes the meter's levels and status.
type Server struct {
	config  *config.Config
	engine  *meter.Engine
	capture *capture.Supervisor
}

// NewServer returns a new Server for the engine and its capture supervisor.
func NewServer(cfg *config.Config, engine *meter.Engine, sup *capture.Supervisor) *Server {
	return &Server{
		config:  cfg,
		engine:  engine,
		capture: sup,
	}
}

// status combines the engine status with the capture status.
func (s *Server) status() types.EngineStatus {
	status := s.engine.Status()
	if s.capture != nil {
		cs := s.capture.Status()
		status.Source = cs.Source
		status.Error = cs.Error
		status.Restarts = cs.Restarts
	}
	return status
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	server.NewHandler(s.engine, s.status, Version).Register(mux)
	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.System.Port)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.SetupRoutes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
