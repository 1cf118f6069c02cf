// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

// Package api is the HTTP control plane over the link engine. It carries
// the operator-facing business rules (arming gates, brake interlocks, speed
// bookkeeping); the engine underneath only moves commands and telemetry.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/spectraloop/spectralink/pkg/spectralink"
)

// Server wraps the router and the http.Server lifecycle.
type Server struct {
	cfg  *spectralink.Config
	log  *slog.Logger
	http *http.Server
}

// NewServer builds the control-plane server over an engine.
func NewServer(engine Engine, cfg *spectralink.Config, log *slog.Logger) *Server {
	h := NewHandler(engine, cfg, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if cfg.Server.Username != "" {
		r.Use(basicAuth(cfg.Server.Username, cfg.Server.Password))
	}

	r.Route("/api", func(r chi.Router) {
		// The websocket stream must dodge the timeout middleware, so
		// bounded routes get their own group.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/status", h.Status)
			r.Get("/ping", h.Ping)
			r.Get("/test-connection", h.TestConnection)

			r.Get("/temperature", h.Temperature)
			r.Get("/temperature/realtime", h.TemperatureRealtime)

			r.Get("/reflector", h.Reflector)
			r.Post("/reflector/reset", h.ReflectorReset)
			r.Post("/reflector/calibrate", h.ReflectorCalibrate)

			r.Post("/system/arm", h.Arm)
			r.Post("/system/disarm", h.Disarm)

			r.Route("/motor/{num}", func(r chi.Router) {
				r.Post("/start", h.MotorStart)
				r.Post("/stop", h.MotorStop)
				r.Post("/speed", h.MotorSpeed)
			})

			r.Post("/levitation/{action}", h.Levitation)
			r.Post("/thrust/{action}", h.Thrust)

			r.Post("/brake/{action}", h.Brake)
			r.Post("/relay-brake/{action}", h.RelayBrake)
			r.Post("/emergency-stop", h.EmergencyStop)
			r.Post("/buzzer/off", h.BuzzerOff)
			r.Post("/temp-bypass/{action}", h.TempBypass)
			r.Post("/reconnect", h.Reconnect)
		})

		r.Get("/ws", h.WS)
	})

	return &Server{
		cfg: cfg,
		log: log.With("component", "server"),
		http: &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info("control plane listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// basicAuth guards every route with HTTP basic auth. Comparison is
// constant-time on both fields.
func basicAuth(username, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 ||
				subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="spectralink"`)
				errorResponse(w, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
