// Package server exposes the mirror over HTTP: a websocket stream of
// edits, a metrics dump, and a health probe.
package server

import (
	"net/http"
	"strings"

	"livedirs/internal/logging"
	"livedirs/internal/metrics"
	"livedirs/internal/tree"
)

type Options struct {
	Model *tree.Model
	// AuthToken, when non-empty, is required on every request.
	AuthToken string
	// AllowedOrigins restricts websocket upgrades. Empty allows all.
	AllowedOrigins []string
	Logger         *logging.Logger
	Registry       *metrics.Registry
}

type Server struct {
	options Options
}

func New(options Options) *Server {
	if options.Registry == nil {
		options.Registry = metrics.Default
	}
	return &Server{options: options}
}

// Routes returns the HTTP handler for the full API surface.
func (server *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/edits", &EditsHandler{
		Model:          server.options.Model,
		AuthToken:      server.options.AuthToken,
		AllowedOrigins: server.options.AllowedOrigins,
		Logger:         server.options.Logger,
	})
	mux.HandleFunc("/api/metrics", server.handleMetrics)
	mux.HandleFunc("/api/healthz", server.handleHealth)
	return mux
}

func (server *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !validateToken(r, server.options.AuthToken) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	server.options.Registry.Dump(w)
}

func (server *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// validateToken accepts the token as a bearer header or a query
// parameter. An empty configured token disables the check.
func validateToken(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") && strings.TrimPrefix(header, "Bearer ") == token {
		return true
	}
	return r.URL.Query().Get("token") == token
}

func isOriginAllowed(r *http.Request, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, candidate := range allowed {
		if candidate == origin {
			return true
		}
	}
	return false
}
