package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/big0725/portfolio-pro/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)

	// Scopes
	mux.HandleFunc("/api/scopes/", s.routeScopes)
	mux.HandleFunc("/api/scopes", s.handleScopesRoot)
}

// routeScopes dispatches /api/scopes/{name}/* to the appropriate handler.
func (s *Server) routeScopes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/scopes/")
	if path == "" {
		s.handleScopesRoot(w, r)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	scope := parts[0]
	subpath := ""
	if len(parts) > 1 {
		subpath = parts[1]
	}

	switch subpath {
	case "":
		s.handleScopeDelete(w, r, scope)
	case "transactions":
		s.handleTransactions(w, r, scope)
	case "overview":
		s.handleOverview(w, r, scope)
	case "refresh":
		s.handleRefresh(w, r, scope)
	case "series":
		s.handleSeries(w, r, scope)
	case "insights":
		s.handleInsights(w, r, scope)
	case "chart":
		s.handleChart(w, r, scope)
	case "snapshots/reset":
		s.handleSnapshotsReset(w, r, scope)
	default:
		if strings.HasPrefix(subpath, "transactions/") {
			id := PathParam(r, "/api/scopes/"+scope+"/transactions/", "")
			s.handleTransactionDelete(w, r, scope, id)
			return
		}
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

// --- System handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetFullVersion(),
		"uptime":  time.Since(s.app.StartupTime).Round(time.Second).String(),
	})
}

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}
