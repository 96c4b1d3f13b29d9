package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/big0725/portfolio-pro/internal/models"
)

// writeServiceError maps core error kinds to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotPrivileged):
		WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, models.ErrScopeNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrScopeProtected):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrMarketDataUnavailable):
		WriteError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, models.ErrInsightGenerationFailed):
		WriteError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, models.ErrPersistenceFailed):
		WriteError(w, http.StatusInternalServerError, err.Error())
	default:
		WriteError(w, http.StatusBadRequest, err.Error())
	}
}

// parseWindow maps the ?window= query parameter to a series window.
// Unknown values fall back to the full series.
func parseWindow(r *http.Request) models.SeriesWindow {
	switch strings.ToLower(r.URL.Query().Get("window")) {
	case "7d":
		return models.Window7D
	case "30d":
		return models.Window30D
	case "1y":
		return models.Window1Y
	default:
		return models.WindowAll
	}
}

// --- Scope handlers ---

// handleScopesRoot handles GET /api/scopes (list) and POST /api/scopes (create).
func (s *Server) handleScopesRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		scopes, err := s.app.PortfolioService.ListScopes(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"scopes": scopes})
	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if !DecodeJSON(w, r, &req) {
			return
		}
		scope, err := s.app.PortfolioService.CreateScope(r.Context(), req.Name)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, scope)
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleScopeDelete handles DELETE /api/scopes/{name}.
func (s *Server) handleScopeDelete(w http.ResponseWriter, r *http.Request, scope string) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}
	if err := s.app.PortfolioService.DeleteScope(r.Context(), scope); err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"deleted": scope})
}

// --- Transaction handlers ---

// handleTransactions handles GET and POST /api/scopes/{scope}/transactions.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request, scope string) {
	switch r.Method {
	case http.MethodGet:
		txs, err := s.app.PortfolioService.ListTransactions(r.Context(), scope)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
	case http.MethodPost:
		var tx models.Transaction
		if !DecodeJSON(w, r, &tx) {
			return
		}
		created, err := s.app.PortfolioService.AddTransaction(r.Context(), scope, &tx)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, created)
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleTransactionDelete handles DELETE /api/scopes/{scope}/transactions/{id}.
func (s *Server) handleTransactionDelete(w http.ResponseWriter, r *http.Request, scope, id string) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}
	if id == "" {
		WriteError(w, http.StatusBadRequest, "transaction id is required in path")
		return
	}
	if err := s.app.PortfolioService.DeleteTransaction(r.Context(), scope, id); err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// --- Valuation handlers ---

// handleOverview handles GET /api/scopes/{scope}/overview. Read-only:
// no snapshot is written regardless of caller identity.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request, scope string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	result, err := s.app.PortfolioService.GetOverview(r.Context(), scope)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// handleRefresh handles POST /api/scopes/{scope}/refresh.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request, scope string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	result, err := s.app.PortfolioService.Refresh(r.Context(), scope)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// handleSeries handles GET /api/scopes/{scope}/series?window=.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request, scope string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	series, err := s.app.PortfolioService.GetSeries(r.Context(), scope, parseWindow(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"series": series})
}

// handleInsights handles GET /api/scopes/{scope}/insights?force=.
// The failed indicator rides alongside the cached content so a stale
// entry still renders while the vendor is down.
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request, scope string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	force := r.URL.Query().Get("force") == "true"
	ins, err := s.app.PortfolioService.GetInsight(r.Context(), scope, force)
	if err != nil && ins == nil {
		writeServiceError(w, err)
		return
	}
	resp := map[string]interface{}{
		"insight": ins,
		"failed":  ins != nil && ins.Failed,
	}
	if err != nil {
		resp["failed"] = true
	}
	WriteJSON(w, http.StatusOK, resp)
}

// handleChart handles GET /api/scopes/{scope}/chart?window=.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request, scope string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	png, err := s.app.PortfolioService.GetChart(r.Context(), scope, parseWindow(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// handleSnapshotsReset handles POST /api/scopes/{scope}/snapshots/reset.
func (s *Server) handleSnapshotsReset(w http.ResponseWriter, r *http.Request, scope string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.app.PortfolioService.ResetSnapshots(r.Context(), scope); err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
