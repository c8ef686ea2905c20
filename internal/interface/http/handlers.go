// Package http implements the operational HTTP interface of the bot:
// health probes, usage statistics and a public university catalog.
package http

import (
	"net/http"
	"time"

	"github.com/admit-hub/admission-calc-bot/internal/application/query"
	"github.com/admit-hub/admission-calc-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the API index.
// The "GET /" pattern also catches unknown paths, so anything that is
// not exactly the root gets a JSON 404 instead of the info page.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Endpoint not found")
		return
	}

	info := map[string]interface{}{
		"name":        "Admission Calculator Bot API",
		"version":     "v1",
		"description": "Operational API for the Telegram admission score calculator",
		"endpoints": map[string]string{
			"health":       "/health",
			"ready":        "/ready",
			"live":         "/live",
			"universities": "/api/v1/universities",
			"stats":        "/api/v1/stats",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth serves the aggregated health verdict.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	// Fallback body when no checker is wired
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady serves the Kubernetes readiness probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive serves the Kubernetes liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleMetrics dumps the bot metrics snapshot.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]interface{}{
		"server": map[string]interface{}{
			"uptime_seconds": s.Uptime().Seconds(),
			"running":        s.IsRunning(),
		},
	}

	if s.deps.Metrics != nil {
		if snapshot := s.deps.Metrics.MetricsSnapshot(); snapshot != nil {
			metrics["bot"] = snapshot
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIVERSITY CATALOG HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// universityEntry is the wire representation of a registry entry.
type universityEntry struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Method string `json:"method"`
}

// handleGetUniversities serves GET /api/v1/universities.
func (s *Server) handleGetUniversities(w http.ResponseWriter, r *http.Request) {
	if s.deps.Registry == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "University registry not configured")
		return
	}

	page := getQueryParamInt(r, "page", 1)
	perPage := getQueryParamInt(r, "per_page", 20)
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	entries, hasMore := s.deps.Registry.Page(page, perPage)

	out := make([]universityEntry, 0, len(entries))
	for _, u := range entries {
		out = append(out, universityEntry{
			ID:     string(u.ID),
			Name:   u.Name,
			Method: u.Method.Title(),
		})
	}

	meta := &ResponseMeta{
		TotalCount: s.deps.Registry.Len(),
		Page:       page,
		PageSize:   perPage,
		HasMore:    hasMore,
	}

	writeJSONWithMeta(w, r, http.StatusOK, out, meta)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleGetStats serves GET /api/v1/stats.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.StatsQuery == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Stats handler not configured")
		return
	}

	q := query.GetUsageStatsQuery{
		SkipCache: getQueryParamBool(r, "fresh"),
	}

	if raw := r.URL.Query().Get("window"); raw != "" {
		window, err := time.ParseDuration(raw)
		if err != nil || window <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "window must be a positive duration, e.g. 24h")
			return
		}
		q.Window = window
	}

	result, err := s.deps.StatsQuery.Handle(r.Context(), q)
	if err != nil {
		s.logger.Error("failed to get usage stats", "error", err, "request_id", getRequestID(r.Context()))
		switch {
		case shared.IsValidation(err):
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid stats query")
		case shared.IsExternalService(err):
			writeJSONError(w, http.StatusServiceUnavailable, "storage_unavailable", "Stats backend is unavailable")
		default:
			writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to get usage stats")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
