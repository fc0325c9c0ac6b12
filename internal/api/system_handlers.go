package api

import (
	"net/http"
	"time"

	"grimm.is/alertwall/internal/audit"
	"grimm.is/alertwall/internal/brand"
	"grimm.is/alertwall/internal/clock"
	"grimm.is/alertwall/internal/logging"
)

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Backend string `json:"backend"`
	Chain   string `json:"chain"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := clock.Since(s.startTime)
	s.metrics.Uptime.Set(uptime.Seconds())

	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Uptime:  uptime.Round(time.Second).String(),
		Backend: s.store.Backend(),
		Chain:   s.store.Chain(),
		Version: brand.Version,
	})
}

// handleLogs returns recent entries from the in-memory log buffer.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100, 5000)
	source := r.URL.Query().Get("source")

	entries := logging.GetAppLogBuffer().GetLast(limit, source)
	if entries == nil {
		entries = []logging.AppLogEntry{}
	}
	WriteJSON(w, http.StatusOK, entries)
}

// handleAudit returns recent rule mutations, newest first.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		WriteError(w, http.StatusServiceUnavailable, "Audit trail is disabled", "set api.audit_db to enable it")
		return
	}

	limit := queryInt(r, "limit", 100, 1000)
	action := r.URL.Query().Get("action")
	if action != "" && action != audit.ActionRuleCreate && action != audit.ActionRuleDelete {
		WriteError(w, http.StatusBadRequest, "Unknown audit action", action)
		return
	}

	evts, err := s.audit.Recent(action, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to read audit trail", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, evts)
}
