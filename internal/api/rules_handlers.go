package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"grimm.is/alertwall/internal/audit"
	"grimm.is/alertwall/internal/firewall"
)

// CreateRuleRequest is the body of POST /api/rules.
type CreateRuleRequest struct {
	IP     string `json:"ip"`
	Action string `json:"action"`
}

// DeleteRuleRequest is the body of DELETE /api/rules. ID accepts a JSON
// number or a numeric string.
type DeleteRuleRequest struct {
	ID     json.RawMessage `json:"id"`
	Source string          `json:"source,omitempty"`
}

var (
	errMissingID = errors.New("'id' is required")
	errInvalidID = errors.New("'id' must be a positive integer")
)

// parseRuleID decodes a rule id given as 3 or "3".
func parseRuleID(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errMissingID
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, errInvalidID
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return 0, errMissingID
		}
	}

	id, err := strconv.Atoi(text)
	if err != nil {
		return 0, errInvalidID
	}
	return id, nil
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.store.List(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list rules", err.Error())
		return
	}
	if rules == nil {
		rules = []firewall.Rule{}
	}
	WriteJSON(w, http.StatusOK, rules)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.recordAudit(r, audit.ActionRuleCreate, "", http.StatusBadRequest, map[string]any{"error": "invalid json"})
		WriteError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if strings.TrimSpace(req.IP) == "" {
		s.recordAudit(r, audit.ActionRuleCreate, "", http.StatusBadRequest, map[string]any{"error": "missing ip"})
		WriteError(w, http.StatusBadRequest, "Invalid input. 'ip' and 'action' are required.")
		return
	}

	rule, err := s.store.Create(r.Context(), req.IP, req.Action)
	if err != nil {
		status, msg := createErrorStatus(err)
		s.recordAudit(r, audit.ActionRuleCreate, req.IP, status, map[string]any{
			"action": req.Action, "error": err.Error(),
		})
		WriteError(w, status, msg, err.Error())
		return
	}

	s.recordAudit(r, audit.ActionRuleCreate, rule.Source, http.StatusCreated, map[string]any{
		"action": rule.Target, "id": rule.ID,
	})
	WriteJSON(w, http.StatusCreated, MessageResponse{Message: "Rule added successfully", Rule: rule})
}

func createErrorStatus(err error) (int, string) {
	var vErr *firewall.ValidationError
	if errors.As(err, &vErr) {
		if vErr.Field == "action" {
			return http.StatusBadRequest, "Invalid action"
		}
		return http.StatusBadRequest, "Invalid IP address"
	}
	return http.StatusInternalServerError, "Failed to add rule"
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	var req DeleteRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.recordAudit(r, audit.ActionRuleDelete, "", http.StatusBadRequest, map[string]any{"error": "invalid json"})
		WriteError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	id, err := parseRuleID(req.ID)
	if err != nil {
		s.recordAudit(r, audit.ActionRuleDelete, string(req.ID), http.StatusBadRequest, map[string]any{"error": err.Error()})
		WriteError(w, http.StatusBadRequest, "Invalid input. 'id' is required.", err.Error())
		return
	}

	resource := strconv.Itoa(id)
	rule, err := s.store.Delete(r.Context(), id, req.Source)
	if err != nil {
		// Not-found is reported as an engine failure: ids are positions and
		// the caller is expected to re-list.
		status := http.StatusInternalServerError
		var vErr *firewall.ValidationError
		if errors.As(err, &vErr) {
			status = http.StatusBadRequest
		}
		s.recordAudit(r, audit.ActionRuleDelete, resource, status, map[string]any{
			"source": req.Source, "error": err.Error(),
		})
		WriteError(w, status, "Failed to delete rule", err.Error())
		return
	}

	s.recordAudit(r, audit.ActionRuleDelete, resource, http.StatusOK, map[string]any{
		"source": rule.Source, "target": rule.Target,
	})
	WriteJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("Rule %d deleted successfully", id)})
}

// recordAudit persists a mutation attempt. Audit failures are logged, never
// surfaced to the client.
func (s *Server) recordAudit(r *http.Request, action, resource string, status int, details map[string]any) {
	s.logger.Audit(action, resource, details)
	if s.audit == nil {
		return
	}
	err := s.audit.Write(audit.Event{
		RequestID: RequestID(r.Context()),
		Action:    action,
		Resource:  resource,
		Details:   details,
		Status:    status,
		IP:        getClientIP(r),
	})
	if err != nil {
		s.logger.Warn("audit write failed", "action", action, "error", err)
	}
}
