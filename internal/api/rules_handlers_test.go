package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/alertwall/internal/firewall"
)

func TestListRules_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/rules", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestListRules_EngineFailure(t *testing.T) {
	env := newTestEnv(t)
	env.driver.FailOn = func(op string) error {
		if op == "list" {
			return errors.New("iptables: permission denied")
		}
		return nil
	}

	rr := env.do(t, http.MethodGet, "/api/rules", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decode[ErrorResponse](t, rr)
	assert.Equal(t, "Failed to list rules", body.Error)
}

func TestCreateRule(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/rules", `{"ip":"10.0.0.5","action":"drop"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var body struct {
		Message string        `json:"message"`
		Rule    firewall.Rule `json:"rule"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Rule added successfully", body.Message)
	assert.Equal(t, firewall.Rule{ID: 1, Target: "DROP", Protocol: "all", Source: "10.0.0.5", Destination: "any"}, body.Rule)

	rr = env.do(t, http.MethodGet, "/api/rules", "")
	rules := decode[[]firewall.Rule](t, rr)
	require.Len(t, rules, 1)
	assert.Equal(t, "10.0.0.5", rules[0].Source)
}

func TestCreateRule_DefaultsToDrop(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/rules", `{"ip":"192.168.1.0/24"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rules := decode[[]firewall.Rule](t, env.do(t, http.MethodGet, "/api/rules", ""))
	require.Len(t, rules, 1)
	assert.Equal(t, "DROP", rules[0].Target)
	assert.Equal(t, "192.168.1.0/24", rules[0].Source)
}

func TestCreateRule_NewestFirst(t *testing.T) {
	env := newTestEnv(t)

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/rules", `{"ip":"`+ip+`"}`).Code)
	}

	rules := decode[[]firewall.Rule](t, env.do(t, http.MethodGet, "/api/rules", ""))
	require.Len(t, rules, 3)
	assert.Equal(t, []string{"10.0.0.3", "10.0.0.2", "10.0.0.1"},
		[]string{rules[0].Source, rules[1].Source, rules[2].Source})
	assert.Equal(t, []int{1, 2, 3}, []int{rules[0].ID, rules[1].ID, rules[2].ID})
}

func TestCreateRule_BadRequests(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		error string
	}{
		{"invalid json", `{"ip":`, "Invalid JSON"},
		{"not an object", `"10.0.0.1"`, "Invalid JSON"},
		{"missing ip", `{"action":"DROP"}`, "Invalid input. 'ip' and 'action' are required."},
		{"blank ip", `{"ip":"   "}`, "Invalid input. 'ip' and 'action' are required."},
		{"invalid ip", `{"ip":"999.1.1.1"}`, "Invalid IP address"},
		{"shell metacharacters", `{"ip":"1.2.3.4; reboot"}`, "Invalid IP address"},
		{"invalid action", `{"ip":"10.0.0.1","action":"LOG"}`, "Invalid action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rr := env.do(t, "POST", "/api/rules", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			body := decode[ErrorResponse](t, rr)
			assert.Equal(t, tt.error, body.Error)
			assert.Equal(t, 0, env.driver.Len())
		})
	}
}

func TestCreateRule_EngineFailure(t *testing.T) {
	env := newTestEnv(t)
	env.driver.FailOn = func(op string) error {
		if op == "insert" {
			return errors.New("iptables: Resource temporarily unavailable")
		}
		return nil
	}

	rr := env.do(t, http.MethodPost, "/api/rules", `{"ip":"10.0.0.1"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decode[ErrorResponse](t, rr)
	assert.Equal(t, "Failed to add rule", body.Error)
	assert.Contains(t, body.Details, "Resource temporarily unavailable")
}

func TestDeleteRule(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"numeric id", `{"id":2}`},
		{"string id", `{"id":"2"}`},
		{"padded string id", `{"id":" 2 "}`},
		{"with matching source", `{"id":2,"source":"10.0.0.1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.do(t, http.MethodPost, "/api/rules", `{"ip":"10.0.0.1"}`)
			env.do(t, http.MethodPost, "/api/rules", `{"ip":"10.0.0.2"}`)

			rr := env.do(t, http.MethodDelete, "/api/rules", tt.body)
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			body := decode[MessageResponse](t, rr)
			assert.Equal(t, "Rule 2 deleted successfully", body.Message)

			rules := decode[[]firewall.Rule](t, env.do(t, http.MethodGet, "/api/rules", ""))
			require.Len(t, rules, 1)
			assert.Equal(t, "10.0.0.2", rules[0].Source)
		})
	}
}

func TestDeleteRule_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing id", `{}`},
		{"null id", `{"id":null}`},
		{"empty string id", `{"id":""}`},
		{"non-numeric id", `{"id":"abc"}`},
		{"fractional id", `{"id":1.5}`},
		{"zero id", `{"id":0}`},
		{"negative id", `{"id":-3}`},
		{"bad source guard", `{"id":1,"source":"nope"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.do(t, http.MethodPost, "/api/rules", `{"ip":"10.0.0.1"}`)

			rr := env.do(t, http.MethodDelete, "/api/rules", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.Equal(t, 1, env.driver.Len())
		})
	}
}

func TestDeleteRule_NotFoundIsServerError(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/rules", `{"ip":"10.0.0.1"}`)

	rr := env.do(t, http.MethodDelete, "/api/rules", `{"id":5}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decode[ErrorResponse](t, rr)
	assert.Equal(t, "Failed to delete rule", body.Error)
	assert.Contains(t, body.Details, "not found")
}

func TestDeleteRule_SourceGuardMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/rules", `{"ip":"10.0.0.1"}`)
	env.do(t, http.MethodPost, "/api/rules", `{"ip":"10.0.0.2"}`)

	// Position 1 now holds 10.0.0.2; a stale id must not delete it.
	rr := env.do(t, http.MethodDelete, "/api/rules", `{"id":1,"source":"10.0.0.1"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, 2, env.driver.Len())
}

func TestParseRuleID(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr error
	}{
		{`7`, 7, nil},
		{`"7"`, 7, nil},
		{``, 0, errMissingID},
		{`null`, 0, errMissingID},
		{`""`, 0, errMissingID},
		{`"x"`, 0, errInvalidID},
		{`true`, 0, errInvalidID},
		{`[1]`, 0, errInvalidID},
		{`2.5`, 0, errInvalidID},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseRuleID(json.RawMessage(tt.raw))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
