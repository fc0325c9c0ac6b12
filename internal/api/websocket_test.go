package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/alertwall/internal/events"
)

func dialEvents(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(env.server.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	env.server.ws.Attach(ctx, env.hub)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return env.server.ws.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestEvents_StreamsRuleMutations(t *testing.T) {
	env := newTestEnv(t)
	conn := dialEvents(t, env)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/rules", `{"ip":"10.0.0.9"}`).Code)

	msg := readMessage(t, conn)
	assert.Equal(t, string(events.EventRuleAdded), msg.Topic)

	raw, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	var evt struct {
		Type   string          `json:"type"`
		Source string          `json:"source"`
		Data   events.RuleData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &evt))
	assert.Equal(t, "memory", evt.Source)
	assert.Equal(t, "10.0.0.9", evt.Data.Source)
	assert.Equal(t, "DROP", evt.Data.Target)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/rules", `{"id":1}`).Code)
	msg = readMessage(t, conn)
	assert.Equal(t, string(events.EventRuleDeleted), msg.Topic)
}

func TestWSManager_TopicFilter(t *testing.T) {
	m := NewWSManager(newTestEnv(t).server.logger)

	all := &wsClient{send: make(chan []byte, 4), topics: map[string]bool{}}
	onlyDeletes := &wsClient{send: make(chan []byte, 4), topics: map[string]bool{"rule.deleted": true}}
	m.register(all)
	m.register(onlyDeletes)

	m.Publish("rule.added", 1)
	m.Publish("rule.deleted", 2)

	assert.Len(t, all.send, 2)
	assert.Len(t, onlyDeletes.send, 1)

	m.unregister(all)
	m.unregister(onlyDeletes)
	assert.Equal(t, 0, m.ClientCount())
}

func TestWSManager_SlowClientDoesNotBlock(t *testing.T) {
	m := NewWSManager(newTestEnv(t).server.logger)
	c := &wsClient{send: make(chan []byte, 1), topics: map[string]bool{}}
	m.register(c)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			m.Publish("rule.added", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full client buffer")
	}
	assert.Len(t, c.send, 1)
}

func TestUpgrader_CheckOrigin(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "fw:5000", true},
		{"http://fw:5000", "fw:5000", true},
		{"https://fw:5000", "fw:5000", true},
		{"http://localhost:3000", "fw:5000", true},
		{"http://evil.example", "fw:5000", false},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/events", nil)
		r.Host = tt.host
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, upgrader.CheckOrigin(r), tt.origin)
	}
}
