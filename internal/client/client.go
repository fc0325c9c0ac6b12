// Package client talks to the alertwall control API. The alert monitor
// uses it to install block rules and the CLI uses it for rule management.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"grimm.is/alertwall/internal/brand"
)

// ErrUnreachable marks transport failures: refused connections, DNS errors,
// timeouts. The request may not have reached the API.
var ErrUnreachable = errors.New("control API unreachable")

// APIError is a response with an unexpected HTTP status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// Rule mirrors the API rule representation.
// Defined locally to avoid importing the firewall package.
type Rule struct {
	ID          int    `json:"id"`
	Target      string `json:"target"`
	Protocol    string `json:"protocol"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// CreateRuleResponse is the body of a 201 from POST /api/rules.
type CreateRuleResponse struct {
	Message string `json:"message"`
	Rule    Rule   `json:"rule"`
}

// Health mirrors GET /api/health.
type Health struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Backend string `json:"backend"`
	Chain   string `json:"chain"`
	Version string `json:"version"`
}

// Event is one message of the /api/events stream.
type Event struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// RuleEvent is the decoded payload of a rule.added or rule.deleted message.
type RuleEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Backend   string    `json:"source"`
	Rule      struct {
		ID     int    `json:"id"`
		Target string `json:"target"`
		Source string `json:"source"`
		Chain  string `json:"chain"`
	} `json:"data"`
}

// RuleEvent decodes the message payload.
func (e Event) RuleEvent() (RuleEvent, error) {
	var re RuleEvent
	if err := json.Unmarshal(e.Data, &re); err != nil {
		return RuleEvent{}, fmt.Errorf("decode %s event: %w", e.Topic, err)
	}
	return re, nil
}

// HTTPClient is the control API client.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientOption configures the HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key sent as X-API-Key.
func WithAPIKey(key string) ClientOption {
	return func(c *HTTPClient) {
		c.apiKey = key
	}
}

// WithTimeout bounds every request, including connection setup.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = d
	}
}

// NewHTTPClient creates a client for baseURL (e.g. http://127.0.0.1:5000).
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API base URL.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// doRequest performs an HTTP request, decodes a JSON response into result
// and returns the status code. Statuses outside 2xx become *APIError.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body, result any) (int, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", brand.UserAgent())
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: reading response: %w", ErrUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// errorMessage extracts {"error": "..."} when present.
func errorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		if e.Details != "" {
			return e.Error + ": " + e.Details
		}
		return e.Error
	}
	return strings.TrimSpace(string(body))
}

// ListRules returns the rules in enforced order.
func (c *HTTPClient) ListRules(ctx context.Context) ([]Rule, error) {
	rules := []Rule{}
	if _, err := c.doRequest(ctx, http.MethodGet, "/api/rules", nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// CreateRule asks the API to insert a rule for address. Only 201 Created
// counts as success; any other 2xx is returned as *APIError.
func (c *HTTPClient) CreateRule(ctx context.Context, address, action string) (*CreateRuleResponse, error) {
	body := map[string]string{"ip": address, "action": action}
	var resp CreateRuleResponse
	status, err := c.doRequest(ctx, http.MethodPost, "/api/rules", body, &resp)
	if status == http.StatusCreated {
		// The rule exists once 201 is seen, even if the body was unreadable.
		return &resp, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, &APIError{StatusCode: status, Message: "expected 201 Created"}
}

// DeleteRule removes the rule at position id. A non-empty source makes the
// API refuse the delete when the rule there no longer matches it.
func (c *HTTPClient) DeleteRule(ctx context.Context, id int, source string) (string, error) {
	body := map[string]any{"id": id}
	if source != "" {
		body["source"] = source
	}
	var resp struct {
		Message string `json:"message"`
	}
	if _, err := c.doRequest(ctx, http.MethodDelete, "/api/rules", body, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Health returns the API health summary.
func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var h Health
	if _, err := c.doRequest(ctx, http.MethodGet, "/api/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// WatchEvents streams rule events until ctx is done or the connection drops.
func (c *HTTPClient) WatchEvents(ctx context.Context, onEvent func(Event)) error {
	u, err := url.Parse(c.baseURL + "/api/events")
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	headers := http.Header{}
	if c.apiKey != "" {
		headers.Set("X-API-Key", c.apiKey)
	}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var evt Event
		if err := conn.ReadJSON(&evt); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}
		onEvent(evt)
	}
}

// IsUnreachable reports whether err is a transport failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
