package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"grimm.is/alertwall/internal/client"
	"grimm.is/alertwall/internal/config"
)

func rules(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := runRules(context.Background(), &out, &errOut, append([]string{"-url", url}, args...))
	return out.String(), err
}

func TestRules_AddListDelete(t *testing.T) {
	driver, url := startAPI(t, nil)

	out, err := rules(t, url, "add", "10.0.0.5")
	require.NoError(t, err)
	assert.Contains(t, out, "Rule added successfully: DROP 10.0.0.5")

	out, err = rules(t, url, "add", "10.0.0.6", "reject")
	require.NoError(t, err)
	assert.Contains(t, out, "REJECT 10.0.0.6")
	assert.Equal(t, 2, driver.Len())

	out, err = rules(t, url, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Rules in "+config.DefaultChain)
	assert.Contains(t, out, "10.0.0.5")
	assert.Contains(t, out, "10.0.0.6")

	out, err = rules(t, url, "delete", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Rule 1 deleted successfully")
	assert.Equal(t, 1, driver.Len())
}

func TestRules_ListEmpty(t *testing.T) {
	_, url := startAPI(t, nil)

	out, err := rules(t, url, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "no rules installed")
}

func TestRules_DeleteWithSourceGuard(t *testing.T) {
	driver, url := startAPI(t, nil)
	_, err := rules(t, url, "add", "10.0.0.5")
	require.NoError(t, err)

	_, err = rules(t, url, "-source", "10.0.0.9", "delete", "1")
	require.Error(t, err)
	assert.Equal(t, 1, driver.Len())

	_, err = rules(t, url, "-source", "10.0.0.5", "delete", "1")
	require.NoError(t, err)
	assert.Equal(t, 0, driver.Len())
}

func TestRules_APIErrors(t *testing.T) {
	_, url := startAPI(t, nil)

	_, err := rules(t, url, "add", "bad!addr")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, client.StatusCode(err))

	_, err = rules(t, url, "delete", "7")
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, client.StatusCode(err))
}

func TestRules_APIKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	driver, url := startAPI(t, &config.APIConfig{APIKeyHash: string(hash)})

	_, err = rules(t, url, "add", "10.0.0.5")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, client.StatusCode(err))

	_, err = rules(t, url, "-api-key", "s3cret", "add", "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, 1, driver.Len())
}

func TestRules_Status(t *testing.T) {
	_, url := startAPI(t, nil)

	out, err := rules(t, url, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "memory")
}

func TestRules_Unreachable(t *testing.T) {
	_, err := rules(t, "http://127.0.0.1:1", "-timeout", "1s", "list")
	require.Error(t, err)
	assert.True(t, client.IsUnreachable(err))
}

func TestRules_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"flush"}},
		{"add without ip", []string{"add"}},
		{"add too many", []string{"add", "10.0.0.5", "DROP", "extra"}},
		{"delete without id", []string{"delete"}},
		{"delete bad id", []string{"delete", "abc"}},
		{"delete zero id", []string{"delete", "0"}},
		{"unknown flag", []string{"-bogus", "list"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rules(t, "http://127.0.0.1:1", tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestRules_URLFromConfig(t *testing.T) {
	driver, url := startAPI(t, nil)
	path := writeFile(t, "alertwall.hcl", fmt.Sprintf("watch {\n  api_url = %q\n}\n", url))

	var out, errOut bytes.Buffer
	err := runRules(context.Background(), &out, &errOut, []string{"-c", path, "add", "10.0.0.5"})
	require.NoError(t, err)
	assert.Equal(t, 1, driver.Len())
}

func TestRules_Watch(t *testing.T) {
	_, url := startAPI(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- runRules(ctx, &out, &bytes.Buffer{}, []string{"-url", url, "watch"})
	}()

	// Keep adding rules until the stream is attached and one arrives.
	apiClient := client.NewHTTPClient(url)
	n := 0
	waitFor(t, func() bool {
		n++
		apiClient.CreateRule(context.Background(), fmt.Sprintf("10.0.1.%d", n), "DROP")
		return strings.Contains(out.String(), "added")
	})
	assert.Contains(t, out.String(), "DROP")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop")
	}
}
