package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAuthAPI(t *testing.T) *httptest.Server {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      "u1",
		"username": "ada",
		"name":     "Ada Lovelace",
		"email":    "ada@example.test",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req struct {
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req.Password != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"session": map[string]any{"access_token": tok, "refresh_token": "r-1"},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeCLIConfig(t *testing.T, apiURL, redisURL string) string {
	t.Helper()
	body := "api:\n  base_url: " + apiURL + "\n"
	if redisURL != "" {
		body += "redis_url: " + redisURL + "\n"
	}
	path := filepath.Join(t.TempDir(), "tasklane.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out, _, err := runCLIWithStderr(t, stdin, args...)
	return out, err
}

func runCLIWithStderr(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestLoginWhoamiLogout(t *testing.T) {
	api := fakeAuthAPI(t)
	mr := miniredis.RunT(t)
	cfg := writeCLIConfig(t, api.URL, "redis://"+mr.Addr())

	out, err := runCLI(t, "pw\n", "--config", cfg, "login", "-u", "ada", "--password-stdin", "--remember")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as Ada Lovelace")
	assert.Contains(t, out, "Next: project_selection")

	out, err = runCLI(t, "", "--config", cfg, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "User:    Ada Lovelace")
	assert.Contains(t, out, "Email:   ada@example.test")
	assert.Contains(t, out, "Scope:   durable")

	out, err = runCLI(t, "", "--config", cfg, "logout")
	require.NoError(t, err)
	assert.Equal(t, "Signed out\n", out)

	out, err = runCLI(t, "", "--config", cfg, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "Not signed in (anonymous)\n", out)
}

func TestLogin_PerProcessSessionDoesNotPersist(t *testing.T) {
	api := fakeAuthAPI(t)
	mr := miniredis.RunT(t)
	cfg := writeCLIConfig(t, api.URL, "redis://"+mr.Addr())

	_, err := runCLI(t, "", "--config", cfg, "login", "-u", "ada", "-p", "pw")
	require.NoError(t, err)

	out, err := runCLI(t, "", "--config", cfg, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in")
}

func TestLogin_Errors(t *testing.T) {
	api := fakeAuthAPI(t)
	cfg := writeCLIConfig(t, api.URL, "")

	_, err := runCLI(t, "", "--config", cfg, "login", "-p", "pw")
	assert.EqualError(t, err, "--username is required")

	_, err = runCLI(t, "", "--config", cfg, "login", "-u", "ada")
	assert.ErrorContains(t, err, "a password is required")

	_, err = runCLI(t, "", "--config", cfg, "login", "-u", "ada", "-p", "nope")
	assert.EqualError(t, err, "Invalid username or password.")
}

func TestOneShotCommandsLogLikeRun(t *testing.T) {
	t.Setenv("TASKLANE_LOG_FORMAT", "")
	api := fakeAuthAPI(t)
	cfg := writeCLIConfig(t, api.URL, "")

	_, stderr, err := runCLIWithStderr(t, "", "--config", cfg, "--verbose", "whoami")
	require.NoError(t, err)
	assert.Contains(t, stderr, " INFO  app.ready")
	assert.NotContains(t, stderr, "level=INFO")

	_, stderr, err = runCLIWithStderr(t, "", "--config", cfg, "whoami")
	require.NoError(t, err)
	assert.NotContains(t, stderr, "app.ready")
}
