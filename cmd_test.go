package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var credentialVars = []string{
	"STACK_CLIENT_ID", "STACK_CLIENT_SECRET", "STACK_KEY", "STACK_ACCESS_TOKEN",
	"OPENROUTER_API_KEY", "GEMINI_API_KEY", "USER_AGENT", "BOT_USERNAME",
}

// writeConfig 在临时目录中写入 settings.yaml 与 sites.txt，返回配置路径。
func writeConfig(t *testing.T, apiURL string, extra string) string {
	t.Helper()
	dir := t.TempDir()
	sitesPath := filepath.Join(dir, "sites.txt")
	require.NoError(t, os.WriteFile(sitesPath, []byte("stackoverflow\n"), 0o644))
	cfg := fmt.Sprintf(`SITES_FILE: %s
HISTORY_FILE: %s
LOG_LEVEL: error
API:
  base_url: %s
DATABASE:
  dsn: %s
%s`, sitesPath, filepath.Join(dir, "history.txt"), apiURL, filepath.Join(dir, "bot.db"), extra)
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func setCredentials(t *testing.T, value string) {
	t.Helper()
	for _, k := range credentialVars {
		t.Setenv(k, value)
	}
}

func TestExecute_MissingCredentialsExitsOne(t *testing.T) {
	setCredentials(t, "")
	cfg := writeConfig(t, "http://127.0.0.1:1", "")
	code := execute(context.Background(), []string{"verify", "--config", cfg, "--env-file", filepath.Join(t.TempDir(), "none.env")})
	assert.Equal(t, 1, code)
}

func TestExecute_VerifyAccount(t *testing.T) {
	setCredentials(t, "x")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me" || r.URL.Query().Get("access_token") != "x" {
			http.Error(w, `{"error_id":401,"error_name":"access_token_required","error_message":"no"}`, http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"user_id":1,"display_name":"bot","reputation":50}]}`))
	}))
	defer srv.Close()

	ok := writeConfig(t, srv.URL, "")
	assert.Equal(t, 0, execute(context.Background(), []string{"verify", "--config", ok, "--env-file", ""}))

	strict := writeConfig(t, srv.URL, "MIN_REPUTATION: 100\n")
	assert.Equal(t, 1, execute(context.Background(), []string{"verify", "--config", strict, "--env-file", ""}))
}

func TestExecute_ExportAndStats(t *testing.T) {
	setCredentials(t, "")
	cfg := writeConfig(t, "http://127.0.0.1:1", "")
	out := filepath.Join(t.TempDir(), "data.json")
	require.Equal(t, 0, execute(context.Background(), []string{"export", "--config", cfg, "--env-file", "", "--out", out}))
	_, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, 0, execute(context.Background(), []string{"stats", "--config", cfg, "--env-file", ""}))
}

func TestExecute_InvalidConfigExitsOne(t *testing.T) {
	cfg := writeConfig(t, "http://127.0.0.1:1", "QUESTION_SOURCE: scrape\n")
	assert.Equal(t, 1, execute(context.Background(), []string{"stats", "--config", cfg, "--env-file", ""}))
}
