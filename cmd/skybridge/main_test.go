// ABOUTME: Tests for the skybridge CLI helpers
// ABOUTME: Covers logger setup, the color handler, init, keygen, and audit output

package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/skybridge/internal/config"
	"github.com/2389/skybridge/internal/store"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "tool", "weather_current")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "weather_current", rec["tool"])
}

func TestColorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)

	logger.With("component", "mcp").WithGroup("call").Debug("tool finished", "name", "echo", slog.Group("err", "code", -32603))

	out := buf.String()
	assert.Contains(t, out, "DBG tool finished")
	assert.Contains(t, out, " component=mcp")
	assert.Contains(t, out, " call.name=echo")
	assert.Contains(t, out, " call.err.code=-32603")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestColorHandler_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "info"}, &buf)

	logger.Debug("skipped")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")

	out := buf.String()
	assert.NotContains(t, out, "skipped")
	assert.Contains(t, out, "INF i")
	assert.Contains(t, out, "WRN w")
	assert.Contains(t, out, "ERR e")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel("loud"))
}

func TestHealthURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8000/healthz", healthURL(":8000"))
	assert.Equal(t, "http://127.0.0.1:9000/healthz", healthURL("127.0.0.1:9000"))
}

func TestRunKeygen(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runKeygen(&buf))

	key := strings.TrimSpace(buf.String())
	assert.GreaterOrEqual(t, len(key), 32)
	raw, err := base64.RawURLEncoding.DecodeString(key)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestRunInit_WritesLoadableConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "skybridge", "config.yaml")

	answers := strings.Join([]string{
		path,
		"127.0.0.1:8100",
		"https://bridge.example.com/",
		"client-id",
		"client-secret",
		"",     // redirect URL default
		"",     // generated signing key
		"12h",  // session lifetime
		"owm",  // weather key
		"none", // audit disabled
		"debug",
		"json",
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, runInit(strings.NewReader(answers), &out))
	assert.Contains(t, out.String(), "Config written to "+path)
	assert.NotContains(t, out.String(), "Warning")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8100", cfg.Server.HTTPAddr)
	assert.Equal(t, "https://bridge.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "https://bridge.example.com/auth/callback", cfg.Google.RedirectURL)
	assert.Equal(t, "client-id", cfg.Google.ClientID)
	assert.Len(t, cfg.Auth.SigningKey, 43)
	assert.Equal(t, 12*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, "owm", cfg.Weather.APIKey)
	assert.Empty(t, cfg.Audit.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestRunInit_KeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("keep: me\n"), 0o600))

	var out bytes.Buffer
	require.NoError(t, runInit(strings.NewReader(path+"\nno\n"), &out))
	assert.Contains(t, out.String(), "Aborted.")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep: me\n", string(data))
}

func TestRunInit_WarnsOnIncompleteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	// EOF after the path leaves every other answer at its default, so no client ID.
	var out bytes.Buffer
	require.NoError(t, runInit(strings.NewReader(path+"\n"), &out))
	assert.Contains(t, out.String(), "Warning")
	assert.Contains(t, out.String(), "google.client_id is required")
	assert.FileExists(t, path)
}

func TestPrintToolCalls(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printToolCalls(&buf, nil))
	assert.Equal(t, "no tool calls recorded\n", buf.String())

	buf.Reset()
	calls := []store.ToolCall{
		{
			Subject:   "google-42",
			ToolName:  "weather_current",
			Transport: "http",
			Duration:  120 * time.Millisecond,
			Outcome:   store.OutcomeSuccess,
			CreatedAt: time.Now(),
		},
		{
			Subject:      "google-42",
			ToolName:     "calendar_list_events",
			Transport:    "sse",
			Duration:     time.Second,
			Outcome:      store.OutcomeError,
			ErrorCode:    -32000,
			ErrorMessage: "upstream unavailable",
			CreatedAt:    time.Now(),
		},
	}
	require.NoError(t, printToolCalls(&buf, calls))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "TIME"))
	assert.Contains(t, lines[1], "weather_current")
	assert.Contains(t, lines[1], "120ms")
	assert.Contains(t, lines[2], "error -32000: upstream unavailable")
}

func TestRunAudit(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "audit.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
google:
  client_id: id
  client_secret: secret
audit:
  path: `+dbPath+`
`), 0o600))
	t.Setenv("SKYBRIDGE_CONFIG", cfgPath)
	t.Chdir(dir)

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	for i, tool := range []string{"weather_current", "calendar_list_events"} {
		require.NoError(t, s.RecordToolCall(t.Context(), store.ToolCall{
			ID:        "call-" + tool,
			SessionID: "s1",
			Subject:   "google-42",
			ToolName:  tool,
			Transport: "http",
			Duration:  time.Duration(i+1) * time.Millisecond,
			Outcome:   store.OutcomeSuccess,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, s.Close())

	var buf bytes.Buffer
	require.NoError(t, runAudit(t.Context(), []string{"-tool", "weather_current"}, &buf))
	assert.Contains(t, buf.String(), "weather_current")
	assert.NotContains(t, buf.String(), "calendar_list_events")
}
