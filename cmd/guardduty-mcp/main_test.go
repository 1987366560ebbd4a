package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/urfave/cli/v3"
)

func parseSettings(t *testing.T, args ...string) (Settings, error) {
	t.Helper()
	var (
		settings Settings
		loadErr  error
	)
	cmd := newCommand(func(ctx context.Context, cmd *cli.Command) error {
		settings, loadErr = loadSettings(cmd)
		return nil
	})
	if err := cmd.Run(context.Background(), append([]string{"guardduty-mcp"}, args...)); err != nil {
		t.Fatalf("command failed: %v", err)
	}
	return settings, loadErr
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"MCP_TRANSPORT", "MCP_ADDR", "AWS_REGION", "SESSIONS_FILE", "SESSIONS_PARAMETER",
		"SESSIONS_TABLE", "CROSS_ACCOUNT_ROLE_NAME", "ROLE_SESSION_NAME",
		"GUARDDUTY_SERVICE_FUNCTION", "METRIC_NAMESPACE", "LOG_LEVEL",
	} {
		// Setenv registers the restore; the variable must be absent, not empty
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoadSettings_Defaults(t *testing.T) {
	clearEnv(t)

	s, err := parseSettings(t)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Transport != TransportStdio || s.Addr != "localhost:4200" || s.LogLevel != slog.LevelInfo {
		t.Errorf("unexpected defaults %+v", s)
	}
}

func TestLoadSettings_Flags(t *testing.T) {
	clearEnv(t)

	s, err := parseSettings(t,
		"--transport", "sse",
		"--addr", "0.0.0.0:8080",
		"--sessions-table", "sessions",
		"--role-name", "Audit",
		"--log-level", "debug",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Transport != TransportSSE || s.Addr != "0.0.0.0:8080" || s.SessionsTable != "sessions" || s.RoleName != "Audit" {
		t.Errorf("unexpected settings %+v", s)
	}
	if s.LogLevel != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", s.LogLevel)
	}
}

func TestLoadSettings_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("GUARDDUTY_SERVICE_FUNCTION", "guardduty-service")
	t.Setenv("METRIC_NAMESPACE", "AwsSecMcp")

	s, err := parseSettings(t)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ServiceFunction != "guardduty-service" || s.MetricNamespace != "AwsSecMcp" {
		t.Errorf("expected settings from environment, got %+v", s)
	}
}

func TestLoadSettings_Invalid(t *testing.T) {
	cases := [][]string{
		{"--transport", "websocket"},
		{"--log-level", "loud"},
		{"--sessions-file", "s.yaml", "--sessions-parameter", "/p"},
	}
	for _, args := range cases {
		clearEnv(t)
		if _, err := parseSettings(t, args...); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}

func TestNewLogger_WritesJSONAtLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, slog.LevelWarn)

	logger.Info("hidden")
	logger.Warn("shown", slog.String("key", "value"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a single JSON entry, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "shown" || entry["key"] != "value" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestSessionSources(t *testing.T) {
	src := sessionSources(Settings{SessionsFile: "s.yaml", RoleName: "Audit", SessionName: "mcp"})

	if src.File != "s.yaml" || src.RoleName != "Audit" || src.SessionName != "mcp" || src.Table != nil {
		t.Errorf("unexpected sources %+v", src)
	}
}
