package config

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	writeFile(t, path, "listen:\n  port: 9999\n")

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
	if errors.Is(err, ErrNoConfig) {
		t.Error("a missing explicit file must not look like an empty search")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	_, err := FindConfig("")
	if !errors.Is(err, ErrNoConfig) {
		t.Fatalf("FindConfig(\"\") error = %v, want ErrNoConfig", err)
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), "listen:\n  port: 8080\n")
	t.Chdir(dir)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "calendar:\n  url: https://dav.example.com/\n  username: me\n  password: ${STEWARD_TEST_SECRET}\n")
	t.Setenv("STEWARD_TEST_SECRET", "secret123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Calendar.Password != "secret123" {
		t.Errorf("password = %q, want %q", cfg.Calendar.Password, "secret123")
	}
}

func TestLoad_InlineSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "llm:\n  claude:\n    api_key: sk-ant-test-key\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.LLM.Claude.APIKey != "sk-ant-test-key" {
		t.Errorf("api_key = %q, want %q", cfg.LLM.Claude.APIKey, "sk-ant-test-key")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv("STEWARD_DATA_DIR", "")
	t.Setenv("PORT", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "data_dir: "+dir+"\nagent:\n  max_rounds: 3\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Listen.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Listen.Port)
	}
	if cfg.Agent.MaxRounds != 3 {
		t.Errorf("max_rounds = %d, want 3", cfg.Agent.MaxRounds)
	}
	if cfg.Agent.Timezone != "America/New_York" {
		t.Errorf("timezone = %q", cfg.Agent.Timezone)
	}
	if cfg.Monitor.CheckInterval != 30*time.Minute {
		t.Errorf("monitor interval = %v", cfg.Monitor.CheckInterval)
	}
	if got, want := cfg.StatePath(), filepath.Join(dir, "steward.db"); got != want {
		t.Errorf("StatePath = %q, want %q", got, want)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "listen: [\n"},
		{"bad port", "listen:\n  port: 70000\n"},
		{"bad log level", "log_level: loud\n"},
		{"bad log format", "log_format: xml\n"},
		{"bad provider", "llm:\n  provider: hal9000\n"},
		{"bad summary time", "monitor:\n  daily_summary_at: noon\n"},
		{"bad broker", "mqtt:\n  broker: http://broker\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			writeFile(t, path, tt.body)
			if _, err := Load(path); err == nil {
				t.Errorf("Load(%q) succeeded, want error", tt.body)
			}
		})
	}
}

func TestLoad_DisabledMonitorSkipsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "monitor:\n  disabled: true\n  daily_summary_at: noon\n")
	if _, err := Load(path); err != nil {
		t.Errorf("Load error: %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	writeFile(t, path, "STEWARD_DOTENV_A=from-file\nSTEWARD_DOTENV_B=from-file\n")
	t.Setenv("STEWARD_DOTENV_B", "from-env")
	t.Cleanup(func() { os.Unsetenv("STEWARD_DOTENV_A") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("STEWARD_DOTENV_A"); got != "from-file" {
		t.Errorf("A = %q, want from-file", got)
	}
	if got := os.Getenv("STEWARD_DOTENV_B"); got != "from-env" {
		t.Errorf("B = %q, existing variables must win", got)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{" TRACE ", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_RendersTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace, "text")
	logger.Log(context.Background(), LevelTrace, "payload")
	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("output = %q, want level=TRACE", buf.String())
	}

	buf.Reset()
	NewLogger(&buf, slog.LevelInfo, "json").Info("hello")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("json output = %q", buf.String())
	}
}
