package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "hello")
	t.Setenv("EMPTY_VAR", "")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"${TEST_VAR:default}", "hello"},
		{"${UNSET_VAR:fallback}", "fallback"},
		{"${UNSET_VAR}", ""},
		{"${EMPTY_VAR:fallback}", "fallback"},
		{"${UNSET_ADDR:localhost:6379}", "localhost:6379"},
		{"no vars here", "no vars here"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
	}

	for _, tt := range tests {
		got := expandEnvVars(tt.input)
		if got != tt.expected {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "proxy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
server:
  host: "0.0.0.0"
  port: 9999
routing:
  max_retries: 5
  retry_delay_ms: 250
  request_timeout_ms: 1500
`)

	cfg := DefaultConfig()
	if err := LoadFile(path, cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Routing.MaxRetries != 5 {
		t.Errorf("expected max_retries 5, got %d", cfg.Routing.MaxRetries)
	}
	if cfg.Routing.RetryDelay() != 250*time.Millisecond {
		t.Errorf("expected retry delay 250ms, got %v", cfg.Routing.RetryDelay())
	}
	if cfg.Routing.RequestTimeout() != 1500*time.Millisecond {
		t.Errorf("expected timeout 1.5s, got %v", cfg.Routing.RequestTimeout())
	}
	// untouched sections keep their defaults
	if cfg.Server.MaxBodyBytes != 50<<20 {
		t.Errorf("expected default body limit, got %d", cfg.Server.MaxBodyBytes)
	}
}

func TestLoader_FallsBackToEmbeddedDefault(t *testing.T) {
	t.Setenv("ZHIPU_API_KEY", "zk-test")
	t.Setenv("KIMI_ENABLED", "false")
	t.Setenv("PORT", "4100")
	t.Setenv("MAX_RETRIES", "2")
	t.Setenv("CUSTOM_SYSTEM_PROMPT", `be brief: "always"`)

	l := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"), discardLogger())
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := l.Config()

	if cfg.Server.Port != 4100 {
		t.Errorf("expected port 4100, got %d", cfg.Server.Port)
	}
	if cfg.Routing.MaxRetries != 2 {
		t.Errorf("expected max_retries 2, got %d", cfg.Routing.MaxRetries)
	}
	if cfg.Routing.RetryDelayMs != 1000 || cfg.Routing.RequestTimeoutMs != 60000 {
		t.Errorf("unexpected routing defaults: %+v", cfg.Routing)
	}
	if cfg.Routing.CustomSystemPrompt != `be brief: "always"` {
		t.Errorf("unexpected custom prompt %q", cfg.Routing.CustomSystemPrompt)
	}
	if !cfg.Providers.Zhipu.Available() {
		t.Error("expected zhipu to be available")
	}
	if cfg.Providers.Kimi.Available() {
		t.Error("expected kimi to be unavailable without a key")
	}
	if cfg.RateLimit.Enabled || cfg.Audit.Enabled {
		t.Error("optional subsystems must be disabled by default")
	}
}

func TestLoader_RejectsInvalidConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
routing:
  max_retries: 0
`)
	l := NewLoader(path, discardLogger())
	if err := l.Load(); err == nil {
		t.Fatal("expected validation error for max_retries 0")
	}
}

func TestProviderConfig_Available(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		name string
		cfg  ProviderConfig
		want bool
	}{
		{"no key", ProviderConfig{}, false},
		{"key only", ProviderConfig{APIKey: "k"}, true},
		{"key enabled", ProviderConfig{APIKey: "k", Enabled: &yes}, true},
		{"key disabled", ProviderConfig{APIKey: "k", Enabled: &no}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Available(); got != tt.want {
				t.Errorf("Available() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoader_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "routing:\n  max_retries: 2\n")

	l := NewLoader(path, discardLogger())
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	reloaded := make(chan *Config, 4)
	l.OnReload(func(cfg *Config) { reloaded <- cfg })

	stop, err := l.Watch()
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer stop()

	writeFile(t, dir, "routing:\n  max_retries: 7\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			if cfg.Routing.MaxRetries == 7 {
				if l.Config().Routing.MaxRetries != 7 {
					t.Errorf("loader still serves old config")
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}
