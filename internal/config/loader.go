package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultFile []byte

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:default} patterns in a string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		varName := submatch[1]
		defaultVal := ""
		if len(submatch) >= 3 {
			defaultVal = submatch[2]
		}
		if val, ok := os.LookupEnv(varName); ok && val != "" {
			return val
		}
		return defaultVal
	})
}

// Parse expands env vars in data and unmarshals it over dest.
func Parse(data []byte, dest interface{}) error {
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), dest); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// LoadFile reads a YAML file, expands env vars, and unmarshals into dest.
func LoadFile(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := Parse(data, dest); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// ParseDefault applies the embedded default file over dest.
func ParseDefault(dest *Config) error {
	return Parse(defaultFile, dest)
}

// Loader owns the current configuration and reloads it when the file changes.
type Loader struct {
	path     string
	mu       sync.RWMutex
	cfg      *Config
	watchers []func(*Config)
	logger   *slog.Logger
}

func NewLoader(path string, logger *slog.Logger) *Loader {
	return &Loader{
		path:   path,
		logger: logger,
	}
}

// Load reads the configuration file, falling back to the embedded default
// when the file does not exist. The result is validated before it replaces
// the current configuration.
func (l *Loader) Load() error {
	cfg := DefaultConfig()

	source := l.path
	err := LoadFile(l.path, cfg)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		source = "embedded default"
		if err := ParseDefault(cfg); err != nil {
			return fmt.Errorf("load default config: %w", err)
		}
	case err != nil:
		return fmt.Errorf("load config: %w", err)
	}

	// Free-form prompt text is not safe to splice into YAML.
	if cfg.Routing.CustomSystemPrompt == "" {
		cfg.Routing.CustomSystemPrompt = os.Getenv("CUSTOM_SYSTEM_PROMPT")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()

	l.logger.Info("configuration loaded", "source", source)
	return nil
}

func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// OnReload registers a callback that fires after config is reloaded.
func (l *Loader) OnReload(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watchers = append(l.watchers, fn)
}

func (l *Loader) reload() {
	if err := l.Load(); err != nil {
		l.logger.Error("failed to reload config, keeping previous", "error", err)
		return
	}
	l.mu.RLock()
	cfg := l.cfg
	watchers := append([]func(*Config){}, l.watchers...)
	l.mu.RUnlock()
	for _, fn := range watchers {
		fn(cfg)
	}
}

// Watch starts watching the config file's directory and reloads when the
// file is written or replaced. The returned function stops the watcher.
func (l *Loader) Watch() (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config dir %s: %w", dir, err)
	}
	target := filepath.Clean(l.path)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					l.logger.Info("config file changed, reloading", "file", event.Name)
					l.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return watcher.Close, nil
}
