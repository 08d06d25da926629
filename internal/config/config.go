package config

import (
	"errors"
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Routing   RoutingConfig   `yaml:"routing"`
	Providers ProvidersConfig `yaml:"providers"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Audit     AuditConfig     `yaml:"audit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes"`
}

// RoutingConfig controls how a chat request is forwarded upstream.
// Millisecond integers keep parity with the MAX_RETRIES / RETRY_DELAY /
// REQUEST_TIMEOUT environment variables.
type RoutingConfig struct {
	MaxRetries         int    `yaml:"max_retries"`
	RetryDelayMs       int    `yaml:"retry_delay_ms"`
	RequestTimeoutMs   int    `yaml:"request_timeout_ms"`
	CustomSystemPrompt string `yaml:"custom_system_prompt"`
}

func (r RoutingConfig) RetryDelay() time.Duration {
	return time.Duration(r.RetryDelayMs) * time.Millisecond
}

func (r RoutingConfig) RequestTimeout() time.Duration {
	return time.Duration(r.RequestTimeoutMs) * time.Millisecond
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

type AuditConfig struct {
	Enabled        bool           `yaml:"enabled"`
	AutoMigrate    bool           `yaml:"auto_migrate"`
	MigrationsPath string         `yaml:"migrations_path"`
	WriteTimeout   time.Duration  `yaml:"write_timeout"`
	Database       DatabaseConfig `yaml:"database"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             3000,
			ReadTimeout:      30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
			MaxBodyBytes:     50 << 20,
		},
		Routing: RoutingConfig{
			MaxRetries:       3,
			RetryDelayMs:     1000,
			RequestTimeoutMs: 60000,
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 20,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
		},
		Audit: AuditConfig{
			MigrationsPath: "migrations",
			WriteTimeout:   2 * time.Second,
			Database: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				Name:     "modelproxy",
				User:     "modelproxy",
				MaxConns: 10,
			},
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}

// Validate checks the values the request path depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Routing.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("routing.max_retries must be >= 1, got %d", c.Routing.MaxRetries))
	}
	if c.Routing.RetryDelayMs < 0 {
		errs = append(errs, fmt.Errorf("routing.retry_delay_ms must be >= 0, got %d", c.Routing.RetryDelayMs))
	}
	if c.Routing.RequestTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("routing.request_timeout_ms must be > 0, got %d", c.Routing.RequestTimeoutMs))
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("ratelimit.requests_per_minute must be > 0 when enabled"))
	}
	return errors.Join(errs...)
}
