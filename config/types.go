package config

import (
	"time"

	"github.com/knadh/koanf/v2"

	"github.com/escribo/escribo-web/cache/redis"
)

// Config represents the overall application configuration structure.
// The embedded koanf.Koanf instance allows for flexible access to
// additional custom configurations not explicitly defined in the struct.
type Config struct {
	App           AppConfig           `koanf:"app"`
	Server        ServerConfig        `koanf:"server"`
	Log           LogConfig           `koanf:"log"`
	API           APIConfig           `koanf:"api"`
	Retry         RetryConfig         `koanf:"retry"`
	Cache         CacheConfig         `koanf:"cache"`
	Observability ObservabilityConfig `koanf:"observability"`

	// k holds the underlying Koanf instance for flexible access to custom configurations
	k *koanf.Koanf `json:"-" yaml:"-" toml:"-" mapstructure:"-"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name    string     `koanf:"name"`
	Version string     `koanf:"version"`
	Env     string     `koanf:"env"`
	Debug   bool       `koanf:"debug"`
	Rate    RateConfig `koanf:"rate"`
}

// RateConfig holds per-client rate limiting settings. A zero limit disables it.
type RateConfig struct {
	Limit int `koanf:"limit"` // requests per second
	Burst int `koanf:"burst"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	MiddlewareTimeout time.Duration `koanf:"middleware_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	BodyLimit         string        `koanf:"body_limit"`   // echo size notation, e.g. "64K"
	HealthRoute       string        `koanf:"health_route"` // e.g. "/health"
	ReadyRoute        string        `koanf:"ready_route"`  // e.g. "/ready"
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

// APIConfig points at the upstream Escribo API.
type APIConfig struct {
	BaseURL   string `koanf:"base_url"`
	UserAgent string `koanf:"user_agent"`
}

// RetryConfig mirrors the outbound retry policy.
type RetryConfig struct {
	MaxRetries     int           `koanf:"max_retries"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
	Multiplier     float64       `koanf:"multiplier"`
	Jitter         float64       `koanf:"jitter"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
	AttemptTimeout time.Duration `koanf:"attempt_timeout"`
}

// Cache backends
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// CacheConfig selects where fetched resources are kept and for how long.
type CacheConfig struct {
	Backend string        `koanf:"backend"`
	TTL     time.Duration `koanf:"ttl"`
	Redis   redis.Config  `koanf:"redis"`
}

// Observability exporter protocols
const (
	ProtocolStdout = "stdout"
	ProtocolHTTP   = "http"
	ProtocolGRPC   = "grpc"
)

// ObservabilityConfig configures OpenTelemetry export.
type ObservabilityConfig struct {
	Enabled        bool          `koanf:"enabled"`
	ServiceName    string        `koanf:"service_name"`
	Endpoint       string        `koanf:"endpoint"`
	Protocol       string        `koanf:"protocol"`
	Insecure       bool          `koanf:"insecure"`
	SampleRate     float64       `koanf:"sample_rate"`
	ExportInterval time.Duration `koanf:"export_interval"`
}
