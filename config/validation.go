package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	apihttp "github.com/escribo/escribo-web/http"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Validate reports the first invalid section of cfg.
func Validate(cfg *Config) error {
	if err := validateApp(&cfg.App); err != nil {
		return fmt.Errorf("app config: %w", err)
	}

	if err := validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateLog(&cfg.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	if err := validateAPI(&cfg.API); err != nil {
		return fmt.Errorf("api config: %w", err)
	}

	if err := cfg.Retry.Policy().Validate(); err != nil {
		return fmt.Errorf("retry config: %w", err)
	}

	if err := validateCache(&cfg.Cache); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := validateObservability(&cfg.Observability); err != nil {
		return fmt.Errorf("observability config: %w", err)
	}

	return nil
}

func validateApp(cfg *AppConfig) error {
	if cfg.Name == "" {
		return NewMissingFieldError("app.name")
	}

	if cfg.Version == "" {
		return NewMissingFieldError("app.version")
	}

	validEnvs := []string{EnvDevelopment, EnvStaging, EnvProduction}
	if !slices.Contains(validEnvs, cfg.Env) {
		return NewInvalidFieldError("app.env", fmt.Sprintf("invalid environment: %s", cfg.Env), validEnvs)
	}

	if cfg.Rate.Limit < 0 {
		return NewValidationError("app.rate.limit", "rate limit must not be negative")
	}
	if cfg.Rate.Limit > 0 && cfg.Rate.Burst <= 0 {
		return NewValidationError("app.rate.burst", "burst must be positive when rate limiting is enabled")
	}

	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return NewValidationError("server.port", fmt.Sprintf("invalid port: %d (must be 1-65535)", cfg.Port))
	}

	if cfg.ReadTimeout <= 0 {
		return NewValidationError("server.read_timeout", "read timeout must be positive")
	}

	if cfg.WriteTimeout <= 0 {
		return NewValidationError("server.write_timeout", "write timeout must be positive")
	}

	if cfg.ShutdownTimeout <= 0 {
		return NewValidationError("server.shutdown_timeout", "shutdown timeout must be positive")
	}

	if cfg.MiddlewareTimeout < 0 {
		return NewValidationError("server.middleware_timeout", "middleware timeout must not be negative")
	}

	return nil
}

func validateLog(cfg *LogConfig) error {
	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.Level)); err != nil {
		return NewInvalidFieldError("log.level", fmt.Sprintf("invalid level: %s", cfg.Level),
			[]string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"})
	}
	return nil
}

func validateAPI(cfg *APIConfig) error {
	if cfg.BaseURL == "" {
		return NewMissingFieldError("api.base_url")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return NewValidationError("api.base_url", fmt.Sprintf("invalid base url: %s (must be an absolute http(s) url)", cfg.BaseURL))
	}
	return nil
}

func validateCache(cfg *CacheConfig) error {
	if cfg.TTL < 0 {
		return NewValidationError("cache.ttl", "ttl must not be negative")
	}

	switch cfg.Backend {
	case CacheMemory:
		return nil
	case CacheRedis:
		return cfg.Redis.Validate()
	default:
		return NewInvalidFieldError("cache.backend", fmt.Sprintf("unknown backend: %s", cfg.Backend),
			[]string{CacheMemory, CacheRedis})
	}
}

func validateObservability(cfg *ObservabilityConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.ServiceName == "" {
		return NewMissingFieldError("observability.service_name")
	}

	protocols := []string{ProtocolStdout, ProtocolHTTP, ProtocolGRPC}
	if !slices.Contains(protocols, cfg.Protocol) {
		return NewInvalidFieldError("observability.protocol", fmt.Sprintf("unknown protocol: %s", cfg.Protocol), protocols)
	}

	if cfg.Protocol != ProtocolStdout && cfg.Endpoint == "" {
		return NewMissingFieldError("observability.endpoint")
	}

	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		return NewValidationError("observability.sample_rate", "sample rate must be within [0, 1]")
	}

	return nil
}

// Policy converts the retry settings into an outbound retry policy.
func (r RetryConfig) Policy() apihttp.Policy {
	return apihttp.Policy{
		MaxRetries:     r.MaxRetries,
		InitialBackoff: r.InitialBackoff,
		Multiplier:     r.Multiplier,
		Jitter:         r.Jitter,
		MaxBackoff:     r.MaxBackoff,
		AttemptTimeout: r.AttemptTimeout,
	}
}

// BodyLimitOrDefault returns the echo body limit, falling back to 64K.
func (s ServerConfig) BodyLimitOrDefault() string {
	if s.BodyLimit == "" {
		return "64K"
	}
	return s.BodyLimit
}
