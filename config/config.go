// Package config loads escribo-web settings from defaults, an optional YAML
// file and ESCRIBO_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is stripped from environment variable names.
	EnvPrefix = "ESCRIBO_"

	// DefaultFile is the optional YAML file read by Load.
	DefaultFile = "config.yaml"
)

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. config.yaml, then config.<env>.yaml
// 3. Default values (lowest priority)
func Load() (*Config, error) {
	return LoadFile(DefaultFile)
}

// LoadFile is Load with an explicit YAML path. A missing file is skipped.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := loadOptionalFile(k, path); err != nil {
		return nil, err
	}
	env := k.String("app.env")
	if v := os.Getenv(EnvVar("app.env")); v != "" {
		env = v
	}
	if env != "" && path != "" {
		envFile := strings.TrimSuffix(path, ".yaml") + "." + env + ".yaml"
		if err := loadOptionalFile(k, envFile); err != nil {
			return nil, err
		}
	}

	if err := loadEnv(k, os.Environ); err != nil {
		return nil, err
	}

	return finish(k)
}

// LoadFromBytes loads defaults overlaid with raw YAML, ignoring the process
// environment. Used by tests and embedded configurations.
func LoadFromBytes(data []byte) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return finish(k)
}

func finish(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadOptionalFile(k *koanf.Koanf, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// loadEnv maps ESCRIBO_RETRY_MAX_RETRIES to retry.max_retries. Names matching a
// known key keep their underscores; unknown names split on every underscore.
func loadEnv(k *koanf.Koanf, environ func() []string) error {
	known := make(map[string]string)
	for _, key := range k.Keys() {
		known[strings.ReplaceAll(key, ".", "_")] = key
	}

	provider := env.Provider(".", env.Opt{
		Prefix:      EnvPrefix,
		EnvironFunc: environ,
		TransformFunc: func(name, value string) (string, any) {
			raw := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
			if key, ok := known[raw]; ok {
				return key, value
			}
			return strings.ReplaceAll(raw, "_", "."), value
		},
	})
	if err := k.Load(provider, nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	return nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":       "escribo-web",
		"app.version":    "v1.0.0",
		"app.env":        EnvDevelopment,
		"app.debug":      false,
		"app.rate.limit": 50,
		"app.rate.burst": 100,

		"server.host":               "0.0.0.0",
		"server.port":               3000,
		"server.read_timeout":       "15s",
		"server.write_timeout":      "30s",
		"server.idle_timeout":       "60s",
		"server.middleware_timeout": "10s",
		"server.shutdown_timeout":   "10s",
		"server.body_limit":         "64K",
		"server.health_route":       "/health",
		"server.ready_route":        "/ready",

		"log.level":  "info",
		"log.pretty": false,

		"api.base_url":   "http://localhost:8000",
		"api.user_agent": "escribo-web",

		"retry.max_retries":     3,
		"retry.initial_backoff": "300ms",
		"retry.multiplier":      2.0,
		"retry.jitter":          0.0,
		"retry.max_backoff":     "0s",
		"retry.attempt_timeout": "0s",

		"cache.backend":             CacheMemory,
		"cache.ttl":                 "60s",
		"cache.redis.host":          "localhost",
		"cache.redis.port":          6379,
		"cache.redis.password":      "",
		"cache.redis.database":      0,
		"cache.redis.pool_size":     10,
		"cache.redis.dial_timeout":  "5s",
		"cache.redis.read_timeout":  "3s",
		"cache.redis.write_timeout": "3s",
		"cache.redis.key_prefix":    "escribo:",

		"observability.enabled":         false,
		"observability.service_name":    "escribo-web",
		"observability.endpoint":        "",
		"observability.protocol":        ProtocolStdout,
		"observability.insecure":        false,
		"observability.sample_rate":     1.0,
		"observability.export_interval": "30s",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
