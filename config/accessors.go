package config

import (
	"fmt"
	"time"
)

// GetString retrieves a string value from the configuration or the provided default.
func (c *Config) GetString(key string, defaultVal ...string) string {
	if !c.exists(key) {
		return optionalDefault("", defaultVal...)
	}
	return c.k.String(key)
}

// GetInt retrieves an int value from the configuration or the provided default.
func (c *Config) GetInt(key string, defaultVal ...int) int {
	if !c.exists(key) {
		return optionalDefault(0, defaultVal...)
	}
	return c.k.Int(key)
}

// GetBool retrieves a bool value from the configuration or the provided default.
func (c *Config) GetBool(key string, defaultVal ...bool) bool {
	if !c.exists(key) {
		return optionalDefault(false, defaultVal...)
	}
	return c.k.Bool(key)
}

// GetDuration retrieves a duration value such as "300ms" or the provided default.
func (c *Config) GetDuration(key string, defaultVal ...time.Duration) time.Duration {
	if !c.exists(key) {
		return optionalDefault(time.Duration(0), defaultVal...)
	}
	return c.k.Duration(key)
}

// GetRequiredString retrieves a string value, failing when it is missing or empty.
func (c *Config) GetRequiredString(key string) (string, error) {
	v := c.GetString(key)
	if v == "" {
		return "", fmt.Errorf("required configuration key '%s': %w", key, NewMissingFieldError(key))
	}
	return v, nil
}

// Exists reports whether key is set by any source.
func (c *Config) Exists(key string) bool {
	return c.exists(key)
}

func (c *Config) exists(key string) bool {
	return c != nil && c.k != nil && c.k.Exists(key)
}

func optionalDefault[T any](zero T, defaultVal ...T) T {
	if len(defaultVal) > 0 {
		return defaultVal[0]
	}
	return zero
}
