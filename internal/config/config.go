// Package config loads server settings from an optional YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML values like "90s" or "5m".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds all server settings.
type Config struct {
	ListenAddr string       `yaml:"listen_addr"`
	PublicDir  string       `yaml:"public_dir"`
	Redis      RedisConfig  `yaml:"redis"`
	Limits     LimitsConfig `yaml:"limits"`
	Filter     FilterConfig `yaml:"filter"`
}

// RedisConfig enables the multi-instance relay when Addr is set.
type RedisConfig struct {
	Addr string `yaml:"addr"`
}

// LimitsConfig bounds connections and upgrade attempts.
type LimitsConfig struct {
	// MaxConns caps concurrent WebSocket connections; 0 means unlimited.
	MaxConns int `yaml:"max_conns"`
	// IdleTimeout closes connections with no inbound traffic; 0 disables.
	IdleTimeout Duration `yaml:"idle_timeout"`
	// UpgradesPerMinute rate-limits WebSocket upgrades per client IP.
	UpgradesPerMinute int `yaml:"upgrades_per_minute"`
}

// FilterConfig extends the profanity dictionary.
type FilterConfig struct {
	ExtraWords []string `yaml:"extra_words"`
}

// Default returns the configuration used when no file or overrides exist.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		PublicDir:  "public",
		Limits: LimitsConfig{
			UpgradesPerMinute: 30,
		},
	}
}

// Load builds the configuration from an optional YAML file at path, then
// applies environment overrides. An empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ListenAddr = envOrDefault("CHATRELAY_LISTEN_ADDR", cfg.ListenAddr)
	cfg.PublicDir = envOrDefault("CHATRELAY_PUBLIC_DIR", cfg.PublicDir)
	cfg.Redis.Addr = envOrDefault("CHATRELAY_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Limits.MaxConns = envInt("CHATRELAY_MAX_CONNS", cfg.Limits.MaxConns)

	return cfg, nil
}

func envOrDefault(key, value string) string {
	if env, ok := os.LookupEnv(key); ok {
		return env
	}
	return value
}

func envInt(key string, def int) int {
	if env, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(env); err == nil {
			return parsed
		}
	}
	return def
}
