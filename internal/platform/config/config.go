// Package config loads platform configuration from YAML with environment
// variable substitution, and layers in the required operational env vars.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the worker and admin CLI.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Queue       QueueConfig       `yaml:"queue"`
	Auth        AuthConfig        `yaml:"auth"`
	Cache       CacheConfig       `yaml:"cache"`
	Logging     LoggingConfig     `yaml:"logging"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`

	// Sources maps a workflow's uuid to the URL its fetch step polls, and
	// SourceHeaders carries any fixed headers (e.g. an upstream API key)
	// attached to every fetch request regardless of workflow.
	Sources       map[string]string `yaml:"sources"`
	SourceHeaders map[string]string `yaml:"source_headers"`

	// Destinations maps a ToDef::Format sink's output name to the URL its
	// encoded bytes are POSTed to, and DestinationHeaders carries any fixed
	// headers attached to every such request regardless of output.
	Destinations       map[string]string `yaml:"destinations"`
	DestinationHeaders map[string]string `yaml:"destination_headers"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

// QueueConfig names the two Redis list keys the worker pops from.
type QueueConfig struct {
	FetchKey   string `yaml:"fetch_key"`
	ProcessKey string `yaml:"process_key"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	JWTExpiration time.Duration `yaml:"jwt_expiration"`
	APIKeyTTL     time.Duration `yaml:"api_key_ttl"`
}

type CacheConfig struct {
	TTL                 time.Duration `yaml:"ttl"`
	EntityDefinitionTTL time.Duration `yaml:"entity_definition_ttl"`
	MemoryCapacity      int           `yaml:"memory_capacity"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// MaintenanceConfig controls the worker's scheduled cleanup jobs.
type MaintenanceConfig struct {
	VersionRetention        time.Duration `yaml:"version_retention"`
	RunLogRetention         time.Duration `yaml:"run_log_retention"`
	RefreshTokenCleanupCron string        `yaml:"refresh_token_cleanup_cron"`
	PurgeCron               string        `yaml:"purge_cron"`
}

// Default returns a Config with sane baseline defaults, before any env-var
// overrides are applied.
func Default() Config {
	return Config{
		Queue: QueueConfig{
			FetchKey:   "entityflow:fetch",
			ProcessKey: "entityflow:process",
		},
		Auth: AuthConfig{
			JWTExpiration: time.Hour,
			APIKeyTTL:     5 * time.Minute,
		},
		Cache: CacheConfig{
			TTL:                 5 * time.Minute,
			EntityDefinitionTTL: time.Hour,
			MemoryCapacity:      4096,
		},
		Logging: LoggingConfig{Level: "info"},
		Maintenance: MaintenanceConfig{
			VersionRetention:        30 * 24 * time.Hour,
			RunLogRetention:         7 * 24 * time.Hour,
			RefreshTokenCleanupCron: "@daily",
			PurgeCron:               "@daily",
		},
	}
}

// Load reads a YAML config file, substituting ${VAR} / ${VAR:-default}
// references against the process environment, then layers the required
// operational environment variables over the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		content := SubstituteEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
			return nil, fmt.Errorf("decode config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Redis.URL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("DATABASE_URL"); ok {
		cfg.Database.URL = v
	}
	if v, ok := os.LookupEnv("REDIS_URL"); ok {
		cfg.Redis.URL = v
	}
	if v, ok := os.LookupEnv("QUEUE_FETCH_KEY"); ok {
		cfg.Queue.FetchKey = v
	}
	if v, ok := os.LookupEnv("QUEUE_PROCESS_KEY"); ok {
		cfg.Queue.ProcessKey = v
	}
	if v, ok := os.LookupEnv("JWT_SECRET"); ok {
		cfg.Auth.JWTSecret = v
	}
	if v, ok := os.LookupEnv("JWT_EXPIRATION"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.JWTExpiration = d
		} else if secs, err := strconv.Atoi(v); err == nil {
			cfg.Auth.JWTExpiration = time.Duration(secs) * time.Second
		}
	}
	if v, ok := os.LookupEnv("CACHE_TTL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v, ok := os.LookupEnv("ENTITY_DEFINITION_TTL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.EntityDefinitionTTL = d
		}
	}
	if v, ok := os.LookupEnv("API_KEY_TTL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.APIKeyTTL = d
		}
	}
}

var envRegex = regexp.MustCompile(`\$\{(\w+)(?::-([^}]*))?\}`)

// SubstituteEnvVars replaces ${VAR} and ${VAR:-default} references in input
// with values from the process environment.
func SubstituteEnvVars(input string) string {
	return envRegex.ReplaceAllStringFunc(input, func(m string) string {
		matches := envRegex.FindStringSubmatch(m)
		if len(matches) < 2 {
			return m
		}
		envVar := matches[1]
		if val, ok := os.LookupEnv(envVar); ok {
			return val
		}
		if len(matches) > 2 && strings.Contains(m, ":-") {
			return matches[2]
		}
		return m
	})
}
