// Package config loads the service configuration from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	ttlrules "github.com/always-cache/portal-cache/pkg/ttl-rules"
)

type Config struct {
	Port     int      `yaml:"port" env:"PORT"`
	Upstream Upstream `yaml:"upstream" envPrefix:"UPSTREAM_"`
	Cache    Cache    `yaml:"cache" envPrefix:"CACHE_"`
	Session  Session  `yaml:"session" envPrefix:"SESSION_"`
	Log      Log      `yaml:"log" envPrefix:"LOG_"`
}

type Upstream struct {
	BaseURL      string        `yaml:"base_url" env:"BASE_URL"`
	UnivCode     string        `yaml:"univ_code" env:"UNIV_CODE"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
	LoginTimeout time.Duration `yaml:"login_timeout" env:"LOGIN_TIMEOUT"`
	UserAgent    string        `yaml:"user_agent" env:"USER_AGENT"`
}

type Cache struct {
	// sqlite, memory or redis
	Provider    string        `yaml:"provider" env:"PROVIDER"`
	Path        string        `yaml:"path" env:"PATH"`
	DefaultTTL  time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	RedisAddr   string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPrefix string        `yaml:"redis_prefix" env:"REDIS_PREFIX"`
	// How long Redis keeps expired entries for stale fallback.
	StaleRetention time.Duration  `yaml:"stale_retention" env:"STALE_RETENTION"`
	Rules          ttlrules.Rules `yaml:"rules"`
}

type Session struct {
	File   string `yaml:"file" env:"FILE"`
	Cookie string `yaml:"cookie" env:"COOKIE"`
}

type Log struct {
	Level string `yaml:"level" env:"LEVEL"`
	File  string `yaml:"file" env:"FILE"`
	JSON  bool   `yaml:"json" env:"JSON"`
}

const (
	ProviderSQLite = "sqlite"
	ProviderMemory = "memory"
	ProviderRedis  = "redis"
)

func Default() Config {
	return Config{
		Port: 8000,
		Upstream: Upstream{
			BaseURL:      "https://studentportal.universitysolutions.in",
			UnivCode:     "051",
			Timeout:      30 * time.Second,
			LoginTimeout: 50 * time.Second,
			UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36",
		},
		Cache: Cache{
			Provider:       ProviderSQLite,
			Path:           ".cache/http_cache.db",
			DefaultTTL:     2 * time.Hour,
			RedisAddr:      "localhost:6379",
			RedisPrefix:    "portal_cache",
			StaleRetention: 24 * time.Hour,
		},
		Session: Session{
			File:   ".session.yaml",
			Cookie: "PHPSESSID",
		},
		Log: Log{
			Level: "debug",
		},
	}
}

// Load returns the defaults, overridden by the YAML file (if filename is
// not empty) and then by environment variables.
func Load(filename string) (Config, error) {
	config := Default()
	if filename != "" {
		configBytes, err := os.ReadFile(filename)
		if err != nil {
			return config, err
		}
		if err := yaml.Unmarshal(configBytes, &config); err != nil {
			return config, fmt.Errorf("parsing %s: %w", filename, err)
		}
	}
	if err := env.Parse(&config); err != nil {
		return config, err
	}
	return config, config.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("upstream.base_url is required"))
	}
	switch c.Cache.Provider {
	case ProviderSQLite, ProviderMemory:
	case ProviderRedis:
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redis_addr is required for the redis provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported cache provider %q", c.Cache.Provider))
	}
	if c.Cache.DefaultTTL <= 0 {
		errs = append(errs, errors.New("cache.default_ttl must be positive"))
	}
	return errors.Join(errs...)
}
