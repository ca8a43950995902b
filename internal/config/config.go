// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads soapcall settings from soapcall.yaml and SOAPCALL_*
// environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. SOAPCALL_ENDPOINT.
const EnvPrefix = "SOAPCALL"

// FileEnv names a config file to read instead of ./soapcall.yaml.
const FileEnv = "SOAPCALL_CONFIG"

// Session backends
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

var transports = []string{"http", "json", "frame", "grpc"}

// Config represents the soapcall configuration
type Config struct {
	Endpoint           string        `mapstructure:"endpoint"`
	Username           string        `mapstructure:"username"`
	APIKey             string        `mapstructure:"api_key"`
	Transport          string        `mapstructure:"transport"`
	Timeout            time.Duration `mapstructure:"timeout"`
	Retries            int           `mapstructure:"retries"`
	LegacyArgsStamping bool          `mapstructure:"legacy_args_stamping"`
	Session            SessionConfig `mapstructure:"session"`
}

// SessionConfig selects where session ids are cached
type SessionConfig struct {
	Backend   string        `mapstructure:"backend"`
	RedisAddr string        `mapstructure:"redis_addr"`
	Prefix    string        `mapstructure:"prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// Load reads the configuration. A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file := os.Getenv(FileEnv); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("soapcall")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return decode(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", "")
	v.SetDefault("username", "")
	v.SetDefault("api_key", "")
	v.SetDefault("transport", "http")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("retries", 3)
	v.SetDefault("legacy_args_stamping", false)
	v.SetDefault("session.backend", BackendMemory)
	v.SetDefault("session.redis_addr", "localhost:6379")
	v.SetDefault("session.prefix", "soap:session:")
	v.SetDefault("session.ttl", time.Hour)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate checks values that are wrong regardless of the command run.
// Missing endpoint or credentials are reported by the commands needing them.
func validate(cfg *Config) error {
	if !slices.Contains(transports, cfg.Transport) {
		return fmt.Errorf("transport must be one of %v, got: %s", transports, cfg.Transport)
	}
	if cfg.Endpoint != "" && cfg.Transport != "frame" && cfg.Transport != "grpc" {
		u, err := url.Parse(cfg.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("endpoint must be an http or https URL, got: %s", cfg.Endpoint)
		}
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got: %s", cfg.Timeout)
	}
	if cfg.Retries < 1 {
		return fmt.Errorf("retries must be at least 1, got: %d", cfg.Retries)
	}
	switch cfg.Session.Backend {
	case BackendNone, BackendMemory:
	case BackendRedis:
		if cfg.Session.RedisAddr == "" {
			return fmt.Errorf("session.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("session.backend must be none, memory or redis, got: %s", cfg.Session.Backend)
	}
	return nil
}
