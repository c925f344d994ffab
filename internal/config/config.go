// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

// Package config loads layered configuration: struct defaults, an optional
// YAML file, then environment variables, validated before use.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/mapcanvas/viewcache/internal/fetch"
	"github.com/mapcanvas/viewcache/internal/logging"
	"github.com/mapcanvas/viewcache/internal/realtime"
)

// DefaultConfigPaths lists where config files are searched, in order. The
// first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/viewcache/config.yaml",
	"/etc/viewcache/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces all environment overrides, e.g.
// VIEWCACHE_SERVER__PORT=8080. A double underscore separates nesting levels
// so that keys containing single underscores (base_url) survive.
const envPrefix = "VIEWCACHE_"

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig        `koanf:"server"`
	Logging  logging.Config      `koanf:"logging"`
	NATS     realtime.NATSConfig `koanf:"nats"`
	Upstream fetch.HTTPConfig    `koanf:"upstream"`
	Map      MapConfig           `koanf:"map"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// MapConfig carries the defaults sessions start from.
type MapConfig struct {
	DefaultKind    string `koanf:"default_kind" validate:"oneof=Real Virtual"`
	DisableLabels  bool   `koanf:"disable_labels"`
	LabelWrapWidth int    `koanf:"label_wrap_width" validate:"min=0"`
}

// Default returns the built-in defaults. They are the first koanf layer and
// the configuration used when no file or environment overrides exist.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3857,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging:  logging.DefaultConfig(),
		NATS:     realtime.DefaultNATSConfig(),
		Upstream: fetch.DefaultHTTPConfig(),
		Map: MapConfig{
			DefaultKind:    "Real",
			LabelWrapWidth: 10,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, then validates it. Precedence: env > file >
// defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints via struct tags.
func (c *Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(c)
}

// envTransform maps VIEWCACHE_UPSTREAM__BASE_URL to upstream.base_url.
func envTransform(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
