// Copyright 2026 The JazzPetri Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads runtime settings from TOML or YAML files with
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/jazzpetri/asyncrt/spawn"
)

// Environment variables that override file settings.
const (
	EnvPolicy   = "ASYNCRT_POLICY"
	EnvLogLevel = "ASYNCRT_LOG_LEVEL"
	EnvSeed     = "ASYNCRT_SEED"
	EnvMetrics  = "ASYNCRT_METRICS"
)

// ErrUnsupportedFormat is returned by Load for files that are neither TOML
// nor YAML.
var ErrUnsupportedFormat = errors.New("config: unsupported file format")

// Config holds runtime settings.
type Config struct {
	// App names the process in log output.
	App string `toml:"app" yaml:"app" validate:"required"`

	// Policy is the spawn policy: multi_thread or current_thread.
	Policy string `toml:"policy" yaml:"policy" validate:"oneof=multi_thread current_thread"`

	// LogLevel is a zerolog level name.
	LogLevel string `toml:"log_level" yaml:"log_level" validate:"oneof=trace debug info warn error disabled"`

	// Metrics enables the Prometheus collector.
	Metrics bool `toml:"metrics" yaml:"metrics"`

	// Seed seeds the runtime RNG. Zero selects a random seed.
	Seed uint64 `toml:"seed" yaml:"seed"`

	// ShutdownTimeout bounds how long Close waits for spawned tasks.
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		App:             "asyncrt",
		Policy:          spawn.MultiThread.String(),
		LogLevel:        "info",
		ShutdownTimeout: 5 * time.Second,
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("load config %s: unknown keys %v", path, undecoded)
		}
		return nil
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("load config %s: %w", path, ErrUnsupportedFormat)
	}
}

// ApplyEnv overrides fields from ASYNCRT_* environment variables.
// Unset or blank variables leave the field unchanged.
func (c *Config) ApplyEnv() error {
	if v, ok := lookup(EnvPolicy); ok {
		c.Policy = strings.ToLower(v)
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.LogLevel = strings.ToLower(v)
	}
	if v, ok := lookup(EnvSeed); ok {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvSeed, err)
		}
		c.Seed = seed
	}
	if v, ok := lookup(EnvMetrics); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvMetrics, err)
		}
		c.Metrics = enabled
	}
	return nil
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}
	return nil
}

// SpawnPolicy parses Policy.
func (c Config) SpawnPolicy() (spawn.Policy, error) {
	return spawn.ParsePolicy(c.Policy)
}

// ZerologLevel parses LogLevel.
func (c Config) ZerologLevel() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("config: %w", err)
	}
	return lvl, nil
}
