// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

// Package config loads and validates the IntelBridge configuration from a
// file plus INTELBRIDGE_-prefixed environment overrides.
package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	ibrerr "github.com/intelbridge/intelbridge/pkg/errors"
)

// Config is the top-level IntelBridge configuration.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Graph     GraphConfig               `mapstructure:"graph"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Models    ModelsConfig              `mapstructure:"models"`
	Chat      ChatConfig                `mapstructure:"chat"`
	Storage   StorageConfig             `mapstructure:"storage"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// GraphConfig points at the intelligence graph mirror.
type GraphConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	ServiceKey string `mapstructure:"service_key"`
}

// ProviderConfig holds credentials and endpoint for an LLM provider.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// ModelsConfig selects the chat model.
type ModelsConfig struct {
	Default     string  `mapstructure:"default"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// ChatConfig tunes the conversation loop.
type ChatConfig struct {
	HistoryWindow     int           `mapstructure:"history_window"`
	RoundTimeout      time.Duration `mapstructure:"round_timeout"`
	TurnTimeout       time.Duration `mapstructure:"turn_timeout"`
	EnrichmentWorkers int           `mapstructure:"enrichment_workers"`
}

// StorageConfig selects the session storage backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix INTELBRIDGE_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.listen", "127.0.0.1:8420")
	v.SetDefault("models.default", "anthropic/claude-sonnet-4-5")
	v.SetDefault("models.temperature", 0.2)
	v.SetDefault("models.max_tokens", 4096)
	v.SetDefault("chat.history_window", 10)
	v.SetDefault("chat.round_timeout", "60s")
	v.SetDefault("chat.turn_timeout", "5m")
	v.SetDefault("chat.enrichment_workers", 4)
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", "intelbridge.db")

	// Environment
	v.SetEnvPrefix("INTELBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, ibrerr.Errorf(ibrerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ibrerr.Errorf(ibrerr.CodeConfigLoadReadFailure, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ibrerr.Errorf(ibrerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. All issues are
// collected rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateGraph()...)
	errs = append(errs, c.validateModels()...)
	errs = append(errs, c.validateChat()...)
	errs = append(errs, c.validateStorage()...)

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, ibrerr.New(ibrerr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
		return errs
	}
	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		errs = append(errs, ibrerr.Errorf(ibrerr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err))
		return errs
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, ibrerr.Errorf(ibrerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, ibrerr.Errorf(ibrerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be between 1 and 65535, got %d", port))
	}

	return errs
}

func (c *Config) validateGraph() []error {
	var errs []error

	if c.Graph.Endpoint == "" {
		errs = append(errs, ibrerr.New(ibrerr.CodeConfigValidateInvalidValue, "config: graph.endpoint must not be empty"))
	} else if !strings.HasPrefix(c.Graph.Endpoint, "http://") && !strings.HasPrefix(c.Graph.Endpoint, "https://") {
		errs = append(errs, ibrerr.Errorf(ibrerr.CodeConfigValidateInvalidValue,
			"config: graph.endpoint must be an http(s) URL, got %q", c.Graph.Endpoint))
	}
	if c.Graph.ServiceKey == "" {
		errs = append(errs, ibrerr.New(ibrerr.CodeConfigValidateInvalidValue, "config: graph.service_key must not be empty"))
	}

	return errs
}

func (c *Config) validateModels() []error {
	var errs []error

	if c.Models.Default == "" {
		errs = append(errs, ibrerr.New(ibrerr.CodeConfigValidateInvalidValue, "config: models.default must not be empty"))
	} else if !strings.Contains(c.Models.Default, "/") {
		errs = append(errs, ibrerr.Errorf(ibrerr.CodeConfigValidateInvalidValue,
			"config: models.default must be in \"provider/model\" format, got %q", c.Models.Default))
	} else if c.Providers != nil {
		// Only cross-reference providers when the providers section exists;
		// a nil map means defaults-only config, which is valid until serve.
		name := ProviderFromModel(c.Models.Default)
		if _, ok := c.Providers[name]; !ok {
			errs = append(errs, ibrerr.Errorf(ibrerr.CodeConfigValidateInvalidValue,
				"config: models.default %q references provider %q which is not configured",
				c.Models.Default, name))
		}
	}

	if c.Models.Temperature < 0 || c.Models.Temperature > 2 {
		errs = append(errs, ibrerr.Errorf(ibrerr.CodeConfigValidateInvalidValue,
			"config: models.temperature must be between 0 and 2, got %v", c.Models.Temperature))
	}
	if c.Models.MaxTokens < 0 {
		errs = append(errs, ibrerr.Errorf(ibrerr.CodeConfigValidateInvalidValue,
			"config: models.max_tokens must not be negative, got %d", c.Models.MaxTokens))
	}

	return errs
}

func (c *Config) validateChat() []error {
	var errs []error

	if c.Chat.HistoryWindow < 1 {
		errs = append(errs, ibrerr.Errorf(ibrerr.CodeConfigValidateInvalidValue,
			"config: chat.history_window must be at least 1, got %d", c.Chat.HistoryWindow))
	}
	if c.Chat.RoundTimeout <= 0 {
		errs = append(errs, ibrerr.Errorf(ibrerr.CodeConfigValidateInvalidValue,
			"config: chat.round_timeout must be positive, got %s", c.Chat.RoundTimeout))
	}
	if c.Chat.TurnTimeout < c.Chat.RoundTimeout {
		errs = append(errs, ibrerr.Errorf(ibrerr.CodeConfigValidateInvalidValue,
			"config: chat.turn_timeout must be at least chat.round_timeout, got %s < %s",
			c.Chat.TurnTimeout, c.Chat.RoundTimeout))
	}
	if c.Chat.EnrichmentWorkers < 1 {
		errs = append(errs, ibrerr.Errorf(ibrerr.CodeConfigValidateInvalidValue,
			"config: chat.enrichment_workers must be at least 1, got %d", c.Chat.EnrichmentWorkers))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true, "memory": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, ibrerr.Errorf(ibrerr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite, memory], got %q", c.Storage.Backend))
	}
	if c.Storage.Backend == "sqlite" && c.Storage.Path == "" {
		errs = append(errs, ibrerr.New(ibrerr.CodeConfigValidateInvalidValue, "config: storage.path must not be empty for sqlite"))
	}

	return errs
}

// ProviderFromModel extracts the provider name from a "provider/model" id.
func ProviderFromModel(model string) string {
	if idx := strings.Index(model, "/"); idx > 0 {
		return model[:idx]
	}
	return model
}

// ModelName extracts the bare model name from a "provider/model" id.
func ModelName(model string) string {
	if idx := strings.Index(model, "/"); idx >= 0 {
		return model[idx+1:]
	}
	return model
}
