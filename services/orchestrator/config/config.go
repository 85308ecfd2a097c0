// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads orchestrator settings. Precedence, lowest to
// highest: built-in defaults, an optional YAML file, environment
// variables. The API key is env-only and never read from a file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the orchestrator process.
type Config struct {
	// Port the HTTP server listens on.
	Port string `yaml:"port"`

	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path"`

	// GroqAPIKey authenticates model calls. Env-only (GROQ_API_KEY).
	GroqAPIKey string `yaml:"-"`

	// GroqModel selects the chat model.
	GroqModel string `yaml:"groq_model"`

	// LLMTimeoutSeconds bounds a single model call.
	LLMTimeoutSeconds int `yaml:"llm_timeout_seconds"`

	// RateLimit and RateWindowSeconds shape the per-session generation
	// budget.
	RateLimit         int `yaml:"rate_limit"`
	RateWindowSeconds int `yaml:"rate_window_seconds"`

	// OTELEndpoint enables tracing export when set.
	OTELEndpoint string `yaml:"otel_endpoint"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:              "8080",
		DBPath:            "thinkbox.db",
		GroqModel:         "llama-3.3-70b-versatile",
		LLMTimeoutSeconds: 60,
		RateLimit:         15,
		RateWindowSeconds: 60,
	}
}

// Load builds the effective configuration. A config file is read from
// THINKBOX_CONFIG when set, otherwise thinkbox.yaml in the working
// directory when present.
func Load() (Config, error) {
	cfg := Defaults()

	path := os.Getenv("THINKBOX_CONFIG")
	optional := path == ""
	if optional {
		path = "thinkbox.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !optional {
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ORCHESTRATOR_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("THINKBOX_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	cfg.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	if v := os.Getenv("GROQ_MODEL"); v != "" {
		cfg.GroqModel = v
	}
	if v := os.Getenv("LLM_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLMTimeoutSeconds = n
		}
	}
	if v := os.Getenv("THINKBOX_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit = n
		}
	}
	if v := os.Getenv("THINKBOX_RATE_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateWindowSeconds = n
		}
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
}

func (c *Config) validate() error {
	if c.LLMTimeoutSeconds <= 0 {
		return fmt.Errorf("llm_timeout_seconds must be positive, got %d", c.LLMTimeoutSeconds)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive, got %d", c.RateLimit)
	}
	if c.RateWindowSeconds <= 0 {
		return fmt.Errorf("rate_window_seconds must be positive, got %d", c.RateWindowSeconds)
	}
	return nil
}

// LLMTimeout returns the per-call deadline as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

// RateWindow returns the rate-gate window as a duration.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.RateWindowSeconds) * time.Second
}
