// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the CLI configuration, loaded from YAML with environment
// overrides. Zero values fall back to the package defaults of each
// component, so a minimal config only needs the backend URL and identity.
type Config struct {
	Backend struct {
		BaseURL        string `yaml:"base_url" validate:"required,url"`
		SearchURL      string `yaml:"search_url" validate:"omitempty,url"`
		TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gte=0,lte=600"`
	} `yaml:"backend"`

	Identity struct {
		OrganizationID string `yaml:"organization_id" validate:"required"`
		UserID         string `yaml:"user_id" validate:"required"`
	} `yaml:"identity"`

	Breaker struct {
		Threshold           int `yaml:"threshold" validate:"gte=0"`
		ResetTimeoutSeconds int `yaml:"reset_timeout_seconds" validate:"gte=0"`
	} `yaml:"breaker"`

	Retry struct {
		MaxAttempts int `yaml:"max_attempts" validate:"gte=0,lte=10"`
		BaseDelayMS int `yaml:"base_delay_ms" validate:"gte=0"`
	} `yaml:"retry"`

	Reveal struct {
		MinMS int `yaml:"min_ms" validate:"gte=0"`
		MaxMS int `yaml:"max_ms" validate:"gte=0"`
	} `yaml:"reveal"`

	Attachments struct {
		Max int `yaml:"max" validate:"gte=0,lte=50"`
	} `yaml:"attachments"`

	Logging struct {
		Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
		Dir   string `yaml:"dir"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	NoStream bool `yaml:"no_stream"`
}

// LoadConfig reads the YAML file at path, applies DOCKSIDE_* environment
// overrides and validates the result. A missing file is not an error when
// the environment supplies the required fields.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// environment-only configuration
	default:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(&cfg)
	applyFlags(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Backend.SearchURL == "" {
		cfg.Backend.SearchURL = cfg.Backend.BaseURL
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Backend.BaseURL, "DOCKSIDE_BASE_URL")
	setString(&cfg.Backend.SearchURL, "DOCKSIDE_SEARCH_URL")
	setInt(&cfg.Backend.TimeoutSeconds, "DOCKSIDE_TIMEOUT_SECONDS")
	setString(&cfg.Identity.OrganizationID, "DOCKSIDE_ORG_ID")
	setString(&cfg.Identity.UserID, "DOCKSIDE_USER_ID")
	setInt(&cfg.Breaker.Threshold, "DOCKSIDE_BREAKER_THRESHOLD")
	setInt(&cfg.Retry.MaxAttempts, "DOCKSIDE_RETRY_MAX_ATTEMPTS")
	setString(&cfg.Logging.Level, "DOCKSIDE_LOG_LEVEL")
	setString(&cfg.Logging.Dir, "DOCKSIDE_LOG_DIR")
	setString(&cfg.Metrics.Addr, "DOCKSIDE_METRICS_ADDR")
}

// applyFlags gives command-line flags the last word over file and env.
func applyFlags(cfg *Config) {
	if serverFlag != "" {
		cfg.Backend.BaseURL = serverFlag
	}
	if orgFlag != "" {
		cfg.Identity.OrganizationID = orgFlag
	}
	if userFlag != "" {
		cfg.Identity.UserID = userFlag
	}
	if metricsFlag != "" {
		cfg.Metrics.Addr = metricsFlag
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
