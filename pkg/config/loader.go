// Copyright 2025 Kadir Pekel
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

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/relay/pkg/config/provider"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Loader loads and watches configuration from a Provider.
type Loader struct {
	provider provider.Provider
	onChange func(*Config)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOnChange sets a callback invoked when config changes.
func WithOnChange(fn func(*Config)) LoaderOption {
	return func(l *Loader) {
		l.onChange = fn
	}
}

// NewLoader creates a Loader with the given provider.
func NewLoader(p provider.Provider, opts ...LoaderOption) *Loader {
	l := &Loader{
		provider: p,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads, parses, and processes the configuration.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	data, err := l.provider.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return Parse(data)
}

// Parse runs the full config pipeline over raw bytes.
func Parse(data []byte) (*Config, error) {
	rawMap, err := parseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expandedMap := expandEnvVars(rawMap)

	cfg := &Config{}
	if err := decodeConfig(expandedMap, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Watch starts watching for config changes.
// When changes are detected, the config is reloaded and onChange is called.
// Blocks until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context) error {
	changes, err := l.provider.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start watching: %w", err)
	}

	if changes == nil {
		slog.Info("Config watching not supported by provider", "type", l.provider.Type())
		<-ctx.Done()
		return ctx.Err()
	}

	slog.Info("Started watching for config changes", "type", l.provider.Type())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil // Channel closed
			}

			cfg, err := l.Load(ctx)
			if err != nil {
				slog.Error("Failed to reload config", "error", err)
				continue
			}

			slog.Info("Configuration reloaded successfully")
			if l.onChange != nil {
				l.onChange(cfg)
			}
		}
	}
}

// Close releases resources held by the loader.
func (l *Loader) Close() error {
	return l.provider.Close()
}

// parseBytes parses raw bytes into a map.
// Supports YAML (primary) and JSON (fallback).
func parseBytes(data []byte) (map[string]any, error) {
	var result map[string]any

	// YAML is a superset of JSON, so try it first
	if err := yaml.Unmarshal(data, &result); err == nil {
		return result, nil
	}

	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse as YAML or JSON: %w", err)
	}

	return result, nil
}

// decodeConfig decodes a map into a Config struct using mapstructure.
func decodeConfig(input map[string]any, output *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}

	return nil
}
