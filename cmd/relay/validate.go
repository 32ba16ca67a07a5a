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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/relay/pkg/config"
	"github.com/kadirpekel/relay/pkg/config/provider"
)

// ValidateCmd validates a configuration file.
type ValidateCmd struct {
	Config string `arg:"" name:"config" help:"Configuration file path." placeholder:"PATH"`

	Format string `short:"f" help:"Output format: compact, json." default:"compact" enum:"compact,json"`

	PrintConfig bool `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	ctx := context.Background()

	if err := config.LoadEnvFiles(); err != nil {
		return err
	}

	p, err := provider.New(provider.ProviderConfig{Path: c.Config})
	if err != nil {
		return c.printError(err)
	}
	loader := config.NewLoader(p)
	defer loader.Close()

	cfg, err := loader.Load(ctx)
	if err != nil {
		return c.printError(err)
	}

	if c.Format == "json" {
		out, err := json.MarshalIndent(map[string]any{
			"valid":     true,
			"path":      c.Config,
			"agents":    len(cfg.Agents),
			"workflows": len(cfg.Workflows),
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		fmt.Printf("✓ %s is valid (%d agents, %d workflows)\n", c.Config, len(cfg.Agents), len(cfg.Workflows))
	}

	if c.PrintConfig {
		expanded, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Println(string(expanded))
	}
	return nil
}

func (c *ValidateCmd) printError(err error) error {
	if c.Format == "json" {
		out, _ := json.MarshalIndent(map[string]any{
			"valid": false,
			"path":  c.Config,
			"error": err.Error(),
		}, "", "  ")
		fmt.Println(string(out))
		os.Exit(1)
	}
	return fmt.Errorf("%s is invalid: %w", c.Config, err)
}
