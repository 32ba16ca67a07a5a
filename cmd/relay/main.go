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

// Command relay is the agent command gateway CLI.
//
// Usage:
//
//	relay serve --config relay.yaml
//	relay validate relay.yaml
//	relay schema > config.schema.json
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/relay/pkg/agent"
	"github.com/kadirpekel/relay/pkg/auth"
	"github.com/kadirpekel/relay/pkg/bus"
	"github.com/kadirpekel/relay/pkg/config"
	"github.com/kadirpekel/relay/pkg/config/provider"
	"github.com/kadirpekel/relay/pkg/gateway"
	"github.com/kadirpekel/relay/pkg/httpclient"
	"github.com/kadirpekel/relay/pkg/observability"
	"github.com/kadirpekel/relay/pkg/orchestrator"
	"github.com/kadirpekel/relay/pkg/ratelimit"
	"github.com/kadirpekel/relay/pkg/workflow"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the relay gateway."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate JSON Schema for the configuration."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, or standard)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("relay version %s\n", version)
	return nil
}

// ServeCmd starts the gateway server.
type ServeCmd struct {
	Port  int  `help:"Port to listen on (overrides config)."`
	Watch bool `help:"Watch config file for changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	if cli.Config == "" {
		return fmt.Errorf("--config is required")
	}
	if err := config.LoadEnvFiles(); err != nil {
		return err
	}

	p, err := provider.New(provider.ProviderConfig{Path: cli.Config})
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}

	var workflows *workflow.DefinitionStore
	loader := config.NewLoader(p, config.WithOnChange(func(updated *config.Config) {
		// Only workflow definitions apply without a restart.
		if workflows == nil {
			return
		}
		for id, def := range updated.Workflows {
			if err := workflows.Put(id, def); err != nil {
				slog.Warn("Skipping reloaded workflow", "workflow_id", id, "error", err)
			}
		}
	}))
	defer loader.Close()

	cfg, err := loader.Load(ctx)
	if err != nil {
		return err
	}
	slog.Info("Loaded configuration", "path", cli.Config)

	if c.Watch {
		go func() {
			if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Config watch error", "error", err)
			}
		}()
	}

	obs := observability.NoopManager()
	if cfg.Observability != nil {
		obs = observability.NewManager(*cfg.Observability)
	}
	if err := obs.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			slog.Warn("Observability shutdown failed", "error", err)
		}
	}()

	recorder, err := bus.NewFromConfig(&cfg.Bus)
	if err != nil {
		return fmt.Errorf("failed to create bus recorder: %w", err)
	}
	defer recorder.Close()

	registry, err := agent.NewFromConfig(cfg.Agents, cfg.Gateway.DefaultRateLimitRPM)
	if err != nil {
		return fmt.Errorf("failed to seed agent registry: %w", err)
	}

	verifier, err := auth.NewVerifier(cfg.Gateway.SigningSecret,
		auth.WithReplayTolerance(cfg.Gateway.ReplayTolerance))
	if err != nil {
		return fmt.Errorf("failed to create signature verifier: %w", err)
	}

	limiter, err := ratelimit.NewLimiter(ratelimit.NewMemoryStore())
	if err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}

	sink, err := bus.NewSink(recorder, "relay")
	if err != nil {
		return fmt.Errorf("failed to create dispatch sink: %w", err)
	}

	callerOpts := []orchestrator.HTTPCallerOption{orchestrator.WithRequestSigner(verifier)}
	if cfg.Gateway.AgentCACert != "" || cfg.Gateway.AgentTLSSkipVerify {
		callerOpts = append(callerOpts, orchestrator.WithClient(httpclient.New(
			httpclient.WithTLSConfig(&httpclient.TLSConfig{
				CACertificate:      cfg.Gateway.AgentCACert,
				InsecureSkipVerify: cfg.Gateway.AgentTLSSkipVerify,
			}),
		)))
	}
	caller, err := orchestrator.NewHTTPCaller(registry, callerOpts...)
	if err != nil {
		return fmt.Errorf("failed to create agent caller: %w", err)
	}
	orch, err := orchestrator.New(caller, registry, recorder)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	executor := workflow.NewExecutor(sink, orch)
	runner := workflow.NewRunner(executor)
	workflows = workflow.NewDefinitionStore(cfg.Workflows)

	handlers, err := gateway.NewHandlers(
		registry,
		auth.NewAuthorizer(cfg.Gateway.Capabilities),
		limiter,
		runner,
		orch,
		sink,
		recorder,
		workflows,
	)
	if err != nil {
		return fmt.Errorf("failed to create gateway handlers: %w", err)
	}

	port := cfg.Server.Port
	if c.Port != 0 {
		port = c.Port
	}
	serverOpts := []gateway.ServerOption{
		gateway.WithAddress(cfg.Server.Host, port),
		gateway.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
	}
	if cfg.Server.Admin != nil {
		validator, err := auth.NewJWTValidator(
			cfg.Server.Admin.JWKSURL,
			cfg.Server.Admin.Issuer,
			cfg.Server.Admin.Audience,
		)
		if err != nil {
			return fmt.Errorf("failed to create admin JWT validator: %w", err)
		}
		serverOpts = append(serverOpts, gateway.WithAdminAuth(validator, cfg.Server.Admin.Role))
	}

	srv, err := gateway.NewServer(handlers, verifier, registry, serverOpts...)
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}

	fmt.Printf("\nRelay gateway ready\n")
	fmt.Printf("   Commands:  http://%s/v1/commands\n", srv.Address())
	fmt.Printf("   Health:    http://%s/health\n", srv.Address())
	fmt.Printf("   Metrics:   http://%s/metrics\n", srv.Address())
	if cfg.Server.Admin != nil {
		fmt.Printf("   Admin:     http://%s/v1/admin\n", srv.Address())
	}
	fmt.Printf("   Agents:    %d registered\n", len(cfg.Agents))
	fmt.Printf("   Workflows: %d defined\n", len(cfg.Workflows))
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.Start(ctx)
}

func main() {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("relay"),
		kong.Description("Agent command gateway, workflow engine, and orchestrator."),
		kong.UsageOnError(),
	)

	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	if err := kctx.Run(cli); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
