// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/intelbridge/intelbridge/internal/chat"
	"github.com/intelbridge/intelbridge/internal/config"
	"github.com/intelbridge/intelbridge/internal/graph"
	"github.com/intelbridge/intelbridge/internal/intel"
	"github.com/intelbridge/intelbridge/internal/provider"
	"github.com/intelbridge/intelbridge/internal/provider/anthropic"
	"github.com/intelbridge/intelbridge/internal/provider/openai"
	"github.com/intelbridge/intelbridge/internal/server"
	"github.com/intelbridge/intelbridge/internal/store"
	"github.com/intelbridge/intelbridge/internal/store/sqlite"
	ibrerr "github.com/intelbridge/intelbridge/pkg/errors"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the intelbridge HTTP server",
		Long:  "Load configuration, connect to the graph mirror and model providers, and serve the chat API.",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	log := newLogger(cmd)

	graphClient, err := graph.NewClient(graph.ClientConfig{
		Endpoint:   cfg.Graph.Endpoint,
		ServiceKey: cfg.Graph.ServiceKey,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("creating graph client: %w", err)
	}
	resolver := graph.NewResolver(graphClient, log)

	registry, err := buildProviders(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = registry.Close() }()

	sessions, closeStore, err := buildSessionStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	orchestrator := chat.New(chat.Config{
		Providers: registry,
		Catalog:   intel.DefaultCatalog(),
		Tools: intel.Deps{
			Graph:             graphClient,
			Resolver:          resolver,
			Log:               log,
			EnrichmentWorkers: cfg.Chat.EnrichmentWorkers,
		},
		Store:         sessions,
		Log:           log,
		Provider:      config.ProviderFromModel(cfg.Models.Default),
		Model:         config.ModelName(cfg.Models.Default),
		Temperature:   cfg.Models.Temperature,
		MaxTokens:     cfg.Models.MaxTokens,
		HistoryWindow: cfg.Chat.HistoryWindow,
		RoundTimeout:  cfg.Chat.RoundTimeout,
		TurnTimeout:   cfg.Chat.TurnTimeout,
	})

	srv, err := server.New(server.Config{ListenAddr: cfg.Server.Listen}, orchestrator, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting intelbridge",
		"listen", cfg.Server.Listen,
		"model", cfg.Models.Default,
		"storage", cfg.Storage.Backend)

	return srv.Start(ctx)
}

// buildProviders registers one adapter per configured provider and marks the
// provider named by models.default as the registry default.
func buildProviders(cfg *config.Config, log *slog.Logger) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	for name, pc := range cfg.Providers {
		switch name {
		case "openai":
			p, err := openai.New(openai.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
			if err != nil {
				return nil, fmt.Errorf("configuring openai provider: %w", err)
			}
			registry.Register(p)
		case "anthropic":
			p, err := anthropic.New(anthropic.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
			if err != nil {
				return nil, fmt.Errorf("configuring anthropic provider: %w", err)
			}
			registry.Register(p)
		default:
			return nil, ibrerr.Errorf(ibrerr.CodeCLISetupFailure, "unknown provider %q in config", name)
		}
		log.Debug("registered model provider", "provider", name)
	}

	if err := registry.SetDefault(config.ProviderFromModel(cfg.Models.Default)); err != nil {
		return nil, fmt.Errorf("selecting default provider: %w", err)
	}
	return registry, nil
}

// buildSessionStore opens the configured session backend. The returned
// cleanup is a no-op for the memory backend.
func buildSessionStore(cfg *config.Config, log *slog.Logger) (store.SessionStore, func(), error) {
	switch cfg.Storage.Backend {
	case "memory":
		log.Warn("using in-memory session storage, sessions will not survive restarts")
		return store.NewMemoryStore(), func() {}, nil
	case "sqlite":
		s, err := sqlite.NewSessionStore(cfg.Storage.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening session store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, ibrerr.Errorf(ibrerr.CodeCLISetupFailure, "unknown storage backend %q", cfg.Storage.Backend)
	}
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	return log
}
