package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/user/genie/internal/chat"
	"github.com/user/genie/internal/config"
	"github.com/user/genie/internal/models"
	"github.com/user/genie/internal/state"
	"github.com/user/genie/internal/tokens"
	"github.com/user/genie/internal/types"
	"github.com/user/genie/pkg/llm"
	"github.com/user/genie/pkg/llm/gemini"
	"github.com/user/genie/pkg/llm/openai"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "genie",
	Short:         "Multi-session chat client for Gemini and OpenAI-compatible models",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file or exits; every command needs it.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// app bundles the long-lived components shared by the commands.
type app struct {
	cfg      *config.Config
	registry *models.Registry
	kv       types.KeyValueStore
	store    *state.ConversationStore
	ctl      *chat.Controller

	closeOnce sync.Once
}

func (a *app) Close() {
	a.closeOnce.Do(func() {
		if err := a.kv.Close(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
	})
}

// openStore opens persistence without any model backends, for commands that
// only read or edit saved sessions.
func openStore(cfg *config.Config) (*models.Registry, types.KeyValueStore, *state.ConversationStore, error) {
	registry, err := models.NewRegistry(cfg.Models...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build model registry: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	kv, err := state.Open(cfg.Store.Driver, cfg.DataDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	return registry, kv, state.NewConversationStore(kv, registry), nil
}

// buildBackend routes every registered model to the backend of its provider.
// Providers without credentials stay unrouted and surface as send errors.
func buildBackend(ctx context.Context, cfg *config.Config, registry *models.Registry) (llm.Backend, error) {
	router := llm.NewRouter(nil)

	if cfg.Gemini.APIKey != "" {
		client, err := gemini.New(ctx, &llm.Config{APIKey: cfg.Gemini.APIKey, BaseURL: cfg.Gemini.BaseURL})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		router.Route(client, registry.ByProvider(models.ProviderGemini)...)
	} else {
		slog.Debug("gemini backend disabled (no api key)")
	}

	if cfg.OpenAI.APIKey != "" || cfg.OpenAI.BaseURL != "https://api.openai.com/v1" {
		client := openai.New(&llm.Config{APIKey: cfg.OpenAI.APIKey, BaseURL: cfg.OpenAI.BaseURL})
		router.Route(client, registry.ByProvider(models.ProviderOpenAI)...)
	} else {
		slog.Debug("openai backend disabled (no api key)")
	}

	return router, nil
}

// buildApp wires the registry, store, backends and controller and loads the
// saved sessions.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	registry, kv, store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	backend, err := buildBackend(ctx, cfg, registry)
	if err != nil {
		kv.Close()
		return nil, err
	}

	opts := chat.Options{
		Backend: backend,
		Store:   store,
		Models:  registry,
		Logger:  slog.Default(),
	}
	if counter, err := tokens.New("gpt-4o"); err != nil {
		slog.Warn("token estimates disabled", "error", err)
	} else {
		opts.Tokens = counter
	}

	ctl := chat.New(opts)
	if err := ctl.Load(ctx); err != nil {
		kv.Close()
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	slog.Debug("genie initialised",
		"data_dir", cfg.DataDir,
		"store", cfg.Store.Driver,
		"default_model", ctl.DefaultModel(),
		"sessions", len(ctl.Sessions()),
	)

	return &app{cfg: cfg, registry: registry, kv: kv, store: store, ctl: ctl}, nil
}
