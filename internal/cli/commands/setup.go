// Package commands implements the snowglobe subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/leapstack-labs/snowglobe/internal/cli/config"
	"github.com/leapstack-labs/snowglobe/internal/engine"
	"github.com/leapstack-labs/snowglobe/internal/fetch"
	"github.com/leapstack-labs/snowglobe/internal/store"
	"github.com/leapstack-labs/snowglobe/pkg/identity"
	"github.com/spf13/cobra"
)

// ConfigKey stores the loaded config in the command context.
type ConfigKey struct{}

// LoggerKey stores the CLI logger in the command context.
type LoggerKey struct{}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Engine *engine.Engine
}

// NewCommandContext creates a CommandContext with an engine. Returns the
// context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig(cmd.Context())
	logger := getLogger(cmd.Context())

	eng, err := createEngine(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		_ = eng.Close()
	}

	return &CommandContext{
		Cfg:    cfg,
		Logger: logger,
		Engine: eng,
	}, cleanup, nil
}

// getConfig returns the configuration from the command context, falling
// back to defaults so commands stay usable in tests that skip the root
// command's PersistentPreRunE.
func getConfig(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(ConfigKey{}).(*config.Config); ok && cfg != nil {
		return cfg
	}
	return &config.Config{
		Profile:  config.DefaultProfile,
		StateDir: config.DefaultStateDir,
		Refresh: config.RefreshConfig{
			Threads:       config.DefaultThreads,
			RemovalPolicy: config.DefaultRemovalPolicy,
		},
		OutputFormat: config.DefaultOutput,
	}
}

func getLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

func createEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	if err := os.MkdirAll(cfg.StateDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	profile, ok := cfg.ActiveProfile()
	if !ok && len(cfg.Profiles) > 0 {
		return nil, fmt.Errorf("profile %q not found in profiles", cfg.Profile)
	}

	policy, err := store.ParsePolicy(cfg.Refresh.RemovalPolicy)
	if err != nil {
		return nil, err
	}

	types := make([]identity.Type, 0, len(cfg.Refresh.ObjectTypes))
	for _, t := range cfg.Refresh.ObjectTypes {
		parsed, err := identity.ParseType(t)
		if err != nil {
			return nil, err
		}
		types = append(types, parsed)
	}

	eng := engine.New(engine.Config{
		Fetch: fetch.Config{
			Type:      profile.Type,
			Account:   profile.Account,
			User:      profile.User,
			Password:  profile.Password,
			Role:      profile.Role,
			Warehouse: profile.Warehouse,
			Database:  profile.Database,
			Schema:    profile.Schema,
			Path:      profile.Path,
			Options:   profile.Options,
		},
		Profile:   cfg.Profile,
		Databases: cfg.Refresh.Databases,
		Schema:    cfg.Refresh.Schema,
		Types:     types,
		Workers:   cfg.Refresh.Threads,
		StateDir:  cfg.StateDir,
		Policy:    policy,
		Logger:    logger,
	})
	return eng, nil
}

// formatCyclePath renders a cycle as "a -> b -> a".
func formatCyclePath(cycle []identity.Identity) string {
	var b strings.Builder
	for i, id := range cycle {
		if i > 0 {
			b.WriteString(" -> ")
		}
		b.WriteString(id.FQN())
	}
	if len(cycle) > 0 {
		b.WriteString(" -> ")
		b.WriteString(cycle[0].FQN())
	}
	return b.String()
}
