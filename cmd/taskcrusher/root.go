// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/taskcrusher/internal/config"
	"github.com/holomush/taskcrusher/internal/logging"
	"github.com/holomush/taskcrusher/pkg/errutil"
)

const serviceName = "taskcrusher"

// rootOptions holds the persistent flags that are not config keys.
type rootOptions struct {
	configFile string
	envFile    string
}

// cli carries what every subcommand needs.
type cli struct {
	deps *Deps
	opts *rootOptions
}

// NewRootCmd creates the root command for the Task Crusher CLI. If deps is
// nil, default implementations are used.
func NewRootCmd(deps *Deps) *cobra.Command {
	c := &cli{deps: deps.withDefaults(), opts: &rootOptions{}}

	cmd := &cobra.Command{
		Use:   "taskcrusher",
		Short: "Task Crusher - account management for a task manager",
		Long: `Task Crusher manages user accounts for a task manager: registration,
bcrypt or argon2id credentials, signed session tokens, profile edits,
avatars, and cascading account deletion.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.opts.configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/taskcrusher/config.yaml)")
	flags.StringVar(&c.opts.envFile, "env-file", "", "dotenv file loaded before environment overrides")
	flags.String("database-url", "", "PostgreSQL connection URL")
	flags.String("log-format", "", "log format (json or text)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("metrics-addr", "", "metrics/health HTTP address")

	cmd.AddCommand(c.newServeCmd())
	cmd.AddCommand(c.newMigrateCmd())
	cmd.AddCommand(c.newStatusCmd())
	cmd.AddCommand(c.newUserCmd())
	cmd.AddCommand(c.newTaskCmd())
	cmd.AddCommand(c.newConfigCmd())

	return cmd
}

// loadConfig loads the layered configuration and builds the logger it asks for.
func (c *cli) loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := c.deps.LoadConfig(config.Options{
		File:    c.opts.configFile,
		EnvFile: c.opts.envFile,
		Flags:   cmd.Flags(),
	})
	if err != nil {
		return nil, nil, err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	logger := logging.Setup(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
	}, cmd.ErrOrStderr())
	return cfg, logger, nil
}

// withApp runs fn against a freshly wired App and closes it afterwards.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	cfg, logger, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	app, err := c.deps.NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(context.WithoutCancel(ctx)); closeErr != nil {
			errutil.LogError(logger, "shutdown incomplete", closeErr)
		}
	}()
	return fn(ctx, app)
}

// printJSON writes v to standard output as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return oops.Code("OUTPUT_FAILED").Wrap(err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
