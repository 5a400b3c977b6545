package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2010089698/sora2-251007-3/internal/db/migrations"
	"github.com/2010089698/sora2-251007-3/internal/infra"
)

// env is the shared wiring every subcommand starts from.
type env struct {
	cfg     *infra.Config
	logger  infra.Logger
	db      *sql.DB
	dialect infra.Dialect
	runner  *infra.SQLRunner
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "videoctl",
		Short:         "Operator tool for the video generation service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("database-url", "", "override DATABASE_URL")

	root.AddCommand(
		newMigrateCmd(),
		newAPIKeyCmd(),
		newJobsCmd(),
		newPollCmd(),
	)
	return root
}

// openEnv loads configuration, connects and migrates the database.
func openEnv(ctx context.Context, cmd *cobra.Command) (*env, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	if override, _ := cmd.Flags().GetString("database-url"); override != "" {
		cfg.DatabaseURL = override
	}
	// stdout carries command output only.
	logger := infra.NewLogger(cfg.AppEnv, cmd.ErrOrStderr())

	db, dialect, err := infra.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if _, err := migrations.Up(ctx, db, string(dialect), logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &env{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		dialect: dialect,
		runner:  infra.NewSQLRunner(db, dialect, logger),
	}, nil
}

func (e *env) Close() error {
	return e.db.Close()
}
