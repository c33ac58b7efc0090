package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opustrack/opustrack/internal/config"
	"github.com/opustrack/opustrack/internal/database"
)

// NewMigrateCommand creates the migrate command with up, down and status.
func NewMigrateCommand(_ *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(migrateStep("up", "Apply every pending migration", database.Migrate))
	cmd.AddCommand(migrateStep("down", "Revert the most recent migration", database.Rollback))
	cmd.AddCommand(migrateStep("status", "Print the state of every migration", database.MigrationStatus))
	return cmd
}

func migrateStep(use, short string, fn func(context.Context, *sql.DB) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *sql.DB) error {
				return fn(cmd.Context(), db)
			})
		},
	}
}

// withDB opens the configured database for the duration of fn.
func withDB(fn func(*sql.DB) error) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	return fn(db)
}
