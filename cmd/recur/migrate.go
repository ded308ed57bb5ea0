package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-recur/internal/cli"
	"github.com/Veraticus/spice-recur/internal/config"
	"github.com/Veraticus/spice-recur/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This command ensures your local database has the transactions table
and the indexes series operations rely on.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	status, _ := cmd.Flags().GetBool("status")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.Info("Starting database migration",
		"database", cfg.DatabasePath,
		"status_only", status)

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath, storage.WithBusyRetries(cfg.BusyRetries))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer closeStorage(store)

	if status {
		current, err := store.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, cli.FormatTitle("Database Migration Status"))
		fmt.Fprintf(out, "Database: %s\n", cfg.DatabasePath)
		fmt.Fprintf(out, "Current version: %d\n", current)
		fmt.Fprintf(out, "Latest version: %d\n", storage.ExpectedSchemaVersion)
		if current < storage.ExpectedSchemaVersion {
			fmt.Fprintln(out, cli.FormatWarning("Run `recur migrate` to apply pending migrations"))
		}
		return nil
	}

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Fprintln(out, cli.FormatSuccess("Database migrations completed successfully!"))
	return nil
}
