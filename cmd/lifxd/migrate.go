package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-lifx/migrations"
)

var errDatabaseDisabled = errors.New("database.enabled is false in configuration")

func migrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or change the history database schema",
	}

	withDB := func(run func(ctx context.Context, db *database.DB, out io.Writer) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			db, err := openHistoryDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // read-mostly, process exits next
			return run(cmd.Context(), db, cmd.OutOrStdout())
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			RunE:  withDB(writeMigrationStatus),
		},
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: withDB(func(ctx context.Context, db *database.DB, out io.Writer) error {
				if err := db.Migrate(ctx, migrations.FS); err != nil {
					return err
				}
				return writeMigrationStatus(ctx, db, out)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert the newest applied migration",
			RunE: withDB(func(ctx context.Context, db *database.DB, out io.Writer) error {
				if err := db.MigrateDown(ctx, migrations.FS); err != nil {
					return err
				}
				return writeMigrationStatus(ctx, db, out)
			}),
		},
	)
	return cmd
}

func openHistoryDB(cfg *config.Config) (*database.DB, error) {
	if !cfg.Database.Enabled {
		return nil, errDatabaseDisabled
	}
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func writeMigrationStatus(ctx context.Context, db *database.DB, out io.Writer) error {
	applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0) //nolint:mnd // column padding
	fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED")
	for _, r := range applied {
		fmt.Fprintf(tw, "%s\tapplied\t%s\n", r.Version, r.AppliedAt.Local().Format(time.DateTime))
	}
	for _, m := range pending {
		fmt.Fprintf(tw, "%s\tpending\t%s\n", m.Version, m.Name)
	}
	return tw.Flush()
}
