package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/echotools/phonebook/internal/store"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Ensure collections and indexes and report data problems",
		Long: `Migrate creates the persons and users collections with their
validators and unique indexes (or updates the validators of existing
collections), then reports documents that violate the current rules.`,
		Example: `  phonebook migrate --mongo-uri mongodb://localhost:27017

  # Fail when invalid documents remain
  phonebook migrate --strict`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("strict", false, "Exit with an error when invalid persons or dangling friend references exist")

	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.StoreConfig(), cliLogger())
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Starting schema migration...")

	stats, err := st.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Fprintln(out, "\n=== Migration Statistics ===")
	fmt.Fprintf(out, "Total persons:          %d\n", stats.TotalPersons)
	fmt.Fprintf(out, "Invalid persons:        %d\n", stats.InvalidPersons)
	fmt.Fprintf(out, "Total users:            %d\n", stats.TotalUsers)
	fmt.Fprintf(out, "Dangling friend refs:   %d\n", stats.DanglingFriendRefs)
	fmt.Fprintf(out, "Duration:               %v\n", stats.EndTime.Sub(stats.StartTime))

	if strict, _ := cmd.Flags().GetBool("strict"); strict {
		if stats.InvalidPersons > 0 || stats.DanglingFriendRefs > 0 {
			return fmt.Errorf("validation failed: %d invalid persons, %d dangling friend references",
				stats.InvalidPersons, stats.DanglingFriendRefs)
		}
	}

	fmt.Fprintln(out, "\nMigration completed successfully!")
	return nil
}
