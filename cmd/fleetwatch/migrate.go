package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/unklstewy/fleetwatch/internal/db"
	"github.com/unklstewy/fleetwatch/pkg/config"
	"github.com/unklstewy/fleetwatch/pkg/positions"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Initialize the store schema",
	Long: `Initialize the schema of the configured store. PostgreSQL tables and
indexes are created if missing; a bolt file gets its buckets.

With --seed-mock the store is also filled with the mock provider's fleet.
Set source.mock_seed so a later serve reports on the same flights.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Database.Driver == config.DriverMemory {
			return fmt.Errorf("the memory store has no schema to migrate")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		store, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open %s store: %w", cfg.Database.Driver, err)
		}
		defer store.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s schema ready\n", cfg.Database.Driver)

		if seed, _ := cmd.Flags().GetBool("seed-mock"); seed {
			if cfg.Source.MockSeed == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "Warning: source.mock_seed is 0, serve will generate a different fleet")
			}
			mock := positions.NewMock(cfg.Source.MockFlights, cfg.Source.MockSeed, time.Now(), nil)
			n, err := seedFleet(ctx, store, mock)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Seeded %d mock flights\n", n)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("seed-mock", false, "Seed the store with the mock provider's fleet")
}
