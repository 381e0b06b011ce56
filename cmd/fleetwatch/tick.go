package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/unklstewy/fleetwatch/internal/tracker"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one reconciliation cycle and print the summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Source.Timeout()+time.Minute)
		defer cancel()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.engine.Tick(ctx)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), a.source.Name(), res)
		return nil
	},
}

func printResult(w io.Writer, provider string, res tracker.Result) {
	fmt.Fprintf(w, "Reconciled at %s\n", res.At.UTC().Format(time.RFC3339))
	if res.SourceFailed {
		fmt.Fprintf(w, "  Provider:        %s (unavailable, all flights simulated)\n", provider)
	} else {
		fmt.Fprintf(w, "  Provider:        %s (%d records)\n", provider, res.Records)
	}
	fmt.Fprintf(w, "  Matched by ID:   %d\n", res.MatchedByID)
	fmt.Fprintf(w, "  Matched by tail: %d\n", res.MatchedByTail)
	fmt.Fprintf(w, "  Simulated:       %d\n", res.Simulated)
	fmt.Fprintf(w, "  Active flights:  %d\n", res.Active)
}
