package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/unklstewy/fleetwatch/internal/api"
	"github.com/unklstewy/fleetwatch/internal/log"
	"github.com/unklstewy/fleetwatch/internal/tracker"
	"github.com/unklstewy/fleetwatch/pkg/positions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracker and the HTTP API",
	Long: `Run the reconciliation scheduler and serve the HTTP API, including
the live WebSocket feed, until interrupted.

On SIGINT or SIGTERM the ticker stops, an in-flight reconciliation is given
the configured grace period to finish, subscribers are disconnected and
the HTTP server shuts down.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Bool("seed-mock", false, "Seed the store with the mock provider's fleet before starting")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := log.WithComponent("serve")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if seed, _ := cmd.Flags().GetBool("seed-mock"); seed {
		mock, ok := a.source.(*positions.Mock)
		if !ok {
			return fmt.Errorf("--seed-mock needs the mock provider, not %q", cfg.Source.Provider)
		}
		n, err := seedFleet(ctx, a.store, mock)
		if err != nil {
			return err
		}
		logger.Info().Int("flights", n).Msg("Seeded mock fleet")
	}

	sched := tracker.NewScheduler(a.engine, tracker.SchedulerConfig{
		Interval:       cfg.Tracker.Interval(),
		RunImmediately: true,
		Logger:         log.WithComponent("scheduler"),
	})
	if err := sched.Start(ctx); err != nil {
		return err
	}

	srv := api.NewServer(api.Deps{
		Flights: a.engine,
		Store:   a.store,
		Hub:     a.hub,
		Config:  cfg.Server,
		Logger:  log.WithComponent("api"),
	})
	httpServer := srv.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", httpServer.Addr).
			Str("provider", a.source.Name()).
			Str("store", cfg.Database.Driver).
			Dur("interval", cfg.Tracker.Interval()).
			Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("Shutting down")
	}

	// Stop ticking first so the last committed tick is published before
	// subscribers are disconnected.
	if err := sched.Stop(cfg.Tracker.ShutdownGrace()); err != nil {
		logger.Warn().Err(err).Msg("Reconciliation cancelled during shutdown")
	}
	a.hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Shutdown complete")
	return runErr
}
