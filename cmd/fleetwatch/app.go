package main

import (
	"context"
	"fmt"
	"time"

	"github.com/unklstewy/fleetwatch/internal/alerts"
	"github.com/unklstewy/fleetwatch/internal/db"
	"github.com/unklstewy/fleetwatch/internal/hub"
	"github.com/unklstewy/fleetwatch/internal/log"
	"github.com/unklstewy/fleetwatch/internal/metrics"
	"github.com/unklstewy/fleetwatch/internal/tracker"
	"github.com/unklstewy/fleetwatch/pkg/config"
	"github.com/unklstewy/fleetwatch/pkg/positions"
	"github.com/unklstewy/fleetwatch/pkg/simulate"
)

// app is the wired pipeline shared by serve and tick.
type app struct {
	cfg    *config.Config
	store  db.Store
	source positions.Source
	hub    *hub.Hub
	engine *tracker.Engine
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Database.Driver, err)
	}

	source, err := positions.NewFromConfig(cfg.Source,
		log.WithProvider("positions", cfg.Source.Provider), metrics.RecordDropped)
	if err != nil {
		store.Close()
		return nil, err
	}

	h := hub.New(log.WithComponent("hub"))
	engine := tracker.NewEngine(tracker.EngineConfig{
		Store:        store,
		Source:       source,
		Simulator:    simulate.New(cfg.Tracker.SimulatorSeed),
		Publisher:    h,
		Bounds:       positions.BoundsFromConfig(cfg.Source.Bounds),
		FetchTimeout: cfg.Source.Timeout(),
		Logger:       log.WithComponent("tracker"),
	})

	if cfg.Alerts.Enabled {
		logger := log.WithComponent("alerts")
		notifiers := []alerts.Notifier{alerts.LogNotifier{Logger: logger}}
		if cfg.Alerts.DesktopNotifications {
			notifiers = append(notifiers, alerts.NewDesktopNotifier("fleetwatch"))
		}
		engine.AddObserver(alerts.NewDelayChecker(store, alerts.Config{
			DelayThreshold:        time.Duration(cfg.Alerts.DelayThresholdMinutes) * time.Minute,
			HighSeverityThreshold: time.Duration(cfg.Alerts.HighSeverityMinutes) * time.Minute,
		}, logger, notifiers...))
	}

	return &app{cfg: cfg, store: store, source: source, hub: h, engine: engine}, nil
}

func (a *app) Close() error {
	a.hub.Close()
	return a.store.Close()
}

// seedFleet stores the mock provider's fleet so the tracker has flights
// the mock reports on.
func seedFleet(ctx context.Context, store db.FlightStore, mock *positions.Mock) (int, error) {
	n := 0
	for _, f := range mock.Fleet() {
		f.LastUpdated = time.Now().UTC()
		if _, err := store.CreateFlight(ctx, f); err != nil {
			return n, fmt.Errorf("failed to seed flight %s: %w", f.FlightID, err)
		}
		n++
	}
	return n, nil
}
