package positions

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/unklstewy/fleetwatch/pkg/config"
	"github.com/unklstewy/fleetwatch/pkg/geo"
)

// NewFromConfig builds the Source selected by cfg.Provider. The choice is
// made from configuration only; no provider is contacted to decide.
func NewFromConfig(cfg config.SourceConfig, logger zerolog.Logger, onDrop DropFunc) (Source, error) {
	retry := DefaultRetryConfig()
	retry.MaxRetries = cfg.RetryAttempts

	opts := Options{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Timeout:           cfg.Timeout(),
		RequestsPerMinute: cfg.RequestsPerMinute,
		Retry:             retry,
		Logger:            logger,
		OnDrop:            onDrop,
	}

	switch cfg.Provider {
	case config.ProviderFlightradar24:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("flightradar24 provider requires an API key")
		}
		return NewFlightradar24Client(opts), nil

	case config.ProviderAirplanesLive:
		region := Region{
			Center:   geo.Point{Latitude: cfg.Region.Latitude, Longitude: cfg.Region.Longitude},
			RadiusNM: cfg.Region.RadiusNM,
		}
		return NewAirplanesLiveClient(opts, region), nil

	case config.ProviderOpenSky:
		return NewOpenSkyClient(opts), nil

	case config.ProviderMock:
		return NewMock(cfg.MockFlights, cfg.MockSeed, time.Now(), nil), nil

	default:
		return nil, fmt.Errorf("unknown position provider %q", cfg.Provider)
	}
}

// BoundsFromConfig converts configured bounds, returning nil when unset.
func BoundsFromConfig(b *config.BoundsConfig) *geo.Bounds {
	if b == nil {
		return nil
	}
	return &geo.Bounds{North: b.North, South: b.South, West: b.West, East: b.East}
}
