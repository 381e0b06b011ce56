package alerts

import (
	"context"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"

	"github.com/unklstewy/fleetwatch/pkg/flight"
)

// LogNotifier writes alerts to the log.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, a flight.Alert, f flight.TrackedFlight) error {
	n.Logger.Warn().
		Int64("alert", a.ID).
		Int64("flight", f.ID).
		Str("type", string(a.Type)).
		Str("severity", string(a.Severity)).
		Msg(a.Message)
	return nil
}

// DesktopNotifier pops up a desktop notification per alert.
type DesktopNotifier struct {
	send func(title, message string) error
}

// NewDesktopNotifier sets the application name shown by the desktop.
func NewDesktopNotifier(appName string) *DesktopNotifier {
	beeep.AppName = appName //nolint:reassign // beeep exposes no setter
	return &DesktopNotifier{
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

func (n *DesktopNotifier) Notify(ctx context.Context, a flight.Alert, f flight.TrackedFlight) error {
	title := "Flight delay"
	if a.Severity == flight.SeverityHigh {
		title = "Severe flight delay"
	}
	return n.send(title, a.Message)
}
