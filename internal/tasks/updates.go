package tasks

import (
	"time"

	"github.com/desertthunder/jukebox/internal/models"
)

// Outcome is what a reconciliation tick did.
type Outcome int

const (
	// OutcomeError means the tick could not read the state it needed and did nothing.
	OutcomeError Outcome = iota
	OutcomeDeviceUnknown
	OutcomeSlotFilled
	OutcomeQueueEmpty
	OutcomeNoDevice
	OutcomePushFailed
	OutcomeInjected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeError:
		return "error"
	case OutcomeDeviceUnknown:
		return "device_unknown"
	case OutcomeSlotFilled:
		return "slot_filled"
	case OutcomeQueueEmpty:
		return "queue_empty"
	case OutcomeNoDevice:
		return "no_device"
	case OutcomePushFailed:
		return "push_failed"
	case OutcomeInjected:
		return "injected"
	default:
		return ""
	}
}

// TickResult reports a single reconciliation tick.
//
// Song and At are set once a song was selected. Errors collects failures of the best-effort steps that
// follow a successful push; they never change the outcome.
type TickResult struct {
	Outcome Outcome
	Song    *models.Song
	At      time.Time
	Err     error   // Reason the tick stopped early
	Errors  []error // Best-effort step failures after a push
}

// Acted reports whether the tick pushed a song to the device.
func (r TickResult) Acted() bool {
	return r.Outcome == OutcomeInjected
}

func (r TickResult) String() string {
	if r.Song == nil {
		return r.Outcome.String()
	}
	return r.Outcome.String() + ": " + r.Song.String()
}
