package serialmux

import (
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/ld2450/internal/ld2450"
)

// TargetEvent is one decoded data frame as delivered to subscribers.
type TargetEvent struct {
	ID      string          `json:"id"`
	Time    time.Time       `json:"time"`
	Targets []ld2450.Target `json:"targets"`
}

// NewTargetEvent stamps targets with a fresh ID and the current time.
func NewTargetEvent(targets []ld2450.Target) TargetEvent {
	return TargetEvent{
		ID:      uuid.NewString(),
		Time:    time.Now().UTC(),
		Targets: targets,
	}
}

// Event classes returned by Classify.
const (
	EventTypeEmpty       = "empty"
	EventTypeApproaching = "approaching"
	EventTypeReceding    = "receding"
	EventTypeStationary  = "stationary"
)

// Classify returns a coarse label for an event. One approaching target is
// enough for EventTypeApproaching, then one receding target for
// EventTypeReceding.
func Classify(ev TargetEvent) string {
	if len(ev.Targets) == 0 {
		return EventTypeEmpty
	}
	receding := false
	for _, t := range ev.Targets {
		if t.Approaching() {
			return EventTypeApproaching
		}
		if t.Speed > 0 {
			receding = true
		}
	}
	if receding {
		return EventTypeReceding
	}
	return EventTypeStationary
}

// randomID returns a subscriber ID.
func randomID() string {
	return uuid.NewString()
}
