package event

import "time"

// EventDelay pairs an optional duration with the event to cue. An absent
// Duration (HasDuration == false) means "next dispatcher turn" — spec.md
// §3 treats this as equivalent to a zero delay, not as undefined.
type EventDelay struct {
	HasDuration bool
	Duration    time.Duration
	EventID     EventID
}

// ImmediateDelay cues id for the dispatcher's next turn.
func ImmediateDelay(id EventID) EventDelay {
	return EventDelay{EventID: id}
}

// AfterDelay cues id to trigger after d.
func AfterDelay(d time.Duration, id EventID) EventDelay {
	return EventDelay{HasDuration: true, Duration: d, EventID: id}
}

// Resolve returns the effective delay to pass to the queue: zero when no
// duration was configured (spec.md §4.5 "Delay None is equivalent to delay 0").
func (d EventDelay) Resolve() time.Duration {
	if !d.HasDuration {
		return 0
	}
	return d.Duration
}
