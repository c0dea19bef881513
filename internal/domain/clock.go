package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock stamps run IDs, cache envelopes and batch timings.
var clock = clockwork.NewRealClock()

// SetClock replaces the time source. nil restores the wall clock.
func SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	clock = c
}

// Now reads the current time from the installed clock.
func Now() time.Time {
	return clock.Now()
}
