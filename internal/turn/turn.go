package turn

import "time"

// Clock maps wall-clock time to a monotonically increasing turn number.
// Every component that needs "what turn is it" must go through the same
// Clock instance; computing it twice with different epochs desyncs the
// scheduler from settlement.
type Clock struct {
	Epoch  time.Time
	Length time.Duration
}

// Default is the production clock: one turn per UTC day since the Unix epoch.
func Default() Clock {
	return Clock{
		Epoch:  time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		Length: 24 * time.Hour,
	}
}

// Current returns the turn number containing now. Times before the epoch
// clamp to turn 0.
func (c Clock) Current(now time.Time) int64 {
	length := c.Length
	if length <= 0 {
		length = 24 * time.Hour
	}
	d := now.UTC().Sub(c.Epoch)
	if d < 0 {
		return 0
	}
	return int64(d / length)
}
