package engine

import "time"

// Clock is the wall clock the transport anchors to. The system clock is used
// in production; tests substitute a clock they can advance by hand.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the monotonic system clock.
func SystemClock() Clock { return systemClock{} }
