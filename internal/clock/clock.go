package clock

import (
	"time"
)

// Timer is a scheduled call that can be cancelled before it fires.
type Timer interface {
	// Stop prevents the call from running. It reports false if the call
	// already fired or was stopped.
	Stop() bool
}

// Clock schedules deferred calls.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f on its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// Real returns a Clock backed by time.AfterFunc.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
