package ratelimit

import "time"

// Clock supplies the current time and timers to a Limiter.
//
// The default clock uses time.Now, whose readings carry the monotonic clock, so
// wall-clock adjustments never shift the window.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of *time.Timer used while waiting for a slot.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) NewTimer(d time.Duration) Timer {
	return &systemTimer{t: time.NewTimer(d)}
}

type systemTimer struct {
	t *time.Timer
}

func (s *systemTimer) C() <-chan time.Time {
	return s.t.C
}

func (s *systemTimer) Stop() bool {
	return s.t.Stop()
}
