package utils

import "time"

type ReconnectStrategy interface {
	// NextDelay records one failed attempt and returns how long to wait
	// before retrying. ok is false once no further retry is allowed.
	NextDelay() (delay time.Duration, ok bool)
	Reset()
	Failures() int
}

// FixedBackoff retries after a constant delay and gives up after
// maxFailures consecutive failures.
type FixedBackoff struct {
	delay       time.Duration
	maxFailures int
	failures    int
}

func NewFixedBackoff(delay time.Duration, maxFailures int) *FixedBackoff {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &FixedBackoff{
		delay:       delay,
		maxFailures: maxFailures,
	}
}

func (f *FixedBackoff) NextDelay() (time.Duration, bool) {
	f.failures++
	if f.failures >= f.maxFailures {
		return 0, false
	}
	return f.delay, true
}

func (f *FixedBackoff) Reset() {
	f.failures = 0
}

func (f *FixedBackoff) Failures() int {
	return f.failures
}
