// Package clock provides the shared wall time used to schedule transitions.
// Every node must agree on this time for deadlines to line up, so all
// scheduling code asks a Clock instead of calling time.Now directly.
package clock

import "time"

// Clock is the time source used by the playback engine.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f in its own goroutine once d has elapsed. A
	// non-positive duration runs f as soon as possible.
	AfterFunc(d time.Duration, f func()) Timer
	// NewTicker delivers the clock's time on C every d. Slow receivers
	// miss ticks rather than block the clock.
	NewTicker(d time.Duration) Ticker
}

// Ticker is a handle to a periodic tick source.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Timer is a handle to a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call from firing. It reports whether the call was
	// stopped before it fired.
	Stop() bool
}

// Until returns the duration from now until t on the given clock.
func Until(c Clock, t time.Time) time.Duration {
	return t.Sub(c.Now())
}

// Millis converts t to fractional milliseconds since the Unix epoch, the unit
// handed to module tick and draw hooks.
func Millis(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Millisecond)
}

// Real is the system clock.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (Real) NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }
