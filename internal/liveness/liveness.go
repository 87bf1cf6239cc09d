// Package liveness tracks when the feed last delivered a complete update.
//
// The clock is the only signal from the ingestion path to the query path.
// It is a single atomic timestamp, read without taking the index lock.
package liveness

import (
	"sync/atomic"
	"time"
)

// Clock records the time of the last successful update. It never moves
// backwards.
type Clock struct {
	last atomic.Int64 // Unix nanoseconds
}

// New returns a clock seeded with start, so a freshly started bridge
// answers queries for one threshold before the first update arrives.
func New(start time.Time) *Clock {
	c := &Clock{}
	c.last.Store(start.UnixNano())
	return c
}

// Touch records a successful update at t. Earlier times are ignored.
func (c *Clock) Touch(t time.Time) {
	ns := t.UnixNano()
	for {
		cur := c.last.Load()
		if ns <= cur {
			return
		}
		if c.last.CompareAndSwap(cur, ns) {
			return
		}
	}
}

// Last returns the time of the last successful update.
func (c *Clock) Last() time.Time {
	return time.Unix(0, c.last.Load())
}

// Age returns how long ago the last successful update was, as seen at now.
func (c *Clock) Age(now time.Time) time.Duration {
	return now.Sub(c.Last())
}

// Fresh reports whether the last update is no older than threshold at now.
func (c *Clock) Fresh(now time.Time, threshold time.Duration) bool {
	return c.Age(now) <= threshold
}
