// Package stats keeps the bridge's operational counters and latency
// quantiles. Quantiles use DDSketch, so memory stays bounded regardless of
// how long the process runs.
//
// All methods are safe on a nil *Collector, which lets components run
// without statistics in tests.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/statbridge/internal/errors"
)

// Collector accumulates bridge statistics.
type Collector struct {
	UpdatesReceived     atomic.Int64
	UpdatesApplied      atomic.Int64
	DiscardInsufficient atomic.Int64
	DiscardMalformed    atomic.Int64
	DiscardUnknown      atomic.Int64
	UnpairedKeys        atomic.Int64
	QueriesServed       atomic.Int64
	QueriesRefused      atomic.Int64

	accuracy float64

	mu           sync.Mutex
	applyLatency *ddsketch.DDSketch
	queryLatency *ddsketch.DDSketch
}

// New creates a collector whose quantiles have the given relative accuracy.
func New(accuracy float64) (*Collector, error) {
	apply, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		return nil, errors.Wrap(err, "create apply sketch")
	}
	query, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		return nil, errors.Wrap(err, "create query sketch")
	}
	return &Collector{
		accuracy:     accuracy,
		applyLatency: apply,
		queryLatency: query,
	}, nil
}

// Received counts an update handed over by the feed.
func (c *Collector) Received() {
	if c == nil {
		return
	}
	c.UpdatesReceived.Add(1)
}

// Applied records a decoded update that replaced its subtree, and how long
// decode plus replace took.
func (c *Collector) Applied(d time.Duration) {
	if c == nil {
		return
	}
	c.UpdatesApplied.Add(1)
	c.observe(c.applyLatency, d)
}

// Discarded counts an update dropped for err.
func (c *Collector) Discarded(err error) {
	if c == nil {
		return
	}
	switch {
	case errors.Is(err, errors.ErrInsufficientData), errors.Is(err, errors.ErrEmptyUpdate):
		c.DiscardInsufficient.Add(1)
	case errors.Is(err, errors.ErrUnknownStatistic):
		c.DiscardUnknown.Add(1)
	default:
		c.DiscardMalformed.Add(1)
	}
}

// Unpaired counts a PerKeyCount key dropped for lack of a count.
func (c *Collector) Unpaired() {
	if c == nil {
		return
	}
	c.UnpairedKeys.Add(1)
}

// Query records one query and its service time. Refused queries are counted
// but do not feed the latency sketch.
func (c *Collector) Query(d time.Duration, refused bool) {
	if c == nil {
		return
	}
	if refused {
		c.QueriesRefused.Add(1)
		return
	}
	c.QueriesServed.Add(1)
	c.observe(c.queryLatency, d)
}

func (c *Collector) observe(s *ddsketch.DDSketch, d time.Duration) {
	us := float64(d) / float64(time.Microsecond)
	if us < 0 {
		us = 0
	}
	c.mu.Lock()
	_ = s.Add(us)
	c.mu.Unlock()
}

// =============================================================================
// Snapshot
// =============================================================================

// Quantiles summarizes one latency distribution in microseconds.
type Quantiles struct {
	Count float64
	P50   float64
	P90   float64
	P99   float64
}

// Snapshot is a point-in-time copy of the collector.
type Snapshot struct {
	UpdatesReceived     int64
	UpdatesApplied      int64
	DiscardInsufficient int64
	DiscardMalformed    int64
	DiscardUnknown      int64
	UnpairedKeys        int64
	QueriesServed       int64
	QueriesRefused      int64
	ApplyLatencyUs      Quantiles
	QueryLatencyUs      Quantiles
}

// Snapshot returns the current values.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}

	s := Snapshot{
		UpdatesReceived:     c.UpdatesReceived.Load(),
		UpdatesApplied:      c.UpdatesApplied.Load(),
		DiscardInsufficient: c.DiscardInsufficient.Load(),
		DiscardMalformed:    c.DiscardMalformed.Load(),
		DiscardUnknown:      c.DiscardUnknown.Load(),
		UnpairedKeys:        c.UnpairedKeys.Load(),
		QueriesServed:       c.QueriesServed.Load(),
		QueriesRefused:      c.QueriesRefused.Load(),
	}

	c.mu.Lock()
	s.ApplyLatencyUs = quantiles(c.applyLatency)
	s.QueryLatencyUs = quantiles(c.queryLatency)
	c.mu.Unlock()

	return s
}

func quantiles(s *ddsketch.DDSketch) Quantiles {
	if s.IsEmpty() {
		return Quantiles{}
	}
	q := Quantiles{Count: s.GetCount()}
	q.P50, _ = s.GetValueAtQuantile(0.50)
	q.P90, _ = s.GetValueAtQuantile(0.90)
	q.P99, _ = s.GetValueAtQuantile(0.99)
	return q
}

// Discarded returns the total number of discarded updates.
func (s Snapshot) Discarded() int64 {
	return s.DiscardInsufficient + s.DiscardMalformed + s.DiscardUnknown
}

// LogArgs flattens the snapshot into slog key/value pairs.
func (s Snapshot) LogArgs() []any {
	return []any{
		"updates_received", s.UpdatesReceived,
		"updates_applied", s.UpdatesApplied,
		"updates_discarded", s.Discarded(),
		"unpaired_keys", s.UnpairedKeys,
		"queries_served", s.QueriesServed,
		"queries_refused", s.QueriesRefused,
		"apply_p50_us", s.ApplyLatencyUs.P50,
		"apply_p99_us", s.ApplyLatencyUs.P99,
		"query_p50_us", s.QueryLatencyUs.P50,
		"query_p99_us", s.QueryLatencyUs.P99,
	}
}
