// Package query answers exact and successor lookups against the index,
// gated by feed liveness.
//
// When the last successful update is older than the threshold every query
// fails with errors.ErrUnavailable and the index is not consulted. An
// unavailable answer is preferred over a stale one.
package query

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xtxerr/statbridge/internal/errors"
	"github.com/xtxerr/statbridge/internal/index"
	"github.com/xtxerr/statbridge/internal/liveness"
	"github.com/xtxerr/statbridge/internal/logging"
	"github.com/xtxerr/statbridge/internal/oid"
	"github.com/xtxerr/statbridge/internal/stats"
)

// Reader is the read side of the index.
type Reader interface {
	Get(id oid.OID) (int64, bool)
	GetNext(id oid.OID) (index.Entry, bool)
}

// Handler serves queries. It is safe for concurrent use.
type Handler struct {
	index     Reader
	clock     *liveness.Clock
	threshold time.Duration
	stats     *stats.Collector
	now       func() time.Time
	log       *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithNow replaces the wall clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithStats records query counts and latency in st.
func WithStats(st *stats.Collector) Option {
	return func(h *Handler) { h.stats = st }
}

// New creates a handler over idx that refuses queries once clock is older
// than threshold.
func New(idx Reader, clock *liveness.Clock, threshold time.Duration, opts ...Option) *Handler {
	h := &Handler{
		index:     idx,
		clock:     clock,
		threshold: threshold,
		now:       time.Now,
		log:       logging.Component("query"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Threshold returns the liveness threshold.
func (h *Handler) Threshold() time.Duration {
	return h.threshold
}

// Fresh reports whether queries are currently answered.
func (h *Handler) Fresh() bool {
	return h.clock.Fresh(h.now(), h.threshold)
}

// Get returns the value stored at id. found is false when id has no entry.
func (h *Handler) Get(id oid.OID) (value int64, found bool, err error) {
	start := time.Now()
	defer func() { h.stats.Query(time.Since(start), err != nil) }()
	defer h.recoverInto(&err, "get", id)

	if err := h.checkLive(); err != nil {
		return 0, false, err
	}
	value, found = h.index.Get(id)
	return value, found, nil
}

// GetNext returns the first entry after id. found is false past the end of
// the index.
func (h *Handler) GetNext(id oid.OID) (entry index.Entry, found bool, err error) {
	start := time.Now()
	defer func() { h.stats.Query(time.Since(start), err != nil) }()
	defer h.recoverInto(&err, "getnext", id)

	if err := h.checkLive(); err != nil {
		return index.Entry{}, false, err
	}
	entry, found = h.index.GetNext(id)
	return entry, found, nil
}

func (h *Handler) checkLive() error {
	now := h.now()
	if h.clock.Fresh(now, h.threshold) {
		return nil
	}
	age := h.clock.Age(now)
	h.log.Debug("query refused, feed stale",
		"age", age.Truncate(time.Millisecond),
		"threshold", h.threshold)
	return errors.Wrapf(errors.ErrUnavailable, "last update %s ago", age.Truncate(time.Millisecond))
}

// recoverInto turns a panic in the read path into ErrUnavailable so the
// responder answers with an error instead of crashing.
func (h *Handler) recoverInto(err *error, op string, id oid.OID) {
	r := recover()
	if r == nil {
		return
	}
	h.log.Error("query panicked", "op", op, "oid", id.String(), "panic", r)
	*err = errors.Wrap(errors.ErrUnavailable, fmt.Sprintf("%s: %v", op, r))
}
