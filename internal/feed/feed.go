// Package feed subscribes to the telemetry publisher and hands each complete
// update to a handler.
//
// A Source yields frames one at a time together with a more flag; an update
// is the run of frames up to and including the first frame without more.
// The Subscriber owns one background task that connects, subscribes to every
// registered statistic name, and loops: receive an update, touch the
// liveness clock, call the handler.
//
// Any connect, subscribe or receive failure ends the task. There is no
// reconnect: the liveness clock stops advancing and queries go stale, which
// is how the outage becomes visible to managers.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xtxerr/statbridge/config"
	"github.com/xtxerr/statbridge/internal/errors"
	"github.com/xtxerr/statbridge/internal/liveness"
	"github.com/xtxerr/statbridge/internal/logging"
	"github.com/xtxerr/statbridge/internal/stats"
)

// Transport names accepted by DialerFor.
const (
	TransportZMQ    = "zmq"
	TransportStream = "stream"
)

// Source delivers the frames of a subscribed feed.
type Source interface {
	// RecvFrame blocks until the next frame arrives. more reports whether
	// further frames of the same update follow.
	RecvFrame() (frame []byte, more bool, err error)
	Close() error
}

// Dialer connects to endpoint and subscribes to topics.
type Dialer func(ctx context.Context, endpoint string, topics []string) (Source, error)

// Handler consumes one complete update.
type Handler func(frames [][]byte)

// DialerFor returns the dialer for a transport name.
func DialerFor(transport string, maxMessageSize int64) (Dialer, error) {
	switch transport {
	case TransportZMQ, "":
		return DialZMQ, nil
	case TransportStream:
		return StreamDialer(maxMessageSize), nil
	default:
		return nil, errors.Wrapf(errors.ErrUnsupportedTransport, "%q", transport)
	}
}

// Config holds subscriber settings.
type Config struct {
	Endpoint string
	// Topics are the statistic names subscribed to. Publishers match them as
	// prefixes of the first frame.
	Topics []string
}

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithNow replaces the wall clock used to touch liveness, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Subscriber) { s.now = now }
}

// WithStats counts received updates in st.
func WithStats(st *stats.Collector) Option {
	return func(s *Subscriber) { s.stats = st }
}

// Subscriber runs the single ingestion task.
type Subscriber struct {
	cfg     Config
	dial    Dialer
	handler Handler
	clock   *liveness.Clock
	stats   *stats.Collector
	now     func() time.Time
	log     *slog.Logger

	mu      sync.Mutex
	source  Source
	started bool
	stopped bool
	cancel  context.CancelFunc
	err     error

	done chan struct{}
}

// NewSubscriber creates a subscriber. Nothing runs until Start.
func NewSubscriber(cfg Config, dial Dialer, handler Handler, clock *liveness.Clock, opts ...Option) *Subscriber {
	if cfg.Endpoint == "" {
		cfg.Endpoint = config.DefaultFeedEndpoint
	}
	s := &Subscriber{
		cfg:     cfg,
		dial:    dial,
		handler: handler,
		clock:   clock,
		now:     time.Now,
		log:     logging.Component("feed"),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the background task. It returns immediately; connection
// failures surface through Done and Err.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.ErrAlreadyStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
	return nil
}

// Stop closes the source, which unblocks a pending receive, and waits for
// the task to exit or timeout to pass. A zero timeout waits forever.
func (s *Subscriber) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel, src := s.cancel, s.source
	s.mu.Unlock()

	cancel()
	if src != nil {
		if err := src.Close(); err != nil {
			s.log.Debug("close source", "error", err)
		}
	}

	if timeout <= 0 {
		<-s.done
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-time.After(timeout):
		return errors.Wrapf(errors.ErrInternal, "subscriber did not stop within %s", timeout)
	}
}

// Done is closed when the task exits.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the task, or nil after a clean Stop.
func (s *Subscriber) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscriber) run(ctx context.Context) {
	defer close(s.done)

	log := s.log.With("endpoint", s.cfg.Endpoint)

	src, err := s.dial(ctx, s.cfg.Endpoint, s.cfg.Topics)
	if err != nil {
		s.fail(log, fmt.Errorf("%w: %w", errors.ErrConnectionFailed, err))
		return
	}
	if !s.attach(src) {
		src.Close()
		return
	}
	log.Info("subscribed", "topics", len(s.cfg.Topics))

	for {
		frames, err := readUpdate(src)
		if err != nil {
			if s.isStopped() {
				log.Info("subscriber stopped")
				return
			}
			s.fail(log, err)
			src.Close()
			return
		}

		s.stats.Received()
		s.clock.Touch(s.now())
		s.handler(frames)
	}
}

// attach publishes src for Stop. It reports false when Stop already ran.
func (s *Subscriber) attach(src Source) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.source = src
	return true
}

func (s *Subscriber) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Subscriber) fail(log *slog.Logger, err error) {
	if s.isStopped() {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	log.Error("feed failed, no further updates will be applied", "error", err)
}

// readUpdate collects frames until one arrives without more.
func readUpdate(src Source) ([][]byte, error) {
	var frames [][]byte
	for {
		frame, more, err := src.RecvFrame()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrSourceClosed, err)
		}
		frames = append(frames, frame)
		if !more {
			return frames, nil
		}
	}
}
