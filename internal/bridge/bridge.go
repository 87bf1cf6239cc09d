// Package bridge wires the telemetry pipeline together.
//
// One writer path (feed.Subscriber -> decoder.Decoder -> index.Index) and any
// number of readers (query.Handler, usually behind agent.Agent). The bridge
// owns their construction and lifecycle.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/statbridge/config"
	"github.com/xtxerr/statbridge/internal/agent"
	"github.com/xtxerr/statbridge/internal/decoder"
	"github.com/xtxerr/statbridge/internal/errors"
	"github.com/xtxerr/statbridge/internal/feed"
	"github.com/xtxerr/statbridge/internal/index"
	"github.com/xtxerr/statbridge/internal/liveness"
	"github.com/xtxerr/statbridge/internal/logging"
	"github.com/xtxerr/statbridge/internal/query"
	"github.com/xtxerr/statbridge/internal/registry"
	"github.com/xtxerr/statbridge/internal/snapshot"
	"github.com/xtxerr/statbridge/internal/stats"
)

// Config holds everything needed to build a bridge.
type Config struct {
	Endpoint       string
	Transport      string
	MaxMessageSize int64

	// Threshold is the liveness window for queries.
	Threshold time.Duration

	// Registry lists the statistics to subscribe to. Nil selects
	// registry.Default().
	Registry *registry.Registry

	// Agent configures the SNMP responder. Nil disables it.
	Agent *agent.Config

	StatsAccuracy   float64
	ShutdownTimeout time.Duration

	SnapshotDir         string
	SnapshotCompression snapshot.CompressionType
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithDialer replaces the transport dialer.
func WithDialer(d feed.Dialer) Option {
	return func(b *Bridge) { b.dial = d }
}

// WithNow replaces the time source used by the clock and the query gate.
func WithNow(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// Bridge owns the pipeline components.
type Bridge struct {
	cfg Config
	log *slog.Logger

	now  func() time.Time
	dial feed.Dialer

	registry   *registry.Registry
	index      *index.Index
	clock      *liveness.Clock
	stats      *stats.Collector
	decoder    *decoder.Decoder
	subscriber *feed.Subscriber
	query      *query.Handler
	agent      *agent.Agent

	snapMu sync.Mutex
}

// New constructs the pipeline. Nothing runs until Start or Run.
func New(cfg Config, opts ...Option) (*Bridge, error) {
	if cfg.Threshold <= 0 {
		cfg.Threshold = config.DefaultLivenessThreshold
	}
	if cfg.StatsAccuracy <= 0 {
		cfg.StatsAccuracy = config.DefaultSketchAccuracy
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = config.DefaultShutdownTimeout
	}
	if cfg.Registry == nil {
		cfg.Registry = registry.Default()
	}

	b := &Bridge{
		cfg:      cfg,
		log:      logging.Component("bridge"),
		now:      time.Now,
		registry: cfg.Registry,
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.dial == nil {
		d, err := feed.DialerFor(cfg.Transport, cfg.MaxMessageSize)
		if err != nil {
			return nil, err
		}
		b.dial = d
	}

	st, err := stats.New(cfg.StatsAccuracy)
	if err != nil {
		return nil, fmt.Errorf("create stats: %w", err)
	}
	b.stats = st

	b.index = index.New()
	// Process start counts as the first update.
	b.clock = liveness.New(b.now())
	b.decoder = decoder.New(b.registry, b.index, b.stats)
	b.subscriber = feed.NewSubscriber(
		feed.Config{Endpoint: cfg.Endpoint, Topics: b.registry.Names()},
		b.dial,
		b.decoder.Handle,
		b.clock,
		feed.WithNow(b.now),
		feed.WithStats(b.stats),
	)
	b.query = query.New(b.index, b.clock, cfg.Threshold,
		query.WithNow(b.now),
		query.WithStats(b.stats),
	)
	if cfg.Agent != nil {
		b.agent = agent.New(*cfg.Agent, b.query)
	}

	return b, nil
}

// Start launches the subscriber and returns immediately.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.subscriber.Start(ctx); err != nil {
		return err
	}
	b.log.Info("bridge started",
		"endpoint", b.cfg.Endpoint,
		"statistics", b.registry.Len(),
		"threshold", b.cfg.Threshold)
	return nil
}

// Stop stops the subscriber and waits for it, then closes the responder.
func (b *Bridge) Stop() error {
	err := b.subscriber.Stop(b.cfg.ShutdownTimeout)
	if b.agent != nil {
		if cerr := b.agent.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Run starts the pipeline and serves queries until ctx is done. A failed
// subscriber does not end Run: queries keep being answered and turn
// unavailable once the threshold passes.
func (b *Bridge) Run(ctx context.Context) error {
	if b.agent != nil {
		if err := b.agent.Listen(); err != nil {
			return err
		}
		b.log.Info("agent listening", "addr", b.agent.Addr().String())
	}
	if err := b.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if b.agent != nil {
		g.Go(func() error {
			return b.agent.Serve(gctx)
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-b.subscriber.Done():
			if err := b.subscriber.Err(); err != nil {
				b.log.Error("subscriber ended, data will go stale",
					"error", err,
					"fatal", errors.IsFatal(err))
			}
			<-gctx.Done()
		}
		return nil
	})

	err := g.Wait()
	if serr := b.Stop(); serr != nil {
		b.log.Warn("stop", "error", serr)
	}
	return err
}

// Snapshot writes the index to a Parquet file in the configured directory.
func (b *Bridge) Snapshot() (string, int64, error) {
	if b.cfg.SnapshotDir == "" {
		return "", 0, errors.Wrap(errors.ErrInvalidConfig, "snapshot directory not configured")
	}

	b.snapMu.Lock()
	defer b.snapMu.Unlock()

	path, n, err := snapshot.Dump(b.cfg.SnapshotDir, b.index, b.registry, b.now(), b.cfg.SnapshotCompression)
	if err != nil {
		return "", 0, err
	}
	b.log.Info("snapshot written", "path", path, "rows", n)
	return path, n, nil
}

// Index returns the shared index.
func (b *Bridge) Index() *index.Index { return b.index }

// Query returns the liveness-gated read path.
func (b *Bridge) Query() *query.Handler { return b.query }

// Stats returns the operational counters.
func (b *Bridge) Stats() *stats.Collector { return b.stats }

// Registry returns the statistic registry.
func (b *Bridge) Registry() *registry.Registry { return b.registry }

// Subscriber returns the feed subscriber.
func (b *Bridge) Subscriber() *feed.Subscriber { return b.subscriber }

// Agent returns the SNMP responder, nil when disabled.
func (b *Bridge) Agent() *agent.Agent { return b.agent }
