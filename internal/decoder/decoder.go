// Package decoder turns one feed update into index entries.
//
// An update is the frame sequence [name, status, payload...]. The payload
// layout depends on the registered type of the statistic:
//
//	Latency:       mean, variance, low watermark, high watermark
//	               → root.1 .. root.4
//	PerKeyCount:   key, count, key, count, ...
//	               → root.<key> (key may be dotted, e.g. an IPv4 address)
//	SingleNumber:  value
//	               → root.0
//
// A decoded update replaces the statistic's whole subtree, so keys that stop
// being reported disappear on the next update without separate eviction.
package decoder

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/xtxerr/statbridge/internal/errors"
	"github.com/xtxerr/statbridge/internal/index"
	"github.com/xtxerr/statbridge/internal/logging"
	"github.com/xtxerr/statbridge/internal/oid"
	"github.com/xtxerr/statbridge/internal/registry"
	"github.com/xtxerr/statbridge/internal/stats"
)

// StatusOK is the only status whose updates are applied.
const StatusOK = "OK"

// Scalar instance and latency column numbers.
const (
	scalarInstance   = 0
	latencyMean      = 1
	latencyVariance  = 2
	latencyLowWater  = 3
	latencyHighWater = 4
	latencyFields    = 4
)

// Applier receives decoded batches. *index.Index implements it.
type Applier interface {
	ReplaceSubtree(root oid.OID, updates []index.Entry)
}

// Result is one decoded update.
type Result struct {
	Descriptor registry.Descriptor
	Entries    []index.Entry
	// Unpaired is set when a PerKeyCount payload ended with a key that had
	// no count. The key was dropped; the other pairs are in Entries.
	Unpaired bool
}

// Decoder decodes updates against a registry and applies them to an index.
type Decoder struct {
	registry *registry.Registry
	index    Applier
	stats    *stats.Collector
	log      *slog.Logger
}

// New creates a decoder. stats may be nil.
func New(reg *registry.Registry, idx Applier, st *stats.Collector) *Decoder {
	return &Decoder{
		registry: reg,
		index:    idx,
		stats:    st,
		log:      logging.Component("decoder"),
	}
}

// Handle decodes frames and applies the result. Discarded updates are logged
// and counted; they never stop the pipeline.
func (d *Decoder) Handle(frames [][]byte) {
	if err := d.Apply(frames); err != nil {
		d.stats.Discarded(err)
		level := slog.LevelWarn
		if errors.Is(err, errors.ErrInsufficientData) {
			// Non-OK statuses are routine when the publisher has nothing yet.
			level = slog.LevelDebug
		}
		d.log.Log(context.Background(), level, "update discarded", "statistic", frameName(frames), "error", err)
	}
}

// Apply decodes frames and replaces the statistic's subtree with the
// result in a single index call. On error the index is untouched.
func (d *Decoder) Apply(frames [][]byte) error {
	start := time.Now()

	res, err := d.Decode(frames)
	if err != nil {
		return err
	}
	if res.Unpaired {
		d.stats.Unpaired()
		d.log.Warn("unpaired trailing key dropped",
			"statistic", res.Descriptor.Name,
			"key", string(frames[len(frames)-1]))
	}

	d.index.ReplaceSubtree(res.Descriptor.Root, res.Entries)
	d.stats.Applied(time.Since(start))

	d.log.Debug("update applied",
		"statistic", res.Descriptor.Name,
		"root", res.Descriptor.Root.String(),
		"entries", len(res.Entries))
	return nil
}

// Decode maps frames to index entries without touching the index.
func (d *Decoder) Decode(frames [][]byte) (Result, error) {
	if len(frames) < 3 {
		return Result{}, errors.Wrapf(errors.ErrInsufficientData, "%d frames", len(frames))
	}
	name := string(frames[0])
	if status := string(frames[1]); status != StatusOK {
		return Result{}, errors.Wrapf(errors.ErrInsufficientData, "status %q", status)
	}

	desc, ok := d.registry.Lookup(name)
	if !ok {
		return Result{}, errors.Wrapf(errors.ErrUnknownStatistic, "%q", name)
	}

	payload := frames[2:]
	res := Result{Descriptor: desc}

	switch desc.Type {
	case registry.TypeSingleNumber:
		res.Entries = []index.Entry{
			{OID: oid.Append(desc.Root, scalarInstance), Value: Atoi(string(payload[0]))},
		}

	case registry.TypeLatency:
		if len(payload) < latencyFields {
			return Result{}, errors.Wrapf(errors.ErrMalformedUpdate,
				"%q: latency needs %d fields, got %d", name, latencyFields, len(payload))
		}
		res.Entries = []index.Entry{
			{OID: oid.Append(desc.Root, latencyMean), Value: Atoi(string(payload[0]))},
			{OID: oid.Append(desc.Root, latencyVariance), Value: Atoi(string(payload[1]))},
			{OID: oid.Append(desc.Root, latencyLowWater), Value: Atoi(string(payload[2]))},
			{OID: oid.Append(desc.Root, latencyHighWater), Value: Atoi(string(payload[3]))},
		}

	case registry.TypePerKeyCount:
		res.Entries = make([]index.Entry, 0, len(payload)/2)
		for i := 0; i+1 < len(payload); i += 2 {
			res.Entries = append(res.Entries, index.Entry{
				OID:   oid.AppendString(desc.Root, string(payload[i])),
				Value: Atoi(string(payload[i+1])),
			})
		}
		res.Unpaired = len(payload)%2 == 1

	default:
		return Result{}, errors.Wrapf(errors.ErrUnknownStatistic, "%q has type %s", name, desc.Type)
	}

	return res, nil
}

// Atoi parses the leading integer of s the way C's atoi does: leading
// whitespace and one sign are accepted, parsing stops at the first
// non-digit, and text without digits yields 0. Out-of-range values clamp.
// Unparsable fields never fail an update.
func Atoi(s string) int64 {
	i := 0
	for i < len(s) && isSpace(s[i]) {
		i++
	}

	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}

	var v int64
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		digit := int64(s[i] - '0')
		if v > (math.MaxInt64-digit)/10 {
			if neg {
				return math.MinInt64
			}
			return math.MaxInt64
		}
		v = v*10 + digit
	}

	if neg {
		return -v
	}
	return v
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func frameName(frames [][]byte) string {
	if len(frames) == 0 {
		return ""
	}
	return string(frames[0])
}
