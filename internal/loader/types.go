// Package loader - Configuration Types
//
// Defines the YAML configuration structure for statbridged.
//
//	feed:        publisher endpoint and transport
//	liveness:    staleness threshold for the query gate
//	agent:       SNMP responder
//	logging:     level and format
//	stats:       periodic counters log
//	snapshot:    Parquet dumps of the index
//	shutdown:    stop timeout
//	statistics:  the registry (empty selects the built-in node set)
//	include:     further files contributing statistics
package loader

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/statbridge/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for statbridged.
type Config struct {
	Feed     FeedConfig     `yaml:"feed"`
	Liveness LivenessConfig `yaml:"liveness"`
	Agent    AgentConfig    `yaml:"agent"`
	Logging  LoggingConfig  `yaml:"logging"`
	Stats    StatsConfig    `yaml:"stats"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Shutdown ShutdownConfig `yaml:"shutdown"`

	// Statistics defines the registry. When empty the reference node's
	// statistics are used.
	Statistics []StatisticConfig `yaml:"statistics"`

	// Include lists additional config files whose statistics are appended.
	// Supports glob patterns. Relative to this file's directory.
	Include []string `yaml:"include"`
}

// FeedConfig configures the telemetry subscriber.
type FeedConfig struct {
	// Endpoint is the publisher address.
	// Format: "tcp://host:port" or "unix:///path"
	// Default: "tcp://localhost:6666"
	Endpoint string `yaml:"endpoint"`

	// Transport is "zmq" (ZeroMQ SUB) or "stream" (length-delimited protobuf).
	// Default: "zmq"
	Transport string `yaml:"transport"`

	// MaxMessageSize bounds one update on the stream transport.
	// Default: "4MB"
	MaxMessageSize ByteSize `yaml:"max_message_size"`
}

// LivenessConfig configures the query gate.
type LivenessConfig struct {
	// Threshold is how old the last update may be before queries fail.
	// Default: 15s
	Threshold Duration `yaml:"threshold"`
}

// AgentConfig configures the SNMP responder.
type AgentConfig struct {
	// Enabled starts the responder. Default: true
	Enabled bool `yaml:"enabled"`

	// Listen is the UDP address. Default: "127.0.0.1:1161"
	Listen string `yaml:"listen"`

	// Community is the accepted read community. Default: "public"
	Community string `yaml:"community"`

	// MaxRepetitions caps GETBULK. Default: 64
	MaxRepetitions int `yaml:"max_repetitions"`

	// ServedRoot restricts answers to one subtree. Empty serves everything.
	ServedRoot string `yaml:"served_root"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is debug, info, warn or error. Default: info
	Level string `yaml:"level"`

	// Format is text or json. Default: text
	Format string `yaml:"format"`
}

// StatsConfig configures operational statistics.
type StatsConfig struct {
	// LogInterval is how often counters are logged. 0 disables.
	// Default: 60s
	LogInterval Duration `yaml:"log_interval"`

	// Accuracy is the relative accuracy of latency quantiles.
	// Default: 0.01
	Accuracy float64 `yaml:"accuracy"`
}

// SnapshotConfig configures Parquet dumps.
type SnapshotConfig struct {
	// Dir receives snapshot files. Empty disables snapshots.
	Dir string `yaml:"dir"`

	// Compression is zstd, snappy, gzip or none. Default: zstd
	Compression string `yaml:"compression"`

	// OnShutdown writes a final snapshot when the daemon stops.
	OnShutdown bool `yaml:"on_shutdown"`
}

// ShutdownConfig configures graceful shutdown.
type ShutdownConfig struct {
	// Timeout bounds the wait for the subscriber task. Default: 5s
	Timeout Duration `yaml:"timeout"`
}

// StatisticConfig is one registry entry.
type StatisticConfig struct {
	Name string `yaml:"name"`
	// Type is latency, per_key_count or single_number.
	Type string `yaml:"type"`
	// Root is the dotted OID the statistic is served under.
	Root string `yaml:"root"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			Endpoint:       config.DefaultFeedEndpoint,
			Transport:      config.DefaultFeedTransport,
			MaxMessageSize: ByteSize(config.DefaultMaxMessageSize),
		},
		Liveness: LivenessConfig{
			Threshold: Duration(config.DefaultLivenessThreshold),
		},
		Agent: AgentConfig{
			Enabled:        true,
			Listen:         config.DefaultAgentListen,
			Community:      config.DefaultCommunity,
			MaxRepetitions: config.DefaultMaxRepetitions,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Stats: StatsConfig{
			LogInterval: Duration(config.DefaultStatsLogInterval),
			Accuracy:    config.DefaultSketchAccuracy,
		},
		Snapshot: SnapshotConfig{
			Compression: "zstd",
		},
		Shutdown: ShutdownConfig{
			Timeout: Duration(config.DefaultShutdownTimeout),
		},
	}
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
// Accepts "15s" style strings or an integer number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var i int64
	if err := node.Decode(&i); err == nil {
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}

	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ByteSize is a size in bytes that can be unmarshaled from YAML.
// Supports: "4MB", "512KB", or plain bytes.
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	var i int64
	if err := node.Decode(&i); err == nil {
		*b = ByteSize(i)
		return nil
	}

	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	size, err := parseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(size)
	return nil
}

// parseByteSize parses a size string like "100MB" or "1GB".
func parseByteSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}

	// Longest suffix first so "MB" is not read as "B".
	units := []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}

	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			n, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("parse byte size %q: %w", s, err)
			}
			return n * u.mult, nil
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse byte size %q: %w", s, err)
	}
	return n, nil
}

// Bytes returns the size in bytes.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}
