// Package config provides configuration defaults and utilities
// for the statbridge application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command line flags.
package config

import "time"

// =============================================================================
// Feed Defaults
// =============================================================================

const (
	// DefaultFeedEndpoint is the publisher the subscriber dials.
	// The reference node publishes its statistics on local port 6666.
	// Override via config: feed.endpoint
	DefaultFeedEndpoint = "tcp://localhost:6666"

	// DefaultFeedTransport selects how the endpoint is reached.
	// Supported: "zmq", "stream".
	// Override via config: feed.transport
	DefaultFeedTransport = "zmq"

	// DefaultMaxMessageSize limits a single protobuf update on the stream
	// transport to prevent OOM.
	DefaultMaxMessageSize = 4 * 1024 * 1024
)

// =============================================================================
// Liveness Defaults
// =============================================================================

const (
	// DefaultLivenessThreshold bounds how long the last successful update may
	// age before every query is refused.
	// Override via config: liveness.threshold
	DefaultLivenessThreshold = 15 * time.Second
)

// =============================================================================
// Agent Defaults
// =============================================================================

const (
	// DefaultAgentListen is the UDP address the SNMP responder binds.
	// Port 161 needs privileges, so the default is unprivileged.
	// Override via config: agent.listen
	DefaultAgentListen = "127.0.0.1:1161"

	// DefaultCommunity is the read community accepted by the responder.
	// Override via config: agent.community
	DefaultCommunity = "public"

	// DefaultMaxRepetitions caps GETBULK max-repetitions regardless of what
	// the manager asks for.
	// Override via config: agent.max_repetitions
	DefaultMaxRepetitions = 64

	// DefaultMaxPacketSize is the receive buffer for one SNMP datagram.
	DefaultMaxPacketSize = 65535

	// DefaultNodeRoot is the subtree the reference node serves.
	DefaultNodeRoot = "1.2.826.0.1.1578918.9.3"
)

// =============================================================================
// Stats Defaults
// =============================================================================

const (
	// DefaultStatsLogInterval is how often the daemon logs its counters.
	// Zero disables the periodic log.
	// Override via config: stats.log_interval
	DefaultStatsLogInterval = 60 * time.Second

	// DefaultSketchAccuracy is the relative accuracy of latency quantiles.
	DefaultSketchAccuracy = 0.01
)

// =============================================================================
// Shutdown Defaults
// =============================================================================

const (
	// DefaultShutdownTimeout is how long Stop waits for the subscriber task.
	DefaultShutdownTimeout = 5 * time.Second
)
