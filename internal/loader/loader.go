// Package loader handles configuration file loading and validation.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Processing include directives
//   - Validating settings and statistic definitions
//   - Building the statistic registry

package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/statbridge/internal/errors"
	"github.com/xtxerr/statbridge/internal/logging"
	"github.com/xtxerr/statbridge/internal/oid"
	"github.com/xtxerr/statbridge/internal/registry"
	"github.com/xtxerr/statbridge/internal/snapshot"
	"github.com/xtxerr/statbridge/internal/validation"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Process includes (load additional statistic files)
	baseDir := filepath.Dir(path)
	if err := processIncludes(cfg, baseDir); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML on top of DefaultConfig after expanding ${ENV}
// references.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// processIncludes loads included files and appends their statistics.
func processIncludes(cfg *Config, baseDir string) error {
	for _, pattern := range cfg.Include {
		// Resolve relative paths
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}

		// Expand glob pattern
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}

		for _, match := range matches {
			if err := loadInclude(cfg, match); err != nil {
				return fmt.Errorf("load include %q: %w", match, err)
			}
		}
	}

	return nil
}

// loadInclude loads a single include file and merges it into the config.
func loadInclude(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	expanded := os.ExpandEnv(string(data))

	var partial struct {
		Statistics []StatisticConfig `yaml:"statistics"`
	}
	if err := yaml.Unmarshal([]byte(expanded), &partial); err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	cfg.Statistics = append(cfg.Statistics, partial.Statistics...)
	return nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration and reports every problem found.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	// Feed validation
	if err := validation.ValidateEndpoint(cfg.Feed.Endpoint); err != nil {
		errs.AddField("feed.endpoint", err.Error())
	}
	switch cfg.Feed.Transport {
	case "zmq", "stream":
	default:
		errs.AddField("feed.transport", fmt.Sprintf("unsupported transport %q (expected zmq or stream)", cfg.Feed.Transport))
	}
	if cfg.Feed.MaxMessageSize < 0 {
		errs.AddField("feed.max_message_size", "cannot be negative")
	}

	// Liveness validation
	if cfg.Liveness.Threshold.Duration() <= 0 {
		errs.AddField("liveness.threshold", "must be positive")
	}

	// Agent validation
	if cfg.Agent.Enabled {
		if err := validation.ValidateListenAddr(cfg.Agent.Listen); err != nil {
			errs.AddField("agent.listen", err.Error())
		}
		if cfg.Agent.Community == "" {
			errs.AddField("agent.community", "cannot be empty")
		}
		if cfg.Agent.MaxRepetitions <= 0 {
			errs.AddField("agent.max_repetitions", "must be positive")
		}
		if cfg.Agent.ServedRoot != "" {
			if _, err := oid.Parse(cfg.Agent.ServedRoot); err != nil {
				errs.AddField("agent.served_root", err.Error())
			}
		}
	}

	// Logging validation
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		errs.AddField("logging.level", err.Error())
	}
	switch cfg.Logging.Format {
	case "text", "json", "":
	default:
		errs.AddField("logging.format", fmt.Sprintf("unknown format %q (expected text or json)", cfg.Logging.Format))
	}

	// Stats validation
	if cfg.Stats.LogInterval.Duration() < 0 {
		errs.AddField("stats.log_interval", "cannot be negative")
	}
	if cfg.Stats.Accuracy <= 0 || cfg.Stats.Accuracy >= 1 {
		errs.AddField("stats.accuracy", "must be between 0 and 1")
	}

	// Snapshot validation
	switch cfg.Snapshot.Compression {
	case "zstd", "snappy", "gzip", "none", "":
	default:
		errs.AddField("snapshot.compression", fmt.Sprintf("unknown compression %q", cfg.Snapshot.Compression))
	}

	// Statistics validation
	if _, err := cfg.Registry(); err != nil {
		errs.Add(err)
	}

	return errs.Err()
}

// =============================================================================
// Conversion
// =============================================================================

// Registry builds the statistic registry. With no statistics configured
// the reference node set is returned.
func (c *Config) Registry() (*registry.Registry, error) {
	if len(c.Statistics) == 0 {
		return registry.Default(), nil
	}

	errs := errors.NewValidationErrors()
	descs := make([]registry.Descriptor, 0, len(c.Statistics))

	for i, s := range c.Statistics {
		field := fmt.Sprintf("statistics[%d]", i)

		typ, err := registry.ParseType(s.Type)
		if err != nil {
			errs.AddField(field+".type", err.Error())
			continue
		}
		if s.Root == "" {
			errs.AddMissing(field + ".root")
			continue
		}
		root, err := oid.Parse(s.Root)
		if err != nil {
			errs.AddField(field+".root", err.Error())
			continue
		}
		descs = append(descs, registry.Descriptor{Name: s.Name, Type: typ, Root: root})
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return registry.New(descs...)
}

// ServedRoot returns the parsed agent.served_root, nil when unset.
func (c *Config) ServedRoot() (oid.OID, error) {
	if c.Agent.ServedRoot == "" {
		return nil, nil
	}
	return oid.Parse(c.Agent.ServedRoot)
}

// SnapshotCompression returns the configured snapshot codec.
func (c *Config) SnapshotCompression() snapshot.CompressionType {
	return snapshot.ParseCompressionType(c.Snapshot.Compression)
}
