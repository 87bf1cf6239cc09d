package loader

import (
	"github.com/xtxerr/statbridge/config"
	"github.com/xtxerr/statbridge/internal/agent"
	"github.com/xtxerr/statbridge/internal/bridge"
)

// ToBridgeConfig converts the loaded configuration into bridge settings.
// cfg should already have passed Validate.
func ToBridgeConfig(cfg *Config) (bridge.Config, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return bridge.Config{}, err
	}

	out := bridge.Config{
		Endpoint:            cfg.Feed.Endpoint,
		Transport:           cfg.Feed.Transport,
		MaxMessageSize:      cfg.Feed.MaxMessageSize.Bytes(),
		Threshold:           cfg.Liveness.Threshold.Duration(),
		Registry:            reg,
		StatsAccuracy:       cfg.Stats.Accuracy,
		ShutdownTimeout:     cfg.Shutdown.Timeout.Duration(),
		SnapshotDir:         cfg.Snapshot.Dir,
		SnapshotCompression: cfg.SnapshotCompression(),
	}

	if cfg.Agent.Enabled {
		served, err := cfg.ServedRoot()
		if err != nil {
			return bridge.Config{}, err
		}
		out.Agent = &agent.Config{
			Listen:         cfg.Agent.Listen,
			Community:      cfg.Agent.Community,
			MaxRepetitions: cfg.Agent.MaxRepetitions,
			MaxPacketSize:  config.DefaultMaxPacketSize,
			Served:         served,
		}
	}

	return out, nil
}
