// statbridged subscribes to a telemetry feed and answers SNMP queries about it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtxerr/statbridge/internal/bridge"
	"github.com/xtxerr/statbridge/internal/errors"
	"github.com/xtxerr/statbridge/internal/loader"
	"github.com/xtxerr/statbridge/internal/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "statbridged: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// CLI flags
	cfgPath := flag.String("config", "statbridge.yaml", "config file path")
	listen := flag.String("listen", "", "SNMP listen address (overrides config)")
	endpoint := flag.String("endpoint", "", "feed endpoint (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	logJSON := flag.Bool("log-json", false, "log in JSON format")
	flag.Parse()

	// Load config
	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		cfg = loader.DefaultConfig()
	}

	// CLI overrides
	if *listen != "" {
		cfg.Agent.Listen = *listen
	}
	if *endpoint != "" {
		cfg.Feed.Endpoint = *endpoint
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logJSON {
		cfg.Logging.Format = "json"
	}

	if err := loader.Validate(cfg); err != nil {
		return err
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logging.Init(level, cfg.Logging.Format == "json")
	log := logging.Component("main")
	log.Info("statbridged starting", "version", Version, "config", *cfgPath)

	bcfg, err := loader.ToBridgeConfig(cfg)
	if err != nil {
		return err
	}
	b, err := bridge.New(bcfg)
	if err != nil {
		return err
	}

	// =========================================================================
	// Signal Handling
	// =========================================================================

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)

	go func() {
		var tick <-chan time.Time
		if iv := cfg.Stats.LogInterval.Duration(); iv > 0 {
			t := time.NewTicker(iv)
			defer t.Stop()
			tick = t.C
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick:
				log.Info("stats", b.Stats().Snapshot().LogArgs()...)
			case <-usr1:
				if _, _, err := b.Snapshot(); err != nil {
					log.Warn("snapshot failed", "error", err)
				}
			}
		}
	}()

	// =========================================================================
	// Run
	// =========================================================================

	runErr := b.Run(ctx)

	log.Info("shutting down")
	if cfg.Snapshot.OnShutdown && cfg.Snapshot.Dir != "" {
		if _, _, err := b.Snapshot(); err != nil {
			log.Warn("final snapshot failed", "error", err)
		}
	}
	log.Info("final stats", b.Stats().Snapshot().LogArgs()...)

	return runErr
}
