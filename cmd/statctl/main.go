// Package main is the entry point for statctl, the statbridge operator CLI.
//
// Usage:
//
//	statctl get .1.2.826.0.1.1578918.9.3.1.1     # read one value
//	statctl walk                                 # walk the node subtree
//	statctl shell                                # interactive session
//	statctl publish latency_us OK 100 5 10 500   # feed a test update
//	statctl dump statbridge-1700000000000.parquet
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xtxerr/statbridge/config"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
)

// Global flags shared by the SNMP commands.
var (
	target    string
	community string
	timeout   time.Duration
	retries   int
)

var rootCmd = &cobra.Command{
	Use:   "statctl",
	Short: "Query and exercise a statbridge daemon",
	Long: `statctl talks to a running statbridged.

The get, next, walk and shell commands query its SNMP responder. The
publish command sends telemetry updates the way a call-processing node
does, and dump prints a Parquet snapshot written by the daemon.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "statctl %s (commit %s)\n", version, commit)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&target, "target", "t", config.DefaultAgentListen, "statbridged SNMP address (host:port)")
	pf.StringVarP(&community, "community", "c", config.DefaultCommunity, "SNMP community")
	pf.DurationVar(&timeout, "timeout", 2*time.Second, "SNMP request timeout")
	pf.IntVar(&retries, "retries", 1, "SNMP retries")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
