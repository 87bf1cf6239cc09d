package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/spf13/cobra"

	"github.com/xtxerr/statbridge/config"
	"github.com/xtxerr/statbridge/internal/feed"
	"github.com/xtxerr/statbridge/internal/wire"
)

var (
	publishEndpoint  string
	publishTransport string
	publishRepeat    int
	publishInterval  time.Duration
	publishSettle    time.Duration
)

var publishCmd = &cobra.Command{
	Use:   "publish NAME STATUS [PAYLOAD...]",
	Short: "Publish a telemetry update",
	Long: `publish binds the given endpoint and sends one update, like a
call-processing node does.

Examples:
  statctl publish latency_us OK 100 5 10 500
  statctl publish connected_homers OK 10.0.0.1 4 10.0.0.2 7
  statctl publish --transport stream --repeat 10 latency_us OK 1 2 3 4`,
	Args: cobra.MinimumNArgs(2),
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)

	f := publishCmd.Flags()
	f.StringVarP(&publishEndpoint, "endpoint", "e", config.DefaultFeedEndpoint, "endpoint to bind")
	f.StringVar(&publishTransport, "transport", feed.TransportZMQ, "zmq or stream")
	f.IntVarP(&publishRepeat, "repeat", "n", 1, "number of times to send the update")
	f.DurationVar(&publishInterval, "interval", time.Second, "delay between repeats")
	f.DurationVar(&publishSettle, "settle", 500*time.Millisecond, "wait for subscribers before the first send (zmq)")
}

func runPublish(cmd *cobra.Command, args []string) error {
	frames := make([][]byte, len(args))
	for i, a := range args {
		frames[i] = []byte(a)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var send func([][]byte) error
	switch publishTransport {
	case feed.TransportZMQ:
		pub := zmq4.NewPub(ctx)
		defer pub.Close()
		if err := pub.Listen(publishEndpoint); err != nil {
			return fmt.Errorf("listen %s: %w", publishEndpoint, err)
		}
		// PUB drops messages until subscribers have joined.
		time.Sleep(publishSettle)
		send = func(fr [][]byte) error {
			return pub.Send(zmq4.NewMsgFrom(fr...))
		}

	case feed.TransportStream:
		network, addr, err := feed.SplitEndpoint(publishEndpoint)
		if err != nil {
			return err
		}
		ln, err := net.Listen(network, addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", publishEndpoint, err)
		}
		defer ln.Close()
		fmt.Fprintf(cmd.ErrOrStderr(), "waiting for subscriber on %s\n", ln.Addr())
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		defer conn.Close()
		w := wire.NewWriter(conn)
		send = w.Write

	default:
		return fmt.Errorf("unknown transport %q", publishTransport)
	}

	for i := 0; i < publishRepeat; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(publishInterval):
			}
		}
		if err := send(frames); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %q %d time(s)\n", args[0], publishRepeat)
	return nil
}
