package feed

import (
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
)

func freeEndpoint(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return "tcp://" + addr
}

func listenPub(t *testing.T, ctx context.Context, endpoint string) zmq4.Socket {
	t.Helper()
	pub := zmq4.NewPub(ctx)
	if err := pub.Listen(endpoint); err != nil {
		t.Fatalf("listen %s: %v", endpoint, err)
	}
	return pub
}

// publishUntil resends an update until it shows up on got. PUB drops
// messages sent before the subscription has propagated.
func publishUntil(t *testing.T, pub zmq4.Socket, got <-chan [][]byte, value string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

	for {
		pub.Send(zmq4.NewMsgFrom([]byte("latency_us"), []byte("OK"), []byte(value)))
		select {
		case frames := <-got:
			if len(frames) != 3 {
				t.Fatalf("frames = %q", frames)
			}
			// Earlier resends may still be queued.
			if string(frames[2]) == value {
				return
			}
		case <-tick.C:
		case <-deadline:
			t.Fatalf("update %s never delivered", value)
		}
	}
}

func TestDialZMQ_SurvivesPublisherRestart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endpoint := freeEndpoint(t)

	type dialResult struct {
		src Source
		err error
	}
	dialed := make(chan dialResult, 1)
	go func() {
		src, err := DialZMQ(ctx, endpoint, []string{"latency_us"})
		dialed <- dialResult{src, err}
	}()

	// The publisher binds after the subscriber started dialing.
	time.Sleep(100 * time.Millisecond)
	pub := listenPub(t, ctx, endpoint)

	var src Source
	select {
	case r := <-dialed:
		if r.err != nil {
			t.Fatalf("DialZMQ: %v", r.err)
		}
		src = r.src
	case <-time.After(5 * time.Second):
		t.Fatal("DialZMQ did not connect once the publisher was up")
	}
	defer src.Close()

	got := make(chan [][]byte, 16)
	recvErr := make(chan error, 1)
	go func() {
		for {
			frames, err := readUpdate(src)
			if err != nil {
				recvErr <- err
				return
			}
			got <- frames
		}
	}()

	publishUntil(t, pub, got, "1")

	pub.Close()
	time.Sleep(100 * time.Millisecond)
	pub = listenPub(t, ctx, endpoint)
	defer pub.Close()

	publishUntil(t, pub, got, "2")

	select {
	case err := <-recvErr:
		t.Fatalf("receive ended after publisher restart: %v", err)
	default:
	}
}

func TestIsPeerDrop(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{fmt.Errorf("read: %w", net.ErrClosed), false},
		{io.EOF, true},
		{fmt.Errorf("zmq4: %w", io.ErrUnexpectedEOF), true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			if got := isPeerDrop(tt.err); got != tt.want {
				t.Errorf("isPeerDrop(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
