package feed

import (
	"context"
	"io"

	"github.com/go-zeromq/zmq4"

	"github.com/xtxerr/statbridge/internal/errors"
)

// zmqSource adapts a SUB socket to Source. zmq4 delivers whole multipart
// messages, which are handed out one frame at a time.
type zmqSource struct {
	sock    zmq4.Socket
	pending [][]byte
}

// DialZMQ connects a ZeroMQ SUB socket to endpoint and subscribes to each
// topic. An empty topic list subscribes to everything. The dial keeps
// retrying until the publisher binds or ctx is cancelled, and a publisher
// that goes away is reconnected to when it comes back.
func DialZMQ(ctx context.Context, endpoint string, topics []string) (Source, error) {
	sock := zmq4.NewSub(ctx,
		zmq4.WithDialerMaxRetries(-1),
		zmq4.WithAutomaticReconnect(true),
	)

	if err := sock.Dial(endpoint); err != nil {
		sock.Close()
		return nil, errors.Wrapf(err, "dial %s", endpoint)
	}

	if len(topics) == 0 {
		topics = []string{""}
	}
	for _, topic := range topics {
		if err := sock.SetOption(zmq4.OptionSubscribe, topic); err != nil {
			sock.Close()
			return nil, errors.Wrapf(err, "subscribe %q", topic)
		}
	}

	return &zmqSource{sock: sock}, nil
}

func (z *zmqSource) RecvFrame() ([]byte, bool, error) {
	for len(z.pending) == 0 {
		msg, err := z.sock.Recv()
		if isPeerDrop(err) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		z.pending = msg.Frames
	}

	frame := z.pending[0]
	z.pending = z.pending[1:]
	return frame, len(z.pending) > 0, nil
}

func (z *zmqSource) Close() error {
	return z.sock.Close()
}

// isPeerDrop reports a lost publisher connection. The socket redials on
// its own, so the receive just waits for the next message.
func isPeerDrop(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
