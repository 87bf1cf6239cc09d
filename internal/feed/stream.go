package feed

import (
	"bytes"
	"context"
	"net"
	"strings"

	"github.com/xtxerr/statbridge/internal/errors"
	"github.com/xtxerr/statbridge/internal/wire"
)

// streamSource reads protobuf-framed updates from a byte stream. The stream
// carries every statistic, so topics are filtered here the way a ZeroMQ
// publisher would: by prefix of the first frame.
type streamSource struct {
	conn    net.Conn
	r       *wire.Reader
	topics  [][]byte
	pending [][]byte
}

// StreamDialer returns a Dialer for tcp:// and unix:// (or ipc://)
// endpoints speaking the wire format. maxSize bounds one update.
func StreamDialer(maxSize int64) Dialer {
	return func(ctx context.Context, endpoint string, topics []string) (Source, error) {
		network, addr, err := SplitEndpoint(endpoint)
		if err != nil {
			return nil, err
		}

		var d net.Dialer
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, errors.Wrapf(err, "dial %s", endpoint)
		}
		return NewStreamSource(conn, maxSize, topics), nil
	}
}

// NewStreamSource wraps an established connection.
func NewStreamSource(conn net.Conn, maxSize int64, topics []string) Source {
	s := &streamSource{
		conn: conn,
		r:    wire.NewReaderSize(conn, maxSize),
	}
	for _, t := range topics {
		if t == "" {
			s.topics = nil
			break
		}
		s.topics = append(s.topics, []byte(t))
	}
	return s
}

func (s *streamSource) RecvFrame() ([]byte, bool, error) {
	for len(s.pending) == 0 {
		frames, err := s.r.Read()
		if err != nil {
			return nil, false, err
		}
		if len(frames) == 0 || !s.match(frames[0]) {
			continue
		}
		s.pending = frames
	}

	frame := s.pending[0]
	s.pending = s.pending[1:]
	return frame, len(s.pending) > 0, nil
}

func (s *streamSource) match(first []byte) bool {
	if len(s.topics) == 0 {
		return true
	}
	for _, t := range s.topics {
		if bytes.HasPrefix(first, t) {
			return true
		}
	}
	return false
}

func (s *streamSource) Close() error {
	return s.conn.Close()
}

// SplitEndpoint maps tcp://host:port and unix:///path (or ipc://) to
// net.Dial arguments.
func SplitEndpoint(endpoint string) (network, addr string, err error) {
	scheme, rest, ok := strings.Cut(endpoint, "://")
	if !ok || rest == "" {
		return "", "", errors.Wrapf(errors.ErrInvalidConfig, "endpoint %q: want scheme://address", endpoint)
	}
	switch scheme {
	case "tcp":
		return "tcp", rest, nil
	case "unix", "ipc":
		return "unix", rest, nil
	default:
		return "", "", errors.Wrapf(errors.ErrUnsupportedTransport, "endpoint scheme %q", scheme)
	}
}
