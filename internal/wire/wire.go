// Package wire provides protobuf framing for the stream feed transport.
//
// Each update is one google.protobuf.ListValue whose elements are the
// update's frames, written with protobuf's standard varint length prefix.
// This allows efficient streaming of variable-length updates over TCP or a
// Unix socket.
package wire

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"sync"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xtxerr/statbridge/config"
	"github.com/xtxerr/statbridge/internal/errors"
)

// Reader reads length-delimited updates from an io.Reader.
// It is safe for concurrent use.
type Reader struct {
	r       *bufio.Reader
	maxSize int64
	mu      sync.Mutex
}

// NewReader creates a Reader wrapping the given io.Reader with the default
// message size limit.
func NewReader(r io.Reader) *Reader {
	return NewReaderSize(r, config.DefaultMaxMessageSize)
}

// NewReaderSize creates a Reader that rejects messages larger than maxSize
// bytes. A non-positive maxSize selects the default.
func NewReaderSize(r io.Reader, maxSize int64) *Reader {
	if maxSize <= 0 {
		maxSize = config.DefaultMaxMessageSize
	}
	return &Reader{r: bufio.NewReader(r), maxSize: maxSize}
}

// ReadList reads and unmarshals the next list. io.EOF is returned unwrapped
// when the stream ends cleanly between messages.
func (r *Reader) ReadList() (*structpb.ListValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lv := &structpb.ListValue{}
	opts := protodelim.UnmarshalOptions{
		MaxSize: r.maxSize,
	}
	if err := opts.UnmarshalFrom(r.r, lv); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read update: %w", err)
	}
	return lv, nil
}

// Read reads the next update and returns its frames.
func (r *Reader) Read() ([][]byte, error) {
	lv, err := r.ReadList()
	if err != nil {
		return nil, err
	}
	return Frames(lv)
}

// Writer writes length-delimited updates to an io.Writer.
// It is safe for concurrent use.
type Writer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriter creates a Writer wrapping the given io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteList marshals and writes a list with length prefix.
func (w *Writer) WriteList(lv *structpb.ListValue) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := protodelim.MarshalTo(w.w, lv); err != nil {
		return fmt.Errorf("write update: %w", err)
	}
	return nil
}

// Write encodes frames as one update. Frames must be valid UTF-8.
func (w *Writer) Write(frames [][]byte) error {
	return w.WriteList(List(frames))
}

// WriteStrings is Write for textual frames.
func (w *Writer) WriteStrings(frames ...string) error {
	b := make([][]byte, len(frames))
	for i, f := range frames {
		b[i] = []byte(f)
	}
	return w.Write(b)
}

// =============================================================================
// List Conversion
// =============================================================================

// List converts frames to a ListValue of strings.
func List(frames [][]byte) *structpb.ListValue {
	values := make([]*structpb.Value, len(frames))
	for i, f := range frames {
		values[i] = structpb.NewStringValue(string(f))
	}
	return &structpb.ListValue{Values: values}
}

// Frames converts a ListValue back to frames. String elements are used as
// is and numbers are rendered in decimal; any other kind is malformed.
func Frames(lv *structpb.ListValue) ([][]byte, error) {
	frames := make([][]byte, len(lv.GetValues()))
	for i, v := range lv.GetValues() {
		switch k := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			frames[i] = []byte(k.StringValue)
		case *structpb.Value_NumberValue:
			frames[i] = []byte(strconv.FormatFloat(k.NumberValue, 'f', -1, 64))
		default:
			return nil, errors.Wrapf(errors.ErrMalformedUpdate, "frame %d has kind %T", i, k)
		}
	}
	return frames, nil
}
