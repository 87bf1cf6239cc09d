package wire

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xtxerr/statbridge/internal/errors"
)

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	updates := [][]string{
		{"connected_homers", "OK", "10.0.0.1", "4", "10.0.0.2", "7"},
		{"latency_us", "OK", "100", "5", "10", "500"},
		{"latency_us", "TIMEOUT"},
	}
	for _, u := range updates {
		if err := w.WriteStrings(u...); err != nil {
			t.Fatalf("WriteStrings: %v", err)
		}
	}

	r := NewReader(&buf)
	for i, want := range updates {
		got, err := r.Read()
		if err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		if len(got) != len(want) {
			t.Fatalf("update %d has %d frames, want %d", i, len(got), len(want))
		}
		for j := range want {
			if string(got[j]) != want[j] {
				t.Errorf("update %d frame %d = %q, want %q", i, j, got[j], want[j])
			}
		}
	}

	if _, err := r.Read(); err != io.EOF {
		t.Errorf("Read at end = %v, want io.EOF", err)
	}
}

func TestReadTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteStrings("latency_us", "OK", "1", "2", "3", "4"); err != nil {
		t.Fatal(err)
	}
	truncated := buf.Bytes()[:buf.Len()-3]

	_, err := NewReader(bytes.NewReader(truncated)).Read()
	if err == nil || err == io.EOF {
		t.Errorf("Read(truncated) = %v, want a read error", err)
	}
}

func TestReadOversize(t *testing.T) {
	var buf bytes.Buffer
	big := strings.Repeat("x", 1024)
	if err := NewWriter(&buf).WriteStrings("name", "OK", big); err != nil {
		t.Fatal(err)
	}

	if _, err := NewReaderSize(&buf, 64).Read(); err == nil {
		t.Error("expected size limit error")
	}
}

func TestFrames_Numbers(t *testing.T) {
	lv, err := structpb.NewList([]any{"single", "OK", 42.0, 1.5})
	if err != nil {
		t.Fatal(err)
	}

	frames, err := Frames(lv)
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	want := []string{"single", "OK", "42", "1.5"}
	for i := range want {
		if string(frames[i]) != want[i] {
			t.Errorf("frame %d = %q, want %q", i, frames[i], want[i])
		}
	}
}

func TestFrames_RejectsOtherKinds(t *testing.T) {
	lv, err := structpb.NewList([]any{"single", "OK", true})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Frames(lv); !errors.Is(err, errors.ErrMalformedUpdate) {
		t.Errorf("Frames() error = %v, want ErrMalformedUpdate", err)
	}
}
