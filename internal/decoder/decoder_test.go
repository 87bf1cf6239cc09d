package decoder

import (
	"math"
	"testing"

	"github.com/xtxerr/statbridge/internal/errors"
	"github.com/xtxerr/statbridge/internal/index"
	"github.com/xtxerr/statbridge/internal/oid"
	"github.com/xtxerr/statbridge/internal/registry"
	"github.com/xtxerr/statbridge/internal/stats"
)

func frames(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r, err := registry.New(
		registry.Descriptor{Name: "connected_homers", Type: registry.TypePerKeyCount, Root: oid.MustParse("1.2.3")},
		registry.Descriptor{Name: "latency_us", Type: registry.TypeLatency, Root: oid.MustParse("1.2.3.1")},
		registry.Descriptor{Name: "active_calls", Type: registry.TypeSingleNumber, Root: oid.MustParse("1.2.5")},
	)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return r
}

func newTestDecoder(t *testing.T) (*Decoder, *index.Index, *stats.Collector) {
	t.Helper()
	st, err := stats.New(0.01)
	if err != nil {
		t.Fatal(err)
	}
	idx := index.New()
	return New(testRegistry(t), idx, st), idx, st
}

func assertSubtree(t *testing.T, idx *index.Index, root string, want map[string]int64) {
	t.Helper()
	got := idx.Subtree(oid.MustParse(root))
	if len(got) != len(want) {
		t.Fatalf("subtree %s has %d entries %v, want %d", root, len(got), got, len(want))
	}
	for _, e := range got {
		v, ok := want[e.OID.String()]
		if !ok {
			t.Errorf("unexpected entry %s=%d", e.OID, e.Value)
			continue
		}
		if v != e.Value {
			t.Errorf("%s = %d, want %d", e.OID, e.Value, v)
		}
	}
}

func TestApply_PerKeyCount(t *testing.T) {
	d, idx, _ := newTestDecoder(t)
	idx.Set(oid.MustParse("1.2.3.192.168.0.1"), 99)
	idx.Set(oid.MustParse("1.2.4"), 1)

	err := d.Apply(frames("connected_homers", "OK", "10.0.0.1", "4", "10.0.0.2", "7"))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	assertSubtree(t, idx, "1.2.3", map[string]int64{
		"1.2.3.10.0.0.1": 4,
		"1.2.3.10.0.0.2": 7,
	})
	if _, ok := idx.Get(oid.MustParse("1.2.4")); !ok {
		t.Error("entry outside the subtree must survive")
	}
}

func TestApply_Latency(t *testing.T) {
	d, idx, _ := newTestDecoder(t)

	if err := d.Apply(frames("latency_us", "OK", "100", "5", "10", "500")); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	assertSubtree(t, idx, "1.2.3.1", map[string]int64{
		"1.2.3.1.1": 100,
		"1.2.3.1.2": 5,
		"1.2.3.1.3": 10,
		"1.2.3.1.4": 500,
	})
}

func TestApply_SingleNumber(t *testing.T) {
	d, idx, _ := newTestDecoder(t)

	if err := d.Apply(frames("active_calls", "OK", "42")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	assertSubtree(t, idx, "1.2.5", map[string]int64{"1.2.5.0": 42})
}

func TestApply_Discards(t *testing.T) {
	tests := []struct {
		name   string
		frames [][]byte
		want   error
	}{
		{"bad status", frames("latency_us", "TIMEOUT", "100"), errors.ErrInsufficientData},
		{"too few frames", frames("latency_us", "OK"), errors.ErrInsufficientData},
		{"empty", nil, errors.ErrInsufficientData},
		{"unregistered", frames("mystery", "OK", "1"), errors.ErrUnknownStatistic},
		{"short latency", frames("latency_us", "OK", "100", "5"), errors.ErrMalformedUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, idx, _ := newTestDecoder(t)
			idx.Set(oid.MustParse("1.2.3.1.1"), 7)

			err := d.Apply(tt.frames)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Apply() error = %v, want %v", err, tt.want)
			}
			if !errors.IsDiscard(err) {
				t.Errorf("error %v should be a discard", err)
			}
			if idx.Len() != 1 {
				t.Errorf("index changed: %v", idx.Entries())
			}
		})
	}
}

func TestApply_UnpairedKeyDropped(t *testing.T) {
	d, idx, st := newTestDecoder(t)

	err := d.Apply(frames("connected_homers", "OK", "10.0.0.1", "4", "10.0.0.2"))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	assertSubtree(t, idx, "1.2.3", map[string]int64{"1.2.3.10.0.0.1": 4})
	if st.Snapshot().UnpairedKeys != 1 {
		t.Error("unpaired key should be counted")
	}
}

func TestApply_KeysDisappearBetweenUpdates(t *testing.T) {
	d, idx, _ := newTestDecoder(t)

	if err := d.Apply(frames("connected_homers", "OK", "10.0.0.1", "4", "10.0.0.2", "7")); err != nil {
		t.Fatal(err)
	}
	if err := d.Apply(frames("connected_homers", "OK", "10.0.0.2", "8")); err != nil {
		t.Fatal(err)
	}

	assertSubtree(t, idx, "1.2.3", map[string]int64{"1.2.3.10.0.0.2": 8})
}

func TestApply_LenientNumbers(t *testing.T) {
	d, idx, _ := newTestDecoder(t)

	if err := d.Apply(frames("latency_us", "OK", "abc", "12ms", " 7", "")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	assertSubtree(t, idx, "1.2.3.1", map[string]int64{
		"1.2.3.1.1": 0,
		"1.2.3.1.2": 12,
		"1.2.3.1.3": 7,
		"1.2.3.1.4": 0,
	})
}

func TestHandle_CountsDiscards(t *testing.T) {
	d, _, st := newTestDecoder(t)

	d.Handle(frames("latency_us", "TIMEOUT", "100"))
	d.Handle(frames("mystery", "OK", "1"))
	d.Handle(frames("latency_us", "OK", "1", "2", "3", "4"))

	s := st.Snapshot()
	if s.DiscardInsufficient != 1 || s.DiscardUnknown != 1 {
		t.Errorf("discards = %+v", s)
	}
	if s.UpdatesApplied != 1 {
		t.Errorf("UpdatesApplied = %d, want 1", s.UpdatesApplied)
	}
}

type recordingApplier struct {
	calls int
	root  oid.OID
}

func (r *recordingApplier) ReplaceSubtree(root oid.OID, _ []index.Entry) {
	r.calls++
	r.root = root
}

func TestApply_SingleReplacePerUpdate(t *testing.T) {
	rec := &recordingApplier{}
	d := New(testRegistry(t), rec, nil)

	if err := d.Apply(frames("connected_homers", "OK", "1", "1", "2", "2", "3", "3")); err != nil {
		t.Fatal(err)
	}
	if rec.calls != 1 {
		t.Errorf("ReplaceSubtree called %d times, want 1", rec.calls)
	}
	if rec.root.String() != "1.2.3" {
		t.Errorf("root = %s, want 1.2.3", rec.root)
	}
}

func TestAtoi(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"0", 0},
		{"42", 42},
		{"-17", -17},
		{"+5", 5},
		{"  12", 12},
		{"12abc", 12},
		{"abc", 0},
		{"", 0},
		{"-", 0},
		{"9223372036854775807", math.MaxInt64},
		{"99999999999999999999", math.MaxInt64},
		{"-99999999999999999999", math.MinInt64},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Atoi(tt.input); got != tt.want {
				t.Errorf("Atoi(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
