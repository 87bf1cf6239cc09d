package query

import (
	"testing"
	"time"

	"github.com/xtxerr/statbridge/internal/errors"
	"github.com/xtxerr/statbridge/internal/index"
	"github.com/xtxerr/statbridge/internal/liveness"
	"github.com/xtxerr/statbridge/internal/oid"
	"github.com/xtxerr/statbridge/internal/stats"
	testutil "github.com/xtxerr/statbridge/internal/testing"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Handler, *testutil.ManualClock, *liveness.Clock, *stats.Collector) {
	t.Helper()
	idx := index.New()
	idx.Set(oid.MustParse("1.2.3.1.1"), 100)
	idx.Set(oid.MustParse("1.2.3.1.2"), 5)

	st, err := stats.New(0.01)
	if err != nil {
		t.Fatal(err)
	}
	mc := testutil.NewManualClock(epoch)
	clock := liveness.New(epoch)
	h := New(idx, clock, 15*time.Second, WithNow(mc.Now), WithStats(st))
	return h, mc, clock, st
}

func TestGet_Fresh(t *testing.T) {
	h, mc, clock, _ := setup(t)
	mc.Advance(10 * time.Second)
	clock.Touch(mc.Now())
	mc.Advance(5 * time.Second)

	v, found, err := h.Get(oid.MustParse("1.2.3.1.1"))
	if err != nil || !found || v != 100 {
		t.Errorf("Get() = %d, %v, %v; want 100, true, nil", v, found, err)
	}

	_, found, err = h.Get(oid.MustParse("1.2.3.1.9"))
	if err != nil || found {
		t.Errorf("Get(absent) found=%v err=%v; want false, nil", found, err)
	}
}

func TestGetNext_Fresh(t *testing.T) {
	h, _, _, _ := setup(t)

	e, found, err := h.GetNext(oid.MustParse("1.2.3.1.1"))
	if err != nil || !found {
		t.Fatalf("GetNext() found=%v err=%v", found, err)
	}
	if e.OID.String() != "1.2.3.1.2" || e.Value != 5 {
		t.Errorf("GetNext() = %s=%d, want 1.2.3.1.2=5", e.OID, e.Value)
	}

	_, found, err = h.GetNext(oid.MustParse("1.2.3.1.2"))
	if err != nil || found {
		t.Errorf("GetNext(last) found=%v err=%v; want false, nil", found, err)
	}
}

func TestStaleRefusesQueries(t *testing.T) {
	h, mc, clock, st := setup(t)
	clock.Touch(mc.Now())
	mc.Advance(20 * time.Second)

	if h.Fresh() {
		t.Error("Fresh() = true after 20s with 15s threshold")
	}
	if _, _, err := h.Get(oid.MustParse("1.2.3.1.1")); !errors.Is(err, errors.ErrUnavailable) {
		t.Errorf("Get() error = %v, want ErrUnavailable", err)
	}
	if _, _, err := h.GetNext(oid.MustParse("1.2.3")); !errors.Is(err, errors.ErrUnavailable) {
		t.Errorf("GetNext() error = %v, want ErrUnavailable", err)
	}

	s := st.Snapshot()
	if s.QueriesRefused != 2 || s.QueriesServed != 0 {
		t.Errorf("served=%d refused=%d, want 0 and 2", s.QueriesServed, s.QueriesRefused)
	}
}

func TestThresholdBoundary(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		fresh   bool
	}{
		{"just touched", 0, true},
		{"at threshold", 15 * time.Second, true},
		{"past threshold", 15*time.Second + time.Nanosecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, mc, _, _ := setup(t)
			mc.Advance(tt.elapsed)
			if got := h.Fresh(); got != tt.fresh {
				t.Errorf("Fresh() = %v, want %v", got, tt.fresh)
			}
			_, _, err := h.Get(oid.MustParse("1.2.3.1.1"))
			if (err == nil) != tt.fresh {
				t.Errorf("Get() error = %v, fresh %v", err, tt.fresh)
			}
		})
	}
}

func TestRecoversAfterNewUpdate(t *testing.T) {
	h, mc, clock, _ := setup(t)
	mc.Advance(time.Minute)
	if h.Fresh() {
		t.Fatal("expected stale")
	}

	clock.Touch(mc.Now())
	if _, _, err := h.Get(oid.MustParse("1.2.3.1.1")); err != nil {
		t.Errorf("Get() after touch error = %v", err)
	}
}

type staleGuard struct{ t *testing.T }

func (g staleGuard) Get(oid.OID) (int64, bool) {
	g.t.Error("index read while stale")
	return 0, false
}

func (g staleGuard) GetNext(oid.OID) (index.Entry, bool) {
	g.t.Error("index read while stale")
	return index.Entry{}, false
}

func TestStaleDoesNotTouchIndex(t *testing.T) {
	mc := testutil.NewManualClock(epoch)
	h := New(staleGuard{t}, liveness.New(epoch), time.Second, WithNow(mc.Now))
	mc.Advance(time.Hour)

	h.Get(oid.MustParse("1.2"))
	h.GetNext(oid.MustParse("1.2"))
}

type panicReader struct{}

func (panicReader) Get(oid.OID) (int64, bool) { panic("boom") }
func (panicReader) GetNext(oid.OID) (index.Entry, bool) { panic("boom") }

func TestPanicBecomesUnavailable(t *testing.T) {
	h := New(panicReader{}, liveness.New(time.Now()), time.Minute)

	if _, _, err := h.Get(oid.MustParse("1.2")); !errors.Is(err, errors.ErrUnavailable) {
		t.Errorf("Get() error = %v, want ErrUnavailable", err)
	}
	if _, _, err := h.GetNext(oid.MustParse("1.2")); !errors.Is(err, errors.ErrUnavailable) {
		t.Errorf("GetNext() error = %v, want ErrUnavailable", err)
	}
}
