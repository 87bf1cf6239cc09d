package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/statbridge/internal/index"
	"github.com/xtxerr/statbridge/internal/oid"
	"github.com/xtxerr/statbridge/internal/registry"
)

func testIndex() *index.Index {
	idx := index.New()
	idx.ReplaceSubtree(oid.MustParse("1.2.3"), []index.Entry{
		{OID: oid.MustParse("1.2.3.10.0.0.1"), Value: 4},
		{OID: oid.MustParse("1.2.3.10.0.0.2"), Value: 7},
	})
	idx.ReplaceSubtree(oid.MustParse("1.2.5"), []index.Entry{
		{OID: oid.MustParse("1.2.5.1"), Value: -3},
	})
	return idx
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r, err := registry.New(
		registry.Descriptor{Name: "connected_homers", Type: registry.TypePerKeyCount, Root: oid.MustParse("1.2.3")},
	)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestDumpAndRead(t *testing.T) {
	dir := t.TempDir()
	now := time.UnixMilli(1700000000123)

	path, n, err := Dump(dir, testIndex(), testRegistry(t), now, CompressionZstd)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if n != 3 {
		t.Errorf("rows written = %d, want 3", n)
	}
	if filepath.Base(path) != "statbridge-1700000000123.parquet" {
		t.Errorf("path = %s", path)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	rows, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("read %d rows, want 3", len(rows))
	}

	want := []Row{
		{OID: "1.2.3.10.0.0.1", Statistic: "connected_homers", Value: 4, TakenAtMs: 1700000000123},
		{OID: "1.2.3.10.0.0.2", Statistic: "connected_homers", Value: 7, TakenAtMs: 1700000000123},
		{OID: "1.2.5.1", Value: -3, TakenAtMs: 1700000000123},
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}

	e, err := rows[0].Entry()
	if err != nil || !oid.Equal(e.OID, oid.MustParse("1.2.3.10.0.0.1")) || e.Value != 4 {
		t.Errorf("Entry() = %v, %v", e, err)
	}
}

func TestDumpEmptyIndex(t *testing.T) {
	path, n, err := Dump(t.TempDir(), index.New(), nil, time.Now(), CompressionNone)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if n != 0 {
		t.Errorf("rows = %d, want 0", n)
	}

	rows, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("read %d rows from empty snapshot", len(rows))
	}
}

func TestWriterClosed(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "x.parquet"), CompressionSnappy)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Write([]Row{{OID: "1.2"}}); err != ErrWriterClosed {
		t.Errorf("Write after Close = %v, want ErrWriterClosed", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestParseCompressionType(t *testing.T) {
	tests := map[string]CompressionType{
		"":       CompressionZstd,
		"zstd":   CompressionZstd,
		"snappy": CompressionSnappy,
		"gzip":   CompressionGzip,
		"none":   CompressionNone,
		"bogus":  CompressionZstd,
	}
	for in, want := range tests {
		if got := ParseCompressionType(in); got != want {
			t.Errorf("ParseCompressionType(%q) = %v, want %v", in, got, want)
		}
	}
}
