// Package snapshot writes the index contents to Parquet files for offline
// inspection and reads them back for statctl dump.
//
// Snapshots are diagnostic. The bridge never loads one into the index.
package snapshot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/statbridge/internal/index"
	"github.com/xtxerr/statbridge/internal/oid"
	"github.com/xtxerr/statbridge/internal/registry"
)

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionGzip
)

// ParseCompressionType parses a compression type string. Unknown names
// select zstd.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd", "":
		return CompressionZstd
	case "gzip":
		return CompressionGzip
	case "none":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// Row is one index entry in Parquet form.
type Row struct {
	OID       string `parquet:"oid,zstd"`
	Statistic string `parquet:"statistic,optional,zstd"`
	Value     int64  `parquet:"value"`
	TakenAtMs int64  `parquet:"taken_at_ms"`
}

// Entry converts the row back to an index entry.
func (r Row) Entry() (index.Entry, error) {
	id, err := oid.Parse(r.OID)
	if err != nil {
		return index.Entry{}, err
	}
	return index.Entry{OID: id, Value: r.Value}, nil
}

// Rows converts entries taken at takenAt. reg may be nil; otherwise each row
// is labelled with the statistic owning its OID.
func Rows(entries []index.Entry, reg *registry.Registry, takenAt time.Time) []Row {
	rows := make([]Row, len(entries))
	ms := takenAt.UnixMilli()
	for i, e := range entries {
		rows[i] = Row{OID: e.OID.String(), Value: e.Value, TakenAtMs: ms}
		if reg != nil {
			if d, ok := reg.Owner(e.OID); ok {
				rows[i].Statistic = d.Name
			}
		}
	}
	return rows
}

// =============================================================================
// Writer
// =============================================================================

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("snapshot writer is closed")

// Writer writes rows to a Parquet file.
type Writer struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[Row]
	rowCount int64
	closed   bool
}

// Create opens a new snapshot file, creating its directory.
func Create(path string, ct CompressionType) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	return &Writer{
		path:   path,
		file:   f,
		writer: parquet.NewGenericWriter[Row](f, parquet.Compression(getCompression(ct))),
	}, nil
}

// Write appends rows.
func (w *Writer) Write(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	w.rowCount += int64(n)
	return nil
}

// Close flushes the footer and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// Source is the part of the index a snapshot reads.
type Source interface {
	Entries() []index.Entry
}

// FileName returns the snapshot file name for t.
func FileName(t time.Time) string {
	return fmt.Sprintf("statbridge-%d.parquet", t.UnixMilli())
}

// Dump writes the current contents of src into dir and returns the file
// path and the number of rows written. The file is written under a
// temporary name and renamed, so readers never see a partial snapshot.
func Dump(dir string, src Source, reg *registry.Registry, now time.Time, ct CompressionType) (string, int64, error) {
	path := filepath.Join(dir, FileName(now))
	tmp := path + ".tmp"

	w, err := Create(tmp, ct)
	if err != nil {
		return "", 0, err
	}
	if err := w.Write(Rows(src.Entries(), reg, now)); err != nil {
		w.Close()
		os.Remove(tmp)
		return "", 0, err
	}
	if err := w.Close(); err != nil {
		os.Remove(tmp)
		return "", 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("rename snapshot: %w", err)
	}
	return path, w.RowCount(), nil
}

// =============================================================================
// Reader
// =============================================================================

// Reader reads rows from a snapshot file.
type Reader struct {
	file   *os.File
	reader *parquet.GenericReader[Row]
	path   string
}

// Open opens a snapshot file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return &Reader{
		file:   f,
		reader: parquet.NewGenericReader[Row](f),
		path:   path,
	}, nil
}

// ReadAll reads every row in file order.
func (r *Reader) ReadAll() ([]Row, error) {
	rows := make([]Row, r.reader.NumRows())
	read := 0
	for read < len(rows) {
		n, err := r.reader.Read(rows[read:])
		read += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read rows: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return rows[:read], nil
}

// NumRows returns the total number of rows in the file.
func (r *Reader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *Reader) Path() string {
	return r.path
}

// ReadFile reads all rows of the snapshot at path.
func ReadFile(path string) ([]Row, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadAll()
}
