// Package storage archives published volatility points to parquet files.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"

	"vol-index-go/market"
)

// ErrWriterClosed is returned by writes after Close.
var ErrWriterClosed = errors.New("archive writer is closed")

// PointRow is one archived point.
type PointRow struct {
	Index      string  `parquet:"index,zstd,dict"`
	TimeMs     int64   `parquet:"time_ms,delta"`
	Price      float64 `parquet:"price,zstd"`
	Volatility float64 `parquet:"volatility,zstd"`
	Ready      bool    `parquet:"ready"`
	Revision   bool    `parquet:"revision"`
}

// RowFromPoint converts a published point.
func RowFromPoint(p market.Point) PointRow {
	return PointRow{
		Index:      p.Index,
		TimeMs:     p.Time,
		Price:      p.Price,
		Volatility: p.Volatility,
		Ready:      p.Ready,
		Revision:   p.Revision,
	}
}

// ArchiveWriter buffers points and writes them to a parquet file in batches.
type ArchiveWriter struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	writer    *parquet.GenericWriter[PointRow]
	buf       []PointRow
	batchSize int
	rowCount  int64
	closed    bool

	// OnError 收到 OnPoint 写入失败；为空则丢弃错误
	OnError func(error)
}

// NewArchiveWriter creates (truncating) the parquet file at path.
func NewArchiveWriter(path string, batchSize int) (*ArchiveWriter, error) {
	if batchSize <= 0 {
		batchSize = 1024
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	w := parquet.NewGenericWriter[PointRow](f, parquet.Compression(&parquet.Zstd))
	return &ArchiveWriter{
		path:      path,
		file:      f,
		writer:    w,
		buf:       make([]PointRow, 0, batchSize),
		batchSize: batchSize,
	}, nil
}

// Write buffers p; a full buffer is written out.
func (w *ArchiveWriter) Write(p market.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	w.buf = append(w.buf, RowFromPoint(p))
	if len(w.buf) >= w.batchSize {
		return w.writeBuffered()
	}
	return nil
}

// OnPoint implements market.Sink.
func (w *ArchiveWriter) OnPoint(p market.Point) {
	if err := w.Write(p); err != nil && w.OnError != nil {
		w.OnError(err)
	}
}

// Flush writes buffered rows and closes the current row group.
func (w *ArchiveWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if err := w.writeBuffered(); err != nil {
		return err
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("flush row group: %w", err)
	}
	return nil
}

func (w *ArchiveWriter) writeBuffered() error {
	if len(w.buf) == 0 {
		return nil
	}
	n, err := w.writer.Write(w.buf)
	w.rowCount += int64(n)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	w.buf = w.buf[:0]
	return nil
}

// Close writes what is buffered and the parquet footer.
func (w *ArchiveWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writeBuffered(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return w.file.Close()
}

// RowCount returns the number of rows written to the file so far.
func (w *ArchiveWriter) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

func (w *ArchiveWriter) Path() string { return w.path }

// ReadArchive reads every row of a file produced by ArchiveWriter.
func ReadArchive(path string) ([]PointRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[PointRow](f)
	defer reader.Close()

	rows := make([]PointRow, 0, reader.NumRows())
	chunk := make([]PointRow, 512)
	for {
		n, err := reader.Read(chunk)
		rows = append(rows, chunk[:n]...)
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, fmt.Errorf("read rows: %w", err)
		}
	}
}
