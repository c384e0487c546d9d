package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithEventsPerFile starts a new sequence file after n events. Zero keeps
// every event in a single file.
func WithEventsPerFile(n int) WriterOption {
	return func(w *Writer) {
		w.perFile = n
	}
}

// WithCompression writes zstd-compressed files with a ".zst" suffix.
func WithCompression() WriterOption {
	return func(w *Writer) {
		w.compress = true
	}
}

// Writer appends events to the files of one run, named
// <prefix>.<seq>.jsonl (or .jsonl.zst when compressed).
type Writer struct {
	prefix   string
	perFile  int
	compress bool

	seq     int
	inFile  int
	file    *os.File
	zw      *zstd.Encoder
	bw      *bufio.Writer
	enc     *json.Encoder
	written []string
}

// NewWriter returns a Writer for the run identified by prefix. Files are
// created lazily on the first Write.
func NewWriter(prefix string, opts ...WriterOption) *Writer {
	w := &Writer{prefix: prefix}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write appends one event.
func (w *Writer) Write(ev TraceEvent) error {
	if w.enc == nil || (w.perFile > 0 && w.inFile >= w.perFile) {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	if err := w.enc.Encode(ev); err != nil {
		return fmt.Errorf("write trace event: %w", err)
	}
	w.inFile++
	return nil
}

// Files returns the paths written so far, in sequence order.
func (w *Writer) Files() []string {
	return append([]string(nil), w.written...)
}

// Close flushes and closes the current file.
func (w *Writer) Close() error {
	return w.closeCurrent()
}

func (w *Writer) rotate() error {
	if err := w.closeCurrent(); err != nil {
		return err
	}

	path := fmt.Sprintf("%s.%d.jsonl", w.prefix, w.seq)
	if w.compress {
		path += ".zst"
	}
	w.seq++

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trace file: %w", err)
	}
	w.file = f

	var dst io.Writer = f
	if w.compress {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return fmt.Errorf("create zstd encoder: %w", err)
		}
		w.zw = zw
		dst = zw
	}
	w.bw = bufio.NewWriter(dst)
	w.enc = json.NewEncoder(w.bw)
	w.enc.SetEscapeHTML(false)
	w.inFile = 0
	w.written = append(w.written, path)
	return nil
}

func (w *Writer) closeCurrent() error {
	if w.file == nil {
		return nil
	}
	var firstErr error
	if err := w.bw.Flush(); err != nil {
		firstErr = err
	}
	if w.zw != nil {
		if err := w.zw.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.zw = nil
	}
	if err := w.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	w.file = nil
	w.bw = nil
	w.enc = nil
	if firstErr != nil {
		return fmt.Errorf("close trace file: %w", firstErr)
	}
	return nil
}
