package trace

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderLogger sets the logger used for diagnostics.
func WithReaderLogger(l *slog.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = l
	}
}

// Reader yields the events of one run in on-disk order.
//
// A Reader is single-pass: once exhausted it must be reopened to iterate
// again. At most one file is open at a time and it is closed as soon as it
// is exhausted, on a corrupt record, or on Close.
type Reader struct {
	run    Run
	logger *slog.Logger

	next   int // index of the next file to open
	file   *os.File
	zr     *zstd.Decoder
	br     *bufio.Reader
	path   string
	line   int
	events int64

	done    bool
	corrupt *CorruptTraceError
}

// OpenRun returns a Reader over the events of run. No file is opened until
// the first call to Next.
func OpenRun(run Run, opts ...ReaderOption) *Reader {
	r := &Reader{
		run:    run,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OpenFiles groups paths into a single run and returns a Reader over it.
// All paths must share one run prefix.
func OpenFiles(paths []string, opts ...ReaderOption) (*Reader, error) {
	runs, err := GroupFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(runs) != 1 {
		return nil, fmt.Errorf("expected files of one run, found %d run prefixes", len(runs))
	}
	return OpenRun(runs[0], opts...), nil
}

// Run returns the run being read.
func (r *Reader) Run() Run {
	return r.run
}

// Events returns how many events have been delivered so far.
func (r *Reader) Events() int64 {
	return r.events
}

// Corrupt returns the corruption that ended the run early, or nil.
func (r *Reader) Corrupt() *CorruptTraceError {
	return r.corrupt
}

// Next returns the next event of the run.
//
// It returns io.EOF once every file is consumed. A record that fails to
// decode is returned as a *CorruptTraceError; the run ends there and further
// calls return io.EOF.
func (r *Reader) Next() (TraceEvent, error) {
	for !r.done {
		if r.br == nil {
			if r.next >= len(r.run.Files) {
				r.done = true
				break
			}
			if err := r.openNext(); err != nil {
				return TraceEvent{}, r.fail(err)
			}
		}

		data, err := r.br.ReadBytes('\n')
		if len(data) > 0 {
			r.line++
			trimmed := bytes.TrimSpace(data)
			if len(trimmed) == 0 {
				if err == nil {
					continue
				}
			} else {
				var ev TraceEvent
				if decodeErr := decodeEvent(trimmed, &ev); decodeErr != nil {
					return TraceEvent{}, r.fail(decodeErr)
				}
				r.events++
				return ev, nil
			}
		}

		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			return TraceEvent{}, r.fail(err)
		}
		if closeErr := r.closeCurrent(); closeErr != nil {
			r.logger.Warn("closing trace file", "file", r.path, "error", closeErr)
		}
	}
	return TraceEvent{}, io.EOF
}

// Close releases the open file, if any. It is safe to call more than once.
func (r *Reader) Close() error {
	r.done = true
	return r.closeCurrent()
}

func (r *Reader) openNext() error {
	rf := r.run.Files[r.next]
	r.next++
	r.path = rf.Path
	r.line = 0

	f, err := os.Open(rf.Path)
	if err != nil {
		return err
	}
	r.file = f

	var src io.Reader = f
	if strings.HasSuffix(rf.Path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return err
		}
		r.zr = zr
		src = zr
	}
	r.br = bufio.NewReaderSize(src, 64*1024)

	r.logger.Debug("opened trace file", "file", rf.Path, "seq", rf.Seq)
	return nil
}

func (r *Reader) closeCurrent() error {
	r.br = nil
	if r.zr != nil {
		r.zr.Close()
		r.zr = nil
	}
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *Reader) fail(err error) error {
	r.corrupt = &CorruptTraceError{File: r.path, Line: r.line, Err: err}
	r.done = true
	if closeErr := r.closeCurrent(); closeErr != nil {
		r.logger.Warn("closing trace file", "file", r.path, "error", closeErr)
	}
	return r.corrupt
}

func decodeEvent(data []byte, ev *TraceEvent) error {
	if err := json.Unmarshal(data, ev); err != nil {
		return err
	}
	if !ev.Label.Valid() {
		return fmt.Errorf("invalid label %q", ev.Label)
	}
	for _, arg := range ev.Args {
		if err := arg.Value.Validate(); err != nil {
			return fmt.Errorf("arg %q: %w", arg.Name, err)
		}
	}
	return nil
}
