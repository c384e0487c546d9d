package testutil

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/roach88/reprotrace/internal/trace"
)

// A builds an Args list from alternating names and values.
//
//	testutil.A("x", trace.Float(1), "n", trace.Int(3))
func A(pairs ...any) trace.Args {
	if len(pairs)%2 != 0 {
		panic("testutil.A needs name/value pairs")
	}
	args := make(trace.Args, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		args = append(args, trace.Arg{Name: pairs[i].(string), Value: pairs[i+1].(trace.Value)})
	}
	return args
}

// RunBuilder records the events of a synthetic run.
//
// Each function name gets a stable run-local id, so repeated calls to one
// function from one call site share an origin, as they do in real traces.
type RunBuilder struct {
	Module string

	clock  *DeterministicClock
	ids    map[string]int64
	idBase int64
	events []trace.TraceEvent
}

// NewRun creates a builder for module "app" whose ids start at idBase.
// Different runs of one program typically use different idBase values.
func NewRun(idBase int64) *RunBuilder {
	return &RunBuilder{
		Module: "app",
		clock:  NewDeterministicClock(),
		ids:    make(map[string]int64),
		idBase: idBase,
	}
}

// Site returns the backtrace used for calls to fn.
func Site(fn string) trace.Backtrace {
	return trace.Backtrace{
		Filename:   "app.py",
		SourceLine: fn + "()",
		LineNumber: len(fn),
		CallerName: "caller",
	}
}

// Call records a call to fn with the given inputs and outputs. body, when
// not nil, records the calls nested inside this one.
func (b *RunBuilder) Call(fn string, in, out trace.Args, body func()) *RunBuilder {
	return b.CallAt(fn, Site(fn), in, out, body)
}

// CallAt is Call with an explicit backtrace.
func (b *RunBuilder) CallAt(fn string, bt trace.Backtrace, in, out trace.Args, body func()) *RunBuilder {
	id, ok := b.ids[fn]
	if !ok {
		id = b.idBase + int64(len(b.ids))
		b.ids[fn] = id
	}
	t := b.clock.Next()

	b.events = append(b.events, trace.TraceEvent{
		ID: id, Time: t, Module: b.Module, Function: fn,
		Label: trace.LabelInputs, Args: in, Backtrace: bt,
	})
	if body != nil {
		body()
	}
	b.events = append(b.events, trace.TraceEvent{
		ID: id, Time: t, Module: b.Module, Function: fn,
		Label: trace.LabelOutputs, Args: out, Backtrace: bt,
	})
	return b
}

// Events returns the recorded events.
func (b *RunBuilder) Events() []trace.TraceEvent {
	return b.events
}

// WriteRun writes events as the run <dir>/<prefix> and returns its files.
func WriteRun(t testing.TB, dir, prefix string, events []trace.TraceEvent, opts ...trace.WriterOption) []string {
	t.Helper()
	w := trace.NewWriter(filepath.Join(dir, prefix), opts...)
	for _, ev := range events {
		if err := w.Write(ev); err != nil {
			t.Fatalf("write event: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return w.Files()
}

// SliceSource serves events from memory. It implements merge.Source.
type SliceSource struct {
	Events []trace.TraceEvent
	Err    error // returned once Events are exhausted, instead of io.EOF
	Closed bool
	pos    int
}

// Next returns the next event, Err, or io.EOF.
func (s *SliceSource) Next() (trace.TraceEvent, error) {
	if s.pos < len(s.Events) {
		ev := s.Events[s.pos]
		s.pos++
		return ev, nil
	}
	if s.Err != nil {
		return trace.TraceEvent{}, s.Err
	}
	return trace.TraceEvent{}, io.EOF
}

// Close marks the source closed.
func (s *SliceSource) Close() error {
	s.Closed = true
	return nil
}
