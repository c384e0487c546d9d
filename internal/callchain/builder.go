package callchain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/reprotrace/internal/trace"
)

// Sink receives each CallGraph as soon as its invocation completes.
type Sink interface {
	Emit(ctx context.Context, g *CallGraph) error
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// Builder rebuilds call graphs from one stream of events.
type Builder struct {
	sink   Sink
	logger *slog.Logger

	// pending holds the events since the last completed invocation.
	pending []Call
	// open holds the calls whose OUTPUTS event has not been seen yet.
	open []Call

	emitted int
}

// NewBuilder returns a Builder emitting to sink.
func NewBuilder(sink Sink, opts ...BuilderOption) *Builder {
	b := &Builder{
		sink:   sink,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emitted returns the number of graphs emitted so far.
func (b *Builder) Emitted() int {
	return b.emitted
}

// Pending returns the number of buffered events.
func (b *Builder) Pending() int {
	return len(b.pending)
}

// Push adds the next event of the stream. When c closes the first pending
// event, the invocation is complete and its graph is emitted.
//
// A *MalformedTraceError discards the pending invocation; the Builder can
// keep receiving events starting at the next top-level INPUTS event.
func (b *Builder) Push(ctx context.Context, c Call) error {
	switch c.Label {
	case trace.LabelInputs:
		b.open = append(b.open, c)
		b.pending = append(b.pending, c)
		return nil
	case trace.LabelOutputs:
	default:
		return b.malformed(ErrCodeInvalidLabel, c)
	}

	if len(b.open) == 0 || !Closes(b.open[len(b.open)-1], c) {
		return b.malformed(ErrCodeUnmatchedOutputs, c)
	}
	b.open = b.open[:len(b.open)-1]
	b.pending = append(b.pending, c)

	if len(b.open) > 0 {
		return nil
	}

	g := buildGraph(b.emitted, b.pending)
	b.pending = b.pending[:0]
	b.emitted++

	b.logger.Debug("call graph complete", "seq", g.Seq, "root", g.Root().Name, "nodes", len(g.Nodes))
	if err := b.sink.Emit(ctx, g); err != nil {
		return fmt.Errorf("emit call graph %d: %w", g.Seq, err)
	}
	return nil
}

// PushEvent is Push for a raw trace event.
func (b *Builder) PushEvent(ctx context.Context, ev trace.TraceEvent) error {
	return b.Push(ctx, FromEvent(ev))
}

// Flush reports an invocation left unfinished at the end of the stream and
// resets the Builder.
func (b *Builder) Flush() error {
	if len(b.pending) == 0 {
		return nil
	}
	first := b.pending[0]
	return b.malformed(ErrCodeUnfinished, first)
}

func (b *Builder) malformed(code MalformedCode, c Call) error {
	err := &MalformedTraceError{Code: code, Call: c}
	if len(b.open) > 0 {
		top := b.open[len(b.open)-1]
		err.Open = &top
	}
	b.logger.Warn("discarding malformed invocation", "error", err, "pending", len(b.pending))
	b.pending = b.pending[:0]
	b.open = b.open[:0]
	return err
}
