package callchain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Collector keeps emitted graphs in memory.
type Collector struct {
	Graphs []*CallGraph
}

// Emit implements Sink.
func (c *Collector) Emit(_ context.Context, g *CallGraph) error {
	c.Graphs = append(c.Graphs, g)
	return nil
}

// JSONLSink writes one JSON object per graph and line.
type JSONLSink struct {
	enc *json.Encoder
}

// NewJSONLSink returns a sink writing to w.
func NewJSONLSink(w io.Writer) *JSONLSink {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLSink{enc: enc}
}

// Emit implements Sink.
func (s *JSONLSink) Emit(_ context.Context, g *CallGraph) error {
	if err := s.enc.Encode(g); err != nil {
		return fmt.Errorf("write call graph: %w", err)
	}
	return nil
}

// MultiSink emits every graph to each of its sinks in order.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(ctx context.Context, g *CallGraph) error {
	for _, s := range m {
		if err := s.Emit(ctx, g); err != nil {
			return err
		}
	}
	return nil
}
