package store

import (
	"context"
	"fmt"

	"github.com/roach88/reprotrace/internal/callchain"
)

// GraphSink stores call graphs of one session. It implements
// callchain.Sink.
type GraphSink struct {
	store   *Store
	session string
}

// GraphSink returns a sink writing into sessionID.
func (s *Store) GraphSink(sessionID string) *GraphSink {
	return &GraphSink{store: s, session: sessionID}
}

// Emit implements callchain.Sink. Graphs are keyed by their emission
// sequence; emitting the same sequence twice is an error.
func (g *GraphSink) Emit(ctx context.Context, graph *callchain.CallGraph) error {
	data, err := marshalGraph(graph)
	if err != nil {
		return err
	}
	_, err = g.store.db.ExecContext(ctx, `
		INSERT INTO callgraphs (session_id, seq, root, graph)
		VALUES (?, ?, ?, ?)
	`, g.session, graph.Seq, graph.Root().Name, data)
	if err != nil {
		return fmt.Errorf("write call graph %d: %w", graph.Seq, err)
	}
	return nil
}

// ReadCallGraphs returns a session's graphs in emission order.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadCallGraphs(ctx context.Context, sessionID string) ([]*callchain.CallGraph, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT graph
		FROM callgraphs
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query call graphs: %w", err)
	}
	defer rows.Close()

	graphs := []*callchain.CallGraph{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan call graph: %w", err)
		}
		g, err := unmarshalGraph(data)
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call graphs: %w", err)
	}
	return graphs, nil
}

var _ callchain.Sink = (*GraphSink)(nil)
