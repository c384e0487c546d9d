package store

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/reprotrace/internal/callchain"
)

// encodeFloats packs xs as little-endian IEEE-754 doubles. NaN payloads and
// signed zeros are preserved.
func encodeFloats(xs []float64) []byte {
	buf := make([]byte, 8*len(xs))
	for i, x := range xs {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(x))
	}
	return buf
}

// decodeFloats is the inverse of encodeFloats.
func decodeFloats(data []byte) ([]float64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("float blob of %d bytes is not a multiple of 8", len(data))
	}
	xs := make([]float64, len(data)/8)
	for i := range xs {
		xs[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
	}
	return xs, nil
}

// encodeOptional encodes xs, or returns nil (stored as NULL) for a nil slice.
func encodeOptional(xs []float64) []byte {
	if xs == nil {
		return nil
	}
	return encodeFloats(xs)
}

func decodeOptional(data []byte) ([]float64, error) {
	if data == nil {
		return nil, nil
	}
	return decodeFloats(data)
}

// nullable maps NaN to SQL NULL.
func nullable(x float64) any {
	if math.IsNaN(x) {
		return nil
	}
	return x
}

// fromNullable maps SQL NULL back to NaN.
func fromNullable(n sql.NullFloat64) float64 {
	if !n.Valid {
		return math.NaN()
	}
	return n.Float64
}

func marshalShape(shape []int) (string, error) {
	if shape == nil {
		shape = []int{}
	}
	data, err := json.Marshal(shape)
	if err != nil {
		return "", fmt.Errorf("marshal shape: %w", err)
	}
	return string(data), nil
}

func unmarshalShape(data string) ([]int, error) {
	var shape []int
	if err := json.Unmarshal([]byte(data), &shape); err != nil {
		return nil, fmt.Errorf("unmarshal shape: %w", err)
	}
	if len(shape) == 0 {
		return nil, nil
	}
	return shape, nil
}

// marshalGraph converts a call graph to JSON TEXT with HTML escaping
// disabled, so names like "a<b>" are stored verbatim.
func marshalGraph(g *callchain.CallGraph) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(g); err != nil {
		return "", fmt.Errorf("marshal call graph: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalGraph(data string) (*callchain.CallGraph, error) {
	var g callchain.CallGraph
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		return nil, fmt.Errorf("unmarshal call graph: %w", err)
	}
	return &g, nil
}
