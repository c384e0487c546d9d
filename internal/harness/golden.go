package harness

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/reprotrace/internal/merge"
)

// Snapshot captures the merged session of a scenario execution.
// Floats are printed with strconv so NaN and Inf stay representable.
type Snapshot struct {
	ScenarioName string        `json:"scenario_name"`
	Summary      merge.Summary `json:"summary"`
	MergeError   string        `json:"merge_error,omitempty"`
	Records      []SnapshotRow `json:"records"`
	Graphs       []GraphShape  `json:"graphs"`
}

// SnapshotRow is one exported (record, argument) row.
type SnapshotRow struct {
	Position int64  `json:"position"`
	Name     string `json:"name"`
	Label    string `json:"label"`
	Arg      string `json:"arg"`
	Kind     string `json:"kind"`
	Count    int    `json:"count"`
	Mean     string `json:"mean"`
	Std      string `json:"std"`
	Sig      string `json:"sig"`
}

// GraphShape summarizes one call graph.
type GraphShape struct {
	Seq   int      `json:"seq"`
	Root  string   `json:"root"`
	Nodes []string `json:"nodes"`
	Edges int      `json:"edges"`
}

// NewSnapshot builds the snapshot of a result.
func NewSnapshot(name string, result *Result) Snapshot {
	s := Snapshot{
		ScenarioName: name,
		Summary:      result.Summary,
		Records:      make([]SnapshotRow, 0, len(result.Records)),
		Graphs:       make([]GraphShape, 0, len(result.Graphs)),
	}
	if result.MergeErr != nil {
		s.MergeError = string(result.MergeErr.Code)
	}
	for _, r := range result.Records {
		s.Records = append(s.Records, SnapshotRow{
			Position: r.Position,
			Name:     r.Name,
			Label:    string(r.Label),
			Arg:      r.Arg,
			Kind:     r.Kind,
			Count:    r.Count,
			Mean:     formatFloat(r.Mean),
			Std:      formatFloat(r.Std),
			Sig:      formatFloat(r.Sig),
		})
	}
	for _, g := range result.Graphs {
		shape := GraphShape{Seq: g.Seq, Root: g.Root().Name, Edges: len(g.Edges)}
		for _, n := range g.Nodes {
			shape.Nodes = append(shape.Nodes, n.Name)
		}
		s.Graphs = append(s.Graphs, shape)
	}
	return s
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares a result's snapshot against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := json.MarshalIndent(NewSnapshot(name, result), "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
