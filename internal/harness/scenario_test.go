package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "one call"
runs: 2
program:
  - call: f
    inputs: { x: [1, 2] }
    outputs: { y: 3 }
assertions:
  - type: record_count
    count: 2
`

func TestParseScenario_Valid(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, 2, s.Runs)
	require.Len(t, s.Program, 1)
	step := s.Program[0]
	assert.Equal(t, "f", step.Call)
	assert.Equal(t, []float64{1, 2}, step.Inputs["x"].PerRun)
	assert.Equal(t, []float64{3}, step.Outputs["y"].PerRun)
	assert.Equal(t, 2.0, step.Inputs["x"].At(1))
	assert.Equal(t, 3.0, step.Outputs["y"].At(1))
}

func TestLoadScenario_AllTestdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			assert.NoError(t, err)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "name: x\ndescription: y\nruns: 1\nprogram: [{call: f}]\nassertion: []\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "missing name",
			yaml:    "description: y\nruns: 1\nprogram: [{call: f}]\nassertions: [{type: record_count}]\n",
			wantErr: "name is required",
		},
		{
			name:    "zero runs",
			yaml:    "name: x\ndescription: y\nruns: 0\nprogram: [{call: f}]\nassertions: [{type: record_count}]\n",
			wantErr: "runs must be at least 1",
		},
		{
			name:    "empty program",
			yaml:    "name: x\ndescription: y\nruns: 1\nprogram: []\nassertions: [{type: record_count}]\n",
			wantErr: "program list is required",
		},
		{
			name:    "no assertions",
			yaml:    "name: x\ndescription: y\nruns: 1\nprogram: [{call: f}]\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "missing call",
			yaml:    "name: x\ndescription: y\nruns: 1\nprogram: [{body: [{call: g}]}]\nassertions: [{type: record_count}]\n",
			wantErr: "program[0]: call is required",
		},
		{
			name:    "nested error path",
			yaml:    "name: x\ndescription: y\nruns: 1\nprogram: [{call: f, body: [{repeat: 2}]}]\nassertions: [{type: record_count}]\n",
			wantErr: "program[0].body[0]: call is required",
		},
		{
			name:    "only out of range",
			yaml:    "name: x\ndescription: y\nruns: 2\nprogram: [{call: f, only: [2]}]\nassertions: [{type: record_count}]\n",
			wantErr: "only lists run 2",
		},
		{
			name:    "wrong sample count",
			yaml:    "name: x\ndescription: y\nruns: 3\nprogram: [{call: f, inputs: {x: [1, 2]}}]\nassertions: [{type: record_count}]\n",
			wantErr: "x has 2 values, want 1 or 3",
		},
		{
			name:    "sample is a mapping",
			yaml:    "name: x\ndescription: y\nruns: 1\nprogram: [{call: f, inputs: {x: {a: 1}}}]\nassertions: [{type: record_count}]\n",
			wantErr: "sample must be a number",
		},
		{
			name:    "unknown method",
			yaml:    "name: x\ndescription: y\nruns: 1\nmerge: {method: magic}\nprogram: [{call: f}]\nassertions: [{type: record_count}]\n",
			wantErr: "merge.method",
		},
		{
			name:    "probability out of range",
			yaml:    "name: x\ndescription: y\nruns: 1\nmerge: {probability: 1.5}\nprogram: [{call: f}]\nassertions: [{type: record_count}]\n",
			wantErr: "probability and confidence",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: x\ndescription: y\nruns: 1\nprogram: [{call: f}]\nassertions: [{type: trace_contains}]\n",
			wantErr: `unknown assertion type "trace_contains"`,
		},
		{
			name:    "stat without arg",
			yaml:    "name: x\ndescription: y\nruns: 1\nprogram: [{call: f}]\nassertions: [{type: stat, name: app.f}]\n",
			wantErr: "name and arg are required",
		},
		{
			name:    "stat with bad label",
			yaml:    "name: x\ndescription: y\nruns: 1\nprogram: [{call: f}]\nassertions: [{type: stat, name: app.f, arg: x, label: sideways}]\n",
			wantErr: `invalid label "sideways"`,
		},
		{
			name:    "cycle without count",
			yaml:    "name: x\ndescription: y\nruns: 1\nprogram: [{call: f}]\nassertions: [{type: callgraph_cycle, name: app.f}]\n",
			wantErr: "cycle must be positive",
		},
		{
			name:    "merge error without code",
			yaml:    "name: x\ndescription: y\nruns: 1\nprogram: [{call: f}]\nassertions: [{type: merge_error}]\n",
			wantErr: "code is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
