package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/reprotrace/internal/stats"
	"github.com/roach88/reprotrace/internal/trace"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Runs is the number of runs recorded and merged.
	Runs int `yaml:"runs"`

	// Merge configures the merge. Zero values keep the defaults.
	Merge MergeSettings `yaml:"merge,omitempty"`

	// Program is the sequence of top-level calls of every run.
	Program []CallStep `yaml:"program"`

	// Assertions validate the merged session.
	Assertions []Assertion `yaml:"assertions"`
}

// MergeSettings mirrors the merge section of the configuration file.
type MergeSettings struct {
	Method      string  `yaml:"method,omitempty"`
	BatchSize   int     `yaml:"batch_size,omitempty"`
	Online      bool    `yaml:"online,omitempty"`
	Probability float64 `yaml:"probability,omitempty"`
	Confidence  float64 `yaml:"confidence,omitempty"`
}

// CallStep is one call of the traced program.
type CallStep struct {
	// Call is the function name; the module is always "app".
	Call string `yaml:"call"`

	// Repeat records the call this many times in a row. Zero means once.
	Repeat int `yaml:"repeat,omitempty"`

	// Only restricts the call to the listed runs.
	Only []int `yaml:"only,omitempty"`

	// Inputs and Outputs map argument names to a Sample.
	Inputs  map[string]Sample `yaml:"inputs,omitempty"`
	Outputs map[string]Sample `yaml:"outputs,omitempty"`

	// Body holds the calls nested inside this one.
	Body []CallStep `yaml:"body,omitempty"`
}

// Sample is the value of one argument: either one number for every run or
// one number per run.
type Sample struct {
	PerRun []float64
}

// UnmarshalYAML accepts a scalar or a sequence of numbers.
func (s *Sample) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var x float64
		if err := node.Decode(&x); err != nil {
			return err
		}
		s.PerRun = []float64{x}
		return nil
	case yaml.SequenceNode:
		if len(node.Content) == 0 {
			return fmt.Errorf("line %d: sample list is empty", node.Line)
		}
		return node.Decode(&s.PerRun)
	}
	return fmt.Errorf("line %d: sample must be a number or a list of numbers", node.Line)
}

// At returns the value used by run.
func (s Sample) At(run int) float64 {
	if len(s.PerRun) == 1 {
		return s.PerRun[0]
	}
	return s.PerRun[run]
}

// Assertion validates the merged session.
type Assertion struct {
	// Type specifies the assertion type, see the Assert* constants.
	Type string `yaml:"type"`

	// Count is used by record_count and callgraph_count.
	Count int `yaml:"count,omitempty"`

	// Names is the expected order of functions (record_order).
	Names []string `yaml:"names,omitempty"`

	// Name, Label, Arg and Occurrence select a row (stat) or a node
	// (callgraph_cycle, Name only). Occurrence counts matching rows from 0.
	Name       string      `yaml:"name,omitempty"`
	Label      trace.Label `yaml:"label,omitempty"`
	Arg        string      `yaml:"arg,omitempty"`
	Occurrence int         `yaml:"occurrence,omitempty"`

	// Kind, Mean, Std, SigMin and SigMax constrain the selected row (stat).
	Kind   string   `yaml:"kind,omitempty"`
	Mean   *float64 `yaml:"mean,omitempty"`
	Std    *float64 `yaml:"std,omitempty"`
	SigMin *float64 `yaml:"sig_min,omitempty"`
	SigMax *float64 `yaml:"sig_max,omitempty"`

	// Graph is the call graph sequence number (callgraph_cycle).
	Graph int `yaml:"graph,omitempty"`

	// Cycle is the expected repetition count (callgraph_cycle).
	Cycle int `yaml:"cycle,omitempty"`

	// Expect holds summary counters (summary). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Code is the expected merge error code (merge_error).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertRecordCount    = "record_count"
	AssertRecordOrder    = "record_order"
	AssertStat           = "stat"
	AssertCallGraphCount = "callgraph_count"
	AssertCallGraphCycle = "callgraph_cycle"
	AssertSummary        = "summary"
	AssertMergeError     = "merge_error"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Runs < 1 {
		return fmt.Errorf("runs must be at least 1")
	}
	if len(s.Program) == 0 {
		return fmt.Errorf("program list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Merge.Method != "" {
		if _, err := stats.NewEstimator(s.Merge.Method, 0.5, 0.5); err != nil {
			return fmt.Errorf("merge.method: %w", err)
		}
	}
	for _, p := range []float64{s.Merge.Probability, s.Merge.Confidence} {
		if p < 0 || p >= 1 {
			return fmt.Errorf("merge: probability and confidence must be in (0, 1)")
		}
	}

	for i := range s.Program {
		if err := validateStep(fmt.Sprintf("program[%d]", i), &s.Program[i], s.Runs); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(path string, step *CallStep, runs int) error {
	if step.Call == "" {
		return fmt.Errorf("%s: call is required", path)
	}
	if step.Repeat < 0 {
		return fmt.Errorf("%s: repeat must be non-negative", path)
	}
	for _, r := range step.Only {
		if r < 0 || r >= runs {
			return fmt.Errorf("%s: only lists run %d, scenario has %d runs", path, r, runs)
		}
	}
	for _, args := range []map[string]Sample{step.Inputs, step.Outputs} {
		for name, sample := range args {
			if n := len(sample.PerRun); n != 1 && n != runs {
				return fmt.Errorf("%s: %s has %d values, want 1 or %d", path, name, n, runs)
			}
		}
	}
	for i := range step.Body {
		if err := validateStep(fmt.Sprintf("%s.body[%d]", path, i), &step.Body[i], runs); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRecordCount, AssertCallGraphCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertRecordOrder:
		if len(a.Names) == 0 {
			return fmt.Errorf("assertions[%d]: names list is required for record_order", index)
		}
	case AssertStat:
		if a.Name == "" || a.Arg == "" {
			return fmt.Errorf("assertions[%d]: name and arg are required for stat", index)
		}
		if a.Label != "" && !a.Label.Valid() {
			return fmt.Errorf("assertions[%d]: invalid label %q", index, a.Label)
		}
	case AssertCallGraphCycle:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for callgraph_cycle", index)
		}
		if a.Cycle < 1 {
			return fmt.Errorf("assertions[%d]: cycle must be positive for callgraph_cycle", index)
		}
	case AssertSummary:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for summary", index)
		}
	case AssertMergeError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for merge_error", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
