package trace

import (
	"bytes"
	"encoding/json"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// Label tells whether an event records the inputs or the outputs of a call.
type Label string

const (
	LabelInputs  Label = "inputs"
	LabelOutputs Label = "outputs"
)

// Valid reports whether l is one of the two known labels.
func (l Label) Valid() bool {
	return l == LabelInputs || l == LabelOutputs
}

// Backtrace locates the call site that produced an event.
type Backtrace struct {
	Filename   string `json:"filename"`
	SourceLine string `json:"source_line"`
	LineNumber int    `json:"line_number"`
	CallerName string `json:"caller_name"`
}

// TraceEvent is one record of a run.
//
// ID is run-local and must never be compared across runs. Time is shared by
// the INPUTS and OUTPUTS events of one call and strictly increases between
// calls.
type TraceEvent struct {
	ID        int64     `json:"id"`
	Time      uint64    `json:"time"`
	Module    string    `json:"module"`
	Function  string    `json:"function"`
	Label     Label     `json:"label"`
	Args      Args      `json:"args"`
	Backtrace Backtrace `json:"backtrace"`
}

// Arg is one named argument value.
type Arg struct {
	Name  string
	Value Value
}

// Args is an ordered mapping of argument name to value.
// The order is the order in which the instrumentation recorded the arguments.
type Args []Arg

// Names returns the argument names in recorded order.
func (a Args) Names() []string {
	names := make([]string, len(a))
	for i, arg := range a {
		names[i] = arg.Name
	}
	return names
}

// Get returns the value for name and whether it was present.
func (a Args) Get(name string) (Value, bool) {
	for _, arg := range a {
		if arg.Name == name {
			return arg.Value, true
		}
	}
	return Value{}, false
}

// MarshalJSON writes the arguments as a JSON object preserving order.
func (a Args) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, arg := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(arg.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(arg.Value)
		if err != nil {
			return nil, fmt.Errorf("arg %q: %w", arg.Name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping the key order of the document.
func (a *Args) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*a = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("args: expected object, got %v", tok)
	}

	var out Args
	seen := mapset.NewThreadUnsafeSet[string]()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("args: expected string key, got %v", keyTok)
		}
		if !seen.Add(key) {
			return fmt.Errorf("args: duplicate argument %q", key)
		}
		var v Value
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("arg %q: %w", key, err)
		}
		out = append(out, Arg{Name: key, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*a = out
	return nil
}
