package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	r := &Reporter{Format: "json", Stdout: buf}

	require.NoError(t, r.Success(map[string]string{"session": "s1"}))

	var env Envelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	assert.Equal(t, "ok", env.Status)
	assert.Equal(t, map[string]any{"session": "s1"}, env.Data)
	assert.Nil(t, env.Error)
}

func TestReporter_TextSuccessUsesStringer(t *testing.T) {
	buf := &bytes.Buffer{}
	r := &Reporter{Format: "text", Stdout: buf}

	require.NoError(t, r.Success(CallGraphResult{Run: "r", Graphs: 2, Out: "g.jsonl"}))
	assert.Contains(t, buf.String(), "Call graphs: 2")
}

func TestReporter_JSONFail(t *testing.T) {
	buf := &bytes.Buffer{}
	r := &Reporter{Format: "json", Stdout: buf}

	cause := errors.New("boom")
	err := r.Fail(ExitFailure, CodeMerge, "merge aborted", cause, map[string]int{"position": 4})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "merge aborted: boom", err.Error())

	var env Envelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	assert.Equal(t, "error", env.Status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "E100", env.Error.Code)
	assert.Equal(t, "merge aborted: boom", env.Error.Message)
	assert.NotNil(t, env.Error.Details)
}

func TestReporter_TextFail(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"verbose", true, true},
		{"quiet", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
			r := &Reporter{Format: "text", Stdout: stdout, Stderr: stderr, Verbose: tt.verbose}

			err := r.Fail(ExitCommandError, CodeInput, "no trace files", nil, map[string]string{"dir": "x"})
			assert.Equal(t, ExitCommandError, ExitCode(err))
			assert.Empty(t, stdout.String())
			assert.Contains(t, stderr.String(), "Error [E001]: no trace files")
			if tt.wantDetails {
				assert.Contains(t, stderr.String(), "Details: map[dir:x]")
			} else {
				assert.NotContains(t, stderr.String(), "Details:")
			}
		})
	}
}

func TestReporter_TextFailWithoutStderr(t *testing.T) {
	buf := &bytes.Buffer{}
	r := &Reporter{Format: "text", Stdout: buf}

	_ = r.Fail(ExitFailure, CodeMalformed, "call graph malformed", nil, nil)
	assert.Contains(t, buf.String(), "Error [E101]: call graph malformed")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, ExitCode(exitError(ExitCommandError, "bad flag", nil)))

	wrapped := fmt.Errorf("running merge: %w", exitError(ExitCommandError, "bad flag", nil))
	assert.Equal(t, ExitCommandError, ExitCode(wrapped))
}
