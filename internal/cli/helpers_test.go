package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/reprotrace/internal/testutil"
	"github.com/roach88/reprotrace/internal/trace"
)

// executeCommand runs the root command with args and captures its output.
func executeCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// decodeData unmarshals the data of a JSON success envelope into v.
func decodeData(t *testing.T, stdout string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), stdout)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// decodeError unmarshals a JSON error envelope.
func decodeError(t *testing.T, stdout string) EnvelopeError {
	t.Helper()
	var resp Envelope
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), stdout)
	require.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	return *resp.Error
}

// program records one run of a small traced program. x is the value that
// drifts between runs; last names the final call inside main.
func program(idBase int64, x float64, last string) []trace.TraceEvent {
	run := testutil.NewRun(idBase)
	run.Call("main", testutil.A("n", trace.Int(3)), nil, func() {
		for i := 0; i < 2; i++ {
			run.Call("step",
				testutil.A("x", trace.Float(x)),
				testutil.A("y", trace.Array([]int{2}, []float64{x, 2 * x})),
				nil)
		}
		run.Call(last, nil, testutil.A("ok", trace.Bool(true)), nil)
	})
	return run.Events()
}

// writeRuns writes n runs of program into dir as run0, run1, ... and
// returns every file written.
func writeRuns(t *testing.T, dir string, n int) []string {
	t.Helper()
	var files []string
	for r := 0; r < n; r++ {
		events := program(int64(100*r), 1+float64(r)*1e-7, "report")
		files = append(files, testutil.WriteRun(t, dir, runName(r), events)...)
	}
	return files
}

func runName(r int) string {
	return "run" + string(rune('0'+r))
}
