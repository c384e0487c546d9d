package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/reprotrace/internal/callchain"
	"github.com/roach88/reprotrace/internal/trace"
)

// CallGraphOptions holds flags for the callgraph command.
type CallGraphOptions struct {
	*RootOptions
	Files []string
	Dir   string
	Out   string
}

// CallGraphResult summarizes a callgraph run.
type CallGraphResult struct {
	Run       string `json:"run"`
	Events    int64  `json:"events"`
	Graphs    int    `json:"graphs"`
	Out       string `json:"out"`
	Truncated bool   `json:"truncated"`
}

// String renders the result for text output.
func (r CallGraphResult) String() string {
	s := fmt.Sprintf("Run: %s\nEvents: %d\nCall graphs: %d\nOutput: %s", r.Run, r.Events, r.Graphs, r.Out)
	if r.Truncated {
		s += "\nWarning: run truncated by a corrupt record"
	}
	return s
}

// NewCallGraphCommand creates the callgraph command.
func NewCallGraphCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallGraphOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "callgraph",
		Short: "Rebuild call graphs from the raw trace of one run",
		Long: `Rebuild one call graph per top-level invocation from a single run's
event stream and write them as JSON Lines, one graph per line in emission
order.

Without --out the graphs are written to standard output.

Exit codes:
  0 - All invocations were well nested
  1 - INPUTS/OUTPUTS events are not well nested
  2 - Command error (bad flags, unreadable traces)

Examples:
  reprotrace callgraph --file run0.0.jsonl --file run0.1.jsonl
  reprotrace callgraph --dir ./traces/run0 --out graphs.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCallGraph(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Files, "file", nil, "trace file of the run (repeatable)")
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "directory holding the run's trace files")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output file (default stdout)")

	return cmd
}

func runCallGraph(opts *CallGraphOptions, cmd *cobra.Command) error {
	if err := opts.prepare(cmd); err != nil {
		return err
	}
	out := opts.formatter(cmd)
	logger := opts.Logger

	files, dir := selectInput(cmd, opts.RootOptions, opts.Files, opts.Dir)
	runs, err := resolveRuns(files, dir)
	if err != nil {
		return out.Fail(ExitCommandError, CodeInput, "failed to resolve trace files", err, nil)
	}
	if len(runs) != 1 {
		return out.Fail(ExitCommandError, CodeInput,
			fmt.Sprintf("expected the files of one run, found %d runs", len(runs)), nil, nil)
	}

	var w io.Writer = cmd.OutOrStdout()
	result := CallGraphResult{Run: runs[0].Prefix, Out: "stdout"}
	if opts.Out != "" {
		f, err := os.Create(opts.Out)
		if err != nil {
			return out.Fail(ExitCommandError, CodeInput, "failed to create output file", err, nil)
		}
		defer f.Close()
		w = f
		result.Out = opts.Out
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	r := trace.OpenRun(runs[0], trace.WithReaderLogger(logger))
	defer r.Close()
	builder := callchain.NewBuilder(callchain.NewJSONLSink(w), callchain.WithLogger(logger))

	for {
		if err := ctx.Err(); err != nil {
			return out.Fail(ExitFailure, CodeCanceled, "interrupted", err, nil)
		}
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if trace.IsCorruptTraceError(err) {
			logger.Warn("run truncated", "error", err)
			result.Truncated = true
			break
		}
		if err != nil {
			return out.Fail(ExitCommandError, CodeInput, "failed to read trace", err, nil)
		}
		if err := builder.PushEvent(ctx, ev); err != nil {
			return callGraphFailure(out, err, result)
		}
	}
	if err := builder.Flush(); err != nil {
		return callGraphFailure(out, err, result)
	}

	result.Events = r.Events()
	result.Graphs = builder.Emitted()
	logger.Info("call graphs built", "run", result.Run, "events", result.Events, "graphs", result.Graphs)

	// Graphs already occupy stdout; the summary only goes to the log there.
	if opts.Out == "" {
		return nil
	}
	return out.Success(result)
}

func callGraphFailure(out *Reporter, err error, result CallGraphResult) error {
	if callchain.IsMalformedTraceError(err) {
		return out.Fail(ExitFailure, CodeMalformed, "malformed call nesting", err, result)
	}
	return out.Fail(ExitCommandError, CodeInput, "failed to write call graph", err, result)
}
