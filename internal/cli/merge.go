package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reprotrace/internal/callchain"
	"github.com/roach88/reprotrace/internal/merge"
	"github.com/roach88/reprotrace/internal/stats"
	"github.com/roach88/reprotrace/internal/store"
)

// MergeOptions holds flags for the merge command.
type MergeOptions struct {
	*RootOptions
	Files      []string
	Dir        string
	BatchSize  int
	Online     bool
	Method     string
	Database   string
	CallGraphs string
}

// MergeResult is the outcome of a merge.
type MergeResult struct {
	Session    string        `json:"session"`
	Database   string        `json:"database"`
	Method     string        `json:"method"`
	Records    int64         `json:"records"`
	Graphs     int           `json:"graphs"`
	Malformed  int           `json:"malformed"`
	CallGraphs string        `json:"callgraphs,omitempty"`
	Summary    merge.Summary `json:"summary"`
}

// String renders the result for text output.
func (r MergeResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", r.Session)
	fmt.Fprintf(&b, "Database: %s\n", r.Database)
	fmt.Fprintf(&b, "Runs: %d\n", r.Summary.Runs)
	fmt.Fprintf(&b, "Records: %d\n", r.Records)
	fmt.Fprintf(&b, "Method: %s\n", r.Method)
	fmt.Fprintf(&b, "Call graphs: %d", r.Graphs)
	if r.Malformed > 0 {
		fmt.Fprintf(&b, " (%d malformed)", r.Malformed)
	}
	b.WriteString("\n")

	var warnings []string
	if r.Summary.SizeMismatch {
		warnings = append(warnings, "run files differ in size")
	}
	if r.Summary.Unaligned {
		warnings = append(warnings, "runs ended at different positions")
	}
	if r.Summary.Truncated > 0 {
		warnings = append(warnings, fmt.Sprintf("%d run(s) truncated by a corrupt record", r.Summary.Truncated))
	}
	if r.Summary.BacktraceMismatches > 0 {
		warnings = append(warnings, fmt.Sprintf("%d backtrace mismatch(es)", r.Summary.BacktraceMismatches))
	}
	if r.Summary.InconsistentStats > 0 {
		warnings = append(warnings, fmt.Sprintf("%d inconsistent statistic(s)", r.Summary.InconsistentStats))
	}
	if r.Summary.TooFewRuns {
		warnings = append(warnings, fmt.Sprintf("%s estimator needs %d runs, got %d", r.Method, r.Summary.RequiredRuns, r.Summary.Runs))
	}
	if len(warnings) == 0 {
		b.WriteString("Determinism: no warnings")
	} else {
		b.WriteString("Determinism warnings:")
		for _, w := range warnings {
			b.WriteString("\n  - " + w)
		}
	}
	return b.String()
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge the traces of several runs into per-call statistics",
		Long: `Merge the traces of several runs of one program position by position.

Every aligned position becomes one merged record holding the mean, standard
deviation and significant bits of each argument across runs. Records are
exported to a SQLite database under a new session; call graphs rebuilt from
the merged stream are stored alongside and, with --callgraphs, written as
JSON Lines.

Files are grouped into runs by the prefix before their sequence number
(<prefix>.<seq>.jsonl[.zst]).

Exit codes:
  0 - Merge completed
  1 - Runs disagree at an aligned position (records before it are kept)
  2 - Command error (bad flags, unreadable traces, database errors)

Examples:
  reprotrace merge --dir ./traces --db out.db
  reprotrace merge --file run0.0.jsonl --file run1.0.jsonl --db out.db --method general
  reprotrace merge --dir ./traces --db out.db --online --callgraphs graphs.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Files, "file", nil, "trace file (repeatable)")
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "directory of trace files")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", merge.DefaultBatchSize, "records per batch")
	cmd.Flags().BoolVar(&opts.Online, "online", false, "yield each record as soon as it is merged")
	cmd.Flags().StringVar(&opts.Method, "method", stats.MethodCNH,
		"significant-bits estimator ("+strings.Join(stats.Methods(), "|")+")")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite export database")
	cmd.Flags().StringVar(&opts.CallGraphs, "callgraphs", "", "write call graphs as JSON Lines to this file")

	return cmd
}

// applyConfig fills every flag the user did not set from the configuration.
func (o *MergeOptions) applyConfig(cmd *cobra.Command) {
	cfg := o.Config
	flags := cmd.Flags()
	if !flags.Changed("batch-size") {
		o.BatchSize = cfg.Merge.BatchSize
	}
	if !flags.Changed("online") {
		o.Online = cfg.Merge.Online
	}
	if !flags.Changed("method") {
		o.Method = cfg.Merge.Method
	}
	if !flags.Changed("db") {
		o.Database = cfg.Output.Database
	}
	if !flags.Changed("callgraphs") {
		o.CallGraphs = cfg.Output.CallGraphs
	}
	o.Files, o.Dir = selectInput(cmd, o.RootOptions, o.Files, o.Dir)
}

func runMerge(opts *MergeOptions, cmd *cobra.Command) error {
	if err := opts.prepare(cmd); err != nil {
		return err
	}
	opts.applyConfig(cmd)
	out := opts.formatter(cmd)
	logger := opts.Logger

	if opts.BatchSize < 1 {
		return out.Fail(ExitCommandError, CodeConfig, fmt.Sprintf("invalid batch size %d", opts.BatchSize), nil, nil)
	}
	if opts.Database == "" {
		return out.Fail(ExitCommandError, CodeConfig, "an export database is required (--db)", nil, nil)
	}
	est, err := stats.NewEstimator(opts.Method, opts.Config.Merge.Probability, opts.Config.Merge.Confidence)
	if err != nil {
		return out.Fail(ExitCommandError, CodeConfig, "invalid method", err, nil)
	}

	runs, err := resolveRuns(opts.Files, opts.Dir)
	if err != nil {
		return out.Fail(ExitCommandError, CodeInput, "failed to resolve trace files", err, nil)
	}
	logger.Info("merging runs", "runs", len(runs), "method", est.Name(), "batch_size", opts.BatchSize, "online", opts.Online)

	st, err := store.Open(opts.Database)
	if err != nil {
		return out.Fail(ExitCommandError, CodeStore, "failed to open database", err, nil)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	sess, err := st.CreateSession(ctx, store.SessionParams{
		Runs:      len(runs),
		Method:    est.Name(),
		BatchSize: opts.BatchSize,
		Online:    opts.Online,
	})
	if err != nil {
		return out.Fail(ExitCommandError, CodeStore, "failed to create session", err, nil)
	}
	logger.Debug("session created", "session", sess.ID, "seq", sess.CreatedSeq)

	sinks := callchain.MultiSink{st.GraphSink(sess.ID)}
	if opts.CallGraphs != "" {
		f, err := os.Create(opts.CallGraphs)
		if err != nil {
			return out.Fail(ExitCommandError, CodeInput, "failed to create call graph file", err, nil)
		}
		defer f.Close()
		sinks = append(sinks, callchain.NewJSONLSink(f))
	}

	m, err := merge.Open(runs,
		merge.WithBatchSize(opts.BatchSize),
		merge.WithOnline(opts.Online),
		merge.WithEstimator(est),
		merge.WithLogger(logger),
	)
	if err != nil {
		return out.Fail(ExitCommandError, CodeInput, "failed to open runs", err, nil)
	}
	defer m.Close()

	result := MergeResult{
		Session:    sess.ID,
		Database:   opts.Database,
		Method:     est.Name(),
		CallGraphs: opts.CallGraphs,
	}
	builder := callchain.NewBuilder(sinks, callchain.WithLogger(logger))

	mergeErr := drainMerge(ctx, m, st, sess.ID, builder, &result, logger)

	if err := builder.Flush(); err != nil {
		result.Malformed++
		logger.Warn("call graph left unfinished", "error", err)
	}
	result.Graphs = builder.Emitted()
	result.Records = m.Summary().Records
	result.Summary = m.Summary()

	if mergeErr != nil {
		var me *merge.MergeError
		switch {
		case errors.As(mergeErr, &me):
			return out.Fail(ExitFailure, CodeMerge, "merge aborted", mergeErr, result)
		case errors.Is(mergeErr, context.Canceled):
			return out.Fail(ExitFailure, CodeCanceled, "merge interrupted", mergeErr, result)
		}
		return out.Fail(ExitCommandError, CodeStore, "merge failed", mergeErr, result)
	}

	logger.Info("merge complete", "session", sess.ID, "records", result.Records, "graphs", result.Graphs)
	return out.Success(result)
}

// drainMerge exports every batch and feeds the merged stream to the call
// graph builder. Records merged before a MergeError are still exported.
func drainMerge(ctx context.Context, m *merge.Merger, st *store.Store, session string,
	builder *callchain.Builder, result *MergeResult, logger *slog.Logger) error {
	// Exports ignore cancellation so an interrupt keeps what was merged.
	exportCtx := context.WithoutCancel(ctx)
	for {
		batch, err := m.Next(ctx)
		if len(batch) > 0 {
			if werr := st.WriteRecords(exportCtx, session, batch); werr != nil {
				return fmt.Errorf("export records: %w", werr)
			}
			for _, rec := range batch {
				perr := builder.Push(exportCtx, callchain.FromRecord(rec))
				if perr == nil {
					continue
				}
				if !callchain.IsMalformedTraceError(perr) {
					return fmt.Errorf("build call graph: %w", perr)
				}
				result.Malformed++
				logger.Warn("malformed call nesting", "position", rec.Position, "error", perr)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
