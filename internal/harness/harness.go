package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/reprotrace/internal/callchain"
	"github.com/roach88/reprotrace/internal/merge"
	"github.com/roach88/reprotrace/internal/stats"
	"github.com/roach88/reprotrace/internal/store"
	"github.com/roach88/reprotrace/internal/testutil"
	"github.com/roach88/reprotrace/internal/trace"
)

// runIDStride separates the run-local ids of successive runs so that
// nothing can rely on ids agreeing across runs.
const runIDStride = 1000

// Harness executes one scenario against a fresh in-memory store.
type Harness struct {
	store  *store.Store
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Record every run with deterministic ids and clocks
//  2. Merge the runs into a session of a fresh in-memory database
//  3. Rebuild the call graphs from the merged stream
//  4. Read records and graphs back and evaluate the assertions
//
// A merge error is part of the result, not a failure of Run.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	result := NewResult()
	sessionID, err := h.merge(ctx, scenario, result)
	if err != nil {
		return nil, err
	}

	if result.Records, err = st.ReadRecords(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	if result.Graphs, err = st.ReadCallGraphs(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to read call graphs: %w", err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) merge(ctx context.Context, scenario *Scenario, result *Result) (string, error) {
	cfg := scenario.Merge
	probability := orDefault(cfg.Probability, stats.DefaultProbability)
	confidence := orDefault(cfg.Confidence, stats.DefaultConfidence)
	est, err := stats.NewEstimator(cfg.Method, probability, confidence)
	if err != nil {
		return "", err
	}

	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = merge.DefaultBatchSize
	}

	session, err := h.store.CreateSession(ctx, store.SessionParams{
		Runs:      scenario.Runs,
		Method:    est.Name(),
		BatchSize: batchSize,
		Online:    cfg.Online,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	sources := make([]merge.Source, scenario.Runs)
	for r := range sources {
		sources[r] = &testutil.SliceSource{Events: RecordRun(scenario, r)}
	}

	m, err := merge.New(sources,
		merge.WithBatchSize(batchSize),
		merge.WithOnline(cfg.Online),
		merge.WithEstimator(est),
		merge.WithLogger(h.logger),
	)
	if err != nil {
		return "", err
	}
	defer m.Close()

	builder := callchain.NewBuilder(h.store.GraphSink(session.ID), callchain.WithLogger(h.logger))
	for {
		batch, err := m.Next(ctx)
		if werr := h.export(ctx, session.ID, builder, batch, result); werr != nil {
			return "", werr
		}
		if errors.Is(err, io.EOF) {
			break
		}
		var me *merge.MergeError
		if errors.As(err, &me) {
			result.MergeErr = me
			break
		}
		if err != nil {
			return "", fmt.Errorf("merge failed: %w", err)
		}
	}
	if err := builder.Flush(); err != nil {
		if !callchain.IsMalformedTraceError(err) {
			return "", err
		}
		result.Malformed++
	}

	result.Summary = m.Summary()
	return session.ID, nil
}

// export stores a batch and feeds it to the call graph builder.
func (h *Harness) export(ctx context.Context, sessionID string, b *callchain.Builder, batch []merge.MergedRecord, result *Result) error {
	if len(batch) == 0 {
		return nil
	}
	if err := h.store.WriteRecords(ctx, sessionID, batch); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	for _, rec := range batch {
		err := b.Push(ctx, callchain.FromRecord(rec))
		if callchain.IsMalformedTraceError(err) {
			result.Malformed++
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// RecordRun returns the events of one run of the scenario's program.
func RecordRun(scenario *Scenario, run int) []trace.TraceEvent {
	b := testutil.NewRun(int64(run * runIDStride))
	record(b, run, scenario.Program)
	return b.Events()
}

func record(b *testutil.RunBuilder, run int, steps []CallStep) {
	for _, step := range steps {
		if len(step.Only) > 0 && !slices.Contains(step.Only, run) {
			continue
		}
		var body func()
		if len(step.Body) > 0 {
			body = func() { record(b, run, step.Body) }
		}
		for i := 0; i < max(step.Repeat, 1); i++ {
			b.Call(step.Call, args(step.Inputs, run), args(step.Outputs, run), body)
		}
	}
}

// args builds the argument list of one run. Names are sorted because YAML
// mappings carry no order.
func args(samples map[string]Sample, run int) trace.Args {
	if len(samples) == 0 {
		return nil
	}
	out := make(trace.Args, 0, len(samples))
	for _, name := range slices.Sorted(maps.Keys(samples)) {
		out = append(out, trace.Arg{Name: name, Value: trace.Float(samples[name].At(run))})
	}
	return out
}

func orDefault(x, fallback float64) float64 {
	if x == 0 {
		return fallback
	}
	return x
}
