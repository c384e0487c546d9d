package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/reprotrace/internal/stats"
	"github.com/roach88/reprotrace/internal/trace"
)

// DefaultBatchSize is the number of records returned per batch when no
// batch size is configured.
const DefaultBatchSize = 32

// Source yields the events of one run. *trace.Reader implements Source.
type Source interface {
	Next() (trace.TraceEvent, error)
	Close() error
}

// Summary describes a merge after the fact.
type Summary struct {
	Runs    int   `json:"runs"`
	Records int64 `json:"records"`

	// SizeMismatch is set when the runs' files differ in total size.
	SizeMismatch bool `json:"size_mismatch"`

	// BacktraceMismatches counts positions whose backtraces differ.
	BacktraceMismatches int64 `json:"backtrace_mismatches"`

	// InconsistentStats counts statistics replaced by Empty because the
	// samples could not be summarized together.
	InconsistentStats int64 `json:"inconsistent_stats"`

	// Truncated counts runs that ended on a corrupt record.
	Truncated int `json:"truncated"`

	// Unaligned is set when the runs ended at different positions.
	Unaligned bool `json:"unaligned"`

	// TooFewRuns is set when the estimator needs RequiredRuns runs to
	// guarantee its significant bits and fewer were merged.
	TooFewRuns   bool `json:"too_few_runs"`
	RequiredRuns int  `json:"required_runs,omitempty"`
}

// Option configures a Merger.
type Option func(*Merger)

// WithBatchSize sets the number of records per batch. Values below 1 are
// ignored.
func WithBatchSize(n int) Option {
	return func(m *Merger) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithOnline returns each record as soon as it is merged.
func WithOnline(online bool) Option {
	return func(m *Merger) {
		m.online = online
	}
}

// WithEstimator sets the significant-bits estimator for every statistic.
func WithEstimator(e stats.Estimator) Option {
	return func(m *Merger) {
		m.est = e
	}
}

// WithLogger sets the logger used for determinism warnings.
func WithLogger(l *slog.Logger) Option {
	return func(m *Merger) {
		if l != nil {
			m.logger = l
		}
	}
}

// Merger merges N runs into one stream of MergedRecords.
//
// A Merger is not safe for concurrent use. Callers may stop calling Next at
// any point; Close releases every run.
type Merger struct {
	sources   []Source
	batchSize int
	online    bool
	est       stats.Estimator
	logger    *slog.Logger

	position int64
	done     bool
	err      error
	summary  Summary
}

// New returns a Merger over sources, one per run.
func New(sources []Source, opts ...Option) (*Merger, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("merge needs at least one run")
	}
	m := newMerger(opts)
	m.sources = sources
	m.summary.Runs = len(sources)
	m.checkRunCount()
	return m, nil
}

func newMerger(opts []Option) *Merger {
	m := &Merger{
		batchSize: DefaultBatchSize,
		est:       stats.ClosedForm{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open returns a Merger reading runs from disk. Runs whose files differ in
// total size are logged as a likely sign of non-determinism or of a crashed
// run; the merge proceeds regardless.
func Open(runs []trace.Run, opts ...Option) (*Merger, error) {
	if len(runs) == 0 {
		return nil, fmt.Errorf("merge needs at least one run")
	}

	m := newMerger(opts)
	m.sources = make([]Source, len(runs))
	for i, run := range runs {
		m.sources[i] = trace.OpenRun(run, trace.WithReaderLogger(m.logger))
	}
	m.summary.Runs = len(runs)
	m.checkRunCount()

	base := runs[0].Size()
	for i, run := range runs[1:] {
		if run.Size() != base {
			m.summary.SizeMismatch = true
			m.logger.Warn("trace size differs between runs",
				"run", i+1, "prefix", run.Prefix, "size", run.Size(),
				"reference", runs[0].Prefix, "reference_size", base)
		}
	}
	return m, nil
}

// checkRunCount warns when the estimator cannot guarantee its result with
// the number of runs being merged.
func (m *Merger) checkRunCount() {
	bound, ok := m.est.(stats.SampleBound)
	if !ok {
		return
	}
	required := bound.RequiredSamples()
	if required == 0 || m.summary.Runs >= required {
		return
	}
	m.summary.TooFewRuns = true
	m.summary.RequiredRuns = required
	m.logger.Warn("too few runs for the significant bits estimator",
		"method", m.est.Name(), "runs", m.summary.Runs, "required", required)
}

// Summary returns counters collected so far.
func (m *Merger) Summary() Summary {
	return m.summary
}

// Next returns the next batch of records, or io.EOF when every record has
// been returned.
//
// On a MergeError the records merged before the failing position are
// returned together with the error, and the Merger is finished.
func (m *Merger) Next(ctx context.Context) ([]MergedRecord, error) {
	if m.done {
		if m.err != nil {
			return nil, m.err
		}
		return nil, io.EOF
	}

	size := m.batchSize
	if m.online {
		size = 1
	}

	batch := make([]MergedRecord, 0, size)
	for len(batch) < size {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		rec, err := m.Step()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return batch, err
		}
		batch = append(batch, rec)
	}

	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

// Step merges and returns a single record.
func (m *Merger) Step() (MergedRecord, error) {
	if m.done {
		if m.err != nil {
			return MergedRecord{}, m.err
		}
		return MergedRecord{}, io.EOF
	}

	events, ok := m.pull()
	if !ok {
		m.done = true
		return MergedRecord{}, io.EOF
	}

	rec, err := m.mergeEvents(events)
	if err != nil {
		m.done = true
		m.err = err
		return MergedRecord{}, err
	}
	m.position++
	m.summary.Records++
	return rec, nil
}

// Close releases every run.
func (m *Merger) Close() error {
	m.done = true
	var errs []error
	for _, src := range m.sources {
		if err := src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// pull reads one event from every run. It returns false once any run is
// exhausted.
func (m *Merger) pull() ([]trace.TraceEvent, bool) {
	events := make([]trace.TraceEvent, len(m.sources))
	ended := make([]int, 0)
	for i, src := range m.sources {
		ev, err := src.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				m.summary.Truncated++
				m.logger.Warn("run ended on unreadable record", "run", i, "position", m.position, "error", err)
			}
			ended = append(ended, i)
			continue
		}
		events[i] = ev
	}

	if len(ended) == 0 {
		return events, true
	}
	if len(ended) < len(m.sources) {
		m.summary.Unaligned = true
		m.logger.Warn("runs have different lengths, discarding remaining events",
			"position", m.position, "ended_runs", ended)
	}
	return nil, false
}

func (m *Merger) mergeEvents(events []trace.TraceEvent) (MergedRecord, error) {
	ref := events[0]
	refKeys := mapset.NewThreadUnsafeSet(ref.Args.Names()...)

	for i, ev := range events[1:] {
		run := i + 1
		switch {
		case ev.Module != ref.Module:
			return MergedRecord{}, m.mismatch(ErrCodeModuleMismatch, run, ref.Module, ev.Module)
		case ev.Function != ref.Function:
			return MergedRecord{}, m.mismatch(ErrCodeFunctionMismatch, run, ref.Function, ev.Function)
		case ev.Label != ref.Label:
			return MergedRecord{}, m.mismatch(ErrCodeLabelMismatch, run, string(ref.Label), string(ev.Label))
		}

		keys := mapset.NewThreadUnsafeSet(ev.Args.Names()...)
		if !refKeys.Equal(keys) {
			return MergedRecord{}, m.mismatch(ErrCodeArgsMismatch, run,
				fmt.Sprint(ref.Args.Names()), fmt.Sprint(ev.Args.Names()))
		}

		if ev.Backtrace != ref.Backtrace {
			m.summary.BacktraceMismatches++
			m.logger.Warn("backtrace differs between runs",
				"position", m.position, "run", run,
				"module", ref.Module, "function", ref.Function,
				"want", ref.Backtrace.Filename, "got", ev.Backtrace.Filename)
		}
	}

	rec := MergedRecord{
		Position:  m.position,
		ID:        ref.ID,
		Time:      ref.Time,
		Module:    ref.Module,
		Function:  ref.Function,
		Label:     ref.Label,
		Backtrace: ref.Backtrace,
		Stats:     make([]ArgStat, 0, len(ref.Args)),
	}

	samples := make([]trace.Value, len(events))
	for _, arg := range ref.Args {
		for i, ev := range events {
			samples[i], _ = ev.Args.Get(arg.Name)
		}
		st, err := stats.FromSamples(samples, stats.WithEstimator(m.est))
		if err != nil {
			m.summary.InconsistentStats++
			m.logger.Warn("samples cannot be summarized together",
				"position", m.position, "module", ref.Module, "function", ref.Function,
				"arg", arg.Name, "error", err)
			st = stats.Empty(len(samples))
		}
		rec.Stats = append(rec.Stats, ArgStat{Name: arg.Name, Stat: st})
	}
	return rec, nil
}

func (m *Merger) mismatch(code MergeErrorCode, run int, want, got string) *MergeError {
	return &MergeError{Code: code, Position: m.position, Run: run, Want: want, Got: got}
}
