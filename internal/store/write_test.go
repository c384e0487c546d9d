package store

import (
	"context"
	"database/sql"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reprotrace/internal/merge"
	"github.com/roach88/reprotrace/internal/stats"
	"github.com/roach88/reprotrace/internal/testutil"
	"github.com/roach88/reprotrace/internal/trace"
)

func statOf(t *testing.T, vals ...trace.Value) *stats.Statistic {
	t.Helper()
	s, err := stats.FromSamples(vals)
	require.NoError(t, err)
	return s
}

func sampleRecord(t *testing.T) merge.MergedRecord {
	t.Helper()
	return merge.MergedRecord{
		Position: 4,
		ID:       17,
		Time:     9,
		Module:   "numpy",
		Function: "dot",
		Label:    trace.LabelOutputs,
		Backtrace: trace.Backtrace{
			Filename: "solve.py", SourceLine: "np.dot(a, b)", LineNumber: 12, CallerName: "solve",
		},
		Stats: []merge.ArgStat{
			{Name: "x", Stat: statOf(t, trace.Float(1), trace.Float(1.0000001), trace.Float(0.9999999))},
			{Name: "v", Stat: statOf(t,
				trace.Array([]int{3}, []float64{1, 2, 3}),
				trace.Array([]int{3}, []float64{1, 2.5, 3}),
				trace.Array([]int{3}, []float64{1, 2.25, 3.125}))},
			{Name: "c", Stat: statOf(t, trace.Complex(1+2i), trace.Complex(1.5+2i), trace.Complex(1+2.5i))},
			{Name: "t", Stat: statOf(t,
				trace.Tuple(trace.Float(2), trace.String("a")),
				trace.Tuple(trace.Float(2), trace.String("b")),
				trace.Tuple(trace.Float(2), trace.String("c")))},
			{Name: "s", Stat: statOf(t, trace.String("x"), trace.String("x"), trace.String("x"))},
		},
	}
}

func assertBits(t *testing.T, want, got float64, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, math.Float64bits(want), math.Float64bits(got), msgAndArgs...)
}

func assertArrayBits(t *testing.T, want, got stats.Array) {
	t.Helper()
	assert.Equal(t, want.Shape, got.Shape)
	require.Len(t, got.Re, len(want.Re))
	for i := range want.Re {
		assertBits(t, want.Re[i], got.Re[i], "re[%d]", i)
	}
	require.Len(t, got.Im, len(want.Im))
	for i := range want.Im {
		assertBits(t, want.Im[i], got.Im[i], "im[%d]", i)
	}
}

func TestWriteRecords_Rows(t *testing.T) {
	s := createTestStore(t)
	sess := createTestSession(t, s)
	ctx := context.Background()
	rec := sampleRecord(t)

	require.NoError(t, s.WriteRecords(ctx, sess.ID, []merge.MergedRecord{rec}))

	rows, err := s.ReadRecords(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, rows, 6)

	var args, kinds []string
	for i, r := range rows {
		args = append(args, r.Arg)
		kinds = append(kinds, r.Kind)
		assert.Equal(t, i, r.ArgIndex)
		assert.Equal(t, int64(4), r.Position)
		assert.Equal(t, int64(17), r.ID)
		assert.Equal(t, "numpy.dot", r.Name)
		assert.Equal(t, trace.LabelOutputs, r.Label)
		assert.Equal(t, uint64(9), r.Time)
		assert.Equal(t, rec.Backtrace, r.Backtrace)
		assert.Equal(t, 3, r.Count)
	}
	assert.Equal(t, []string{"x", "v", "c", "t[0]", "t[1]", "s"}, args)
	assert.Equal(t, []string{KindScalar, KindArray, KindScalar, KindScalar, KindEmpty, KindEmpty}, kinds)

	// Array rows keep their summary out of the REAL columns.
	assert.True(t, math.IsNaN(rows[1].Mean))
	assert.True(t, math.IsNaN(rows[5].Sig))
	assert.False(t, rows[0].IsComplex())
	assert.True(t, rows[2].IsComplex())
}

func TestWriteRecords_ScalarRoundTripIsBitExact(t *testing.T) {
	s := createTestStore(t)
	sess := createTestSession(t, s)
	ctx := context.Background()
	rec := sampleRecord(t)

	require.NoError(t, s.WriteRecords(ctx, sess.ID, []merge.MergedRecord{rec}))
	rows, err := s.ReadRecords(ctx, sess.ID)
	require.NoError(t, err)

	x := rec.Stat("x")
	assertBits(t, x.Mean().Re[0], rows[0].Mean)
	assertBits(t, x.Std().Re[0], rows[0].Std)
	assertBits(t, x.Sig().Re[0], rows[0].Sig)
	assert.True(t, math.IsNaN(rows[0].MeanIm), "real scalar has no imaginary part")

	c := rec.Stat("c")
	assertBits(t, c.Mean().Re[0], rows[2].Mean)
	assertBits(t, c.Mean().Im[0], rows[2].MeanIm)
	assertBits(t, c.Std().Im[0], rows[2].StdIm)
	assertBits(t, c.Sig().Im[0], rows[2].SigIm)

	t0 := rec.Stat("t").Items()[0]
	assertBits(t, t0.Mean().Re[0], rows[3].Mean)
	assertBits(t, 53, rows[3].Sig)
}

func TestWriteRecords_ArrayRoundTripIsBitExact(t *testing.T) {
	s := createTestStore(t)
	sess := createTestSession(t, s)
	ctx := context.Background()
	rec := sampleRecord(t)

	require.NoError(t, s.WriteRecords(ctx, sess.ID, []merge.MergedRecord{rec}))

	got, err := s.ReadArray(ctx, sess.ID, trace.LabelOutputs, "v", 9)
	require.NoError(t, err)
	v := rec.Stat("v")
	assertArrayBits(t, v.Mean(), got.Mean)
	assertArrayBits(t, v.Std(), got.Std)
	assertArrayBits(t, v.Sig(), got.Sig)
	assert.Equal(t, []int{3}, got.Mean.Shape)

	_, err = s.ReadArray(ctx, sess.ID, trace.LabelInputs, "v", 9)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestWriteRecords_ComplexAndMaskedArrays(t *testing.T) {
	s := createTestStore(t)
	sess := createTestSession(t, s)
	ctx := context.Background()

	rec := merge.MergedRecord{
		Position: 0, Time: 1, Module: "m", Function: "f", Label: trace.LabelInputs,
		Stats: []merge.ArgStat{
			{Name: "z", Stat: statOf(t,
				trace.ComplexArray([]int{2}, []float64{1, 2}, []float64{0, 1}),
				trace.ComplexArray([]int{2}, []float64{1, 2.5}, []float64{0.5, 1}))},
			// Element 1 is masked in every sample: NaN summary.
			{Name: "m", Stat: statOf(t,
				trace.MaskedArray([]int{2}, []float64{1, 7}, []bool{false, true}),
				trace.MaskedArray([]int{2}, []float64{1, 8}, []bool{false, true}))},
			{Name: "sp", Stat: statOf(t,
				trace.Sparse([]int{2, 2}, []int{0}, []int{1}, []float64{3}),
				trace.Sparse([]int{2, 2}, []int{0}, []int{1}, []float64{3.5}))},
		},
	}
	require.NoError(t, s.WriteRecords(ctx, sess.ID, []merge.MergedRecord{rec}))

	arrays, err := s.ReadArrays(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, arrays, 3)
	assert.Equal(t, []string{"m", "sp", "z"}, []string{arrays[0].Arg, arrays[1].Arg, arrays[2].Arg})

	assertArrayBits(t, rec.Stat("m").Mean(), arrays[0].Mean)
	assert.True(t, math.IsNaN(arrays[0].Sig.Re[1]))

	assertArrayBits(t, rec.Stat("sp").Std(), arrays[1].Std)
	assert.Equal(t, []int{2, 2}, arrays[1].Std.Shape)

	assertArrayBits(t, rec.Stat("z").Mean(), arrays[2].Mean)
	assertArrayBits(t, rec.Stat("z").Sig(), arrays[2].Sig)
	require.NotNil(t, arrays[2].Mean.Im)

	rows, err := s.ReadRecords(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, KindSparse, rows[2].Kind)
}

func TestWriteRecords_RecordWithoutArgs(t *testing.T) {
	s := createTestStore(t)
	sess := createTestSession(t, s)
	ctx := context.Background()

	rec := merge.MergedRecord{Position: 0, Time: 1, Module: "m", Function: "noop", Label: trace.LabelInputs}
	require.NoError(t, s.WriteRecords(ctx, sess.ID, []merge.MergedRecord{rec}))

	rows, err := s.ReadRecords(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, -1, rows[0].ArgIndex)
	assert.Equal(t, "", rows[0].Arg)
	assert.Equal(t, KindEmpty, rows[0].Kind)
}

func TestWriteRecords_UnknownSession(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteRecords(context.Background(), "missing", []merge.MergedRecord{sampleRecord(t)})
	assert.Error(t, err, "foreign key enforced")
}

func TestWriteRecords_Empty(t *testing.T) {
	s := createTestStore(t)
	assert.NoError(t, s.WriteRecords(context.Background(), "any", nil))
}

func TestWriteRecords_MergedRunsInOrder(t *testing.T) {
	s := createTestStore(t)
	sess := createTestSession(t, s)
	ctx := context.Background()

	var sources []merge.Source
	for r := 0; r < 3; r++ {
		x := 1 + float64(r)*1e-9
		run := testutil.NewRun(int64(100 * r))
		run.Call("main", testutil.A("n", trace.Int(2)), nil, func() {
			run.Call("f", testutil.A("x", trace.Float(x)), testutil.A("y", trace.Float(2*x)), nil)
			run.Call("g", nil, testutil.A("out", trace.Array([]int{2}, []float64{x, 1})), nil)
		})
		sources = append(sources, &testutil.SliceSource{Events: run.Events()})
	}

	m, err := merge.New(sources, merge.WithBatchSize(2))
	require.NoError(t, err)
	defer m.Close()

	for {
		batch, err := m.Next(ctx)
		if len(batch) > 0 {
			require.NoError(t, s.WriteRecords(ctx, sess.ID, batch))
		}
		if err != nil {
			break
		}
	}

	rows, err := s.ReadRecords(ctx, sess.ID)
	require.NoError(t, err)

	var names []string
	for _, r := range rows {
		names = append(names, string(r.Label)+":"+r.Name+":"+r.Arg)
	}
	assert.Equal(t, []string{
		"inputs:app.main:n",
		"inputs:app.f:x",
		"outputs:app.f:y",
		"inputs:app.g:",
		"outputs:app.g:out",
		"outputs:app.main:",
	}, names)

	byName, err := s.ReadRecordsByName(ctx, sess.ID, "app.f")
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	arrays, err := s.ReadArrays(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, arrays, 1)
	assert.Equal(t, "out", arrays[0].Arg)
	assert.Equal(t, 1.0, arrays[0].Mean.Re[1])
	assert.Equal(t, 53.0, arrays[0].Sig.Re[1])
}
