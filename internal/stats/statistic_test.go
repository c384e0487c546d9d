package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reprotrace/internal/trace"
)

func floats(xs ...float64) []trace.Value {
	vals := make([]trace.Value, len(xs))
	for i, x := range xs {
		vals[i] = trace.Float(x)
	}
	return vals
}

func TestFromSamples_ConstantSamplesHaveMaxBits(t *testing.T) {
	for _, method := range Methods() {
		t.Run(method, func(t *testing.T) {
			est, err := NewEstimator(method, DefaultProbability, DefaultConfidence)
			require.NoError(t, err)

			for _, n := range []int{1, 2, 5} {
				vals := make([]trace.Value, n)
				for i := range vals {
					vals[i] = trace.Float(0.1)
				}
				s, err := FromSamples(vals, WithEstimator(est))
				require.NoError(t, err)

				assert.Equal(t, 0.1, s.Mean().Scalar())
				assert.Equal(t, 0.0, s.Std().Scalar())
				assert.Equal(t, 53.0, s.Sig().Scalar())
			}
		})
	}
}

func TestFromSamples_ConstantZeroHasMaxBits(t *testing.T) {
	s, err := FromSamples(floats(0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Mean().Scalar())
	assert.Equal(t, 0.0, s.Std().Scalar())
	assert.Equal(t, 53.0, s.Sig().Scalar())
}

func TestFromSamples_IntegerWidth(t *testing.T) {
	vals := []trace.Value{
		{Kind: trace.KindScalar, DType: trace.Int32, Data: trace.Floats{7}},
		{Kind: trace.KindScalar, DType: trace.Int32, Data: trace.Floats{7}},
	}
	s, err := FromSamples(vals)
	require.NoError(t, err)
	assert.Equal(t, 32.0, s.Sig().Scalar())

	f32 := []trace.Value{trace.Float32Value(1.5), trace.Float32Value(1.5)}
	s, err = FromSamples(f32)
	require.NoError(t, err)
	assert.Equal(t, 24.0, s.Sig().Scalar())
}

func TestFromSamples_SingleSample(t *testing.T) {
	s, err := FromSamples(floats(3.25))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Count())
	assert.Equal(t, 3.25, s.Mean().Scalar())
	assert.Equal(t, 0.0, s.Std().Scalar())
}

func TestFromSamples_PopulationStd(t *testing.T) {
	s, err := FromSamples(floats(1, 2, 3))
	require.NoError(t, err)

	std := math.Sqrt(2.0 / 3.0)
	assert.InDelta(t, 2.0, s.Mean().Scalar(), 1e-15)
	assert.InDelta(t, std, s.Std().Scalar(), 1e-15)
	assert.InDelta(t, -math.Log2(std/2), s.Sig().Scalar(), 1e-12)
}

func TestFromSamples_ZeroMeanUsesAbsoluteStd(t *testing.T) {
	s, err := FromSamples(floats(-4, 4))
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Mean().Scalar())
	assert.Equal(t, 4.0, s.Std().Scalar())
	assert.Equal(t, -2.0, s.Sig().Scalar())
}

func TestFromSamples_Complex(t *testing.T) {
	s, err := FromSamples([]trace.Value{trace.Complex(1 + 2i), trace.Complex(3 + 2i)})
	require.NoError(t, err)
	require.True(t, s.IsComplex())

	mean, std, sig := s.Mean(), s.Std(), s.Sig()
	assert.Equal(t, []float64{2}, mean.Re)
	assert.Equal(t, []float64{2}, mean.Im)
	assert.Equal(t, []float64{1}, std.Re)
	assert.Equal(t, []float64{0}, std.Im)
	assert.Equal(t, []float64{1}, sig.Re)
	assert.Equal(t, []float64{53}, sig.Im)
}

func TestFromSamples_DenseArray(t *testing.T) {
	vals := []trace.Value{
		trace.Array([]int{2, 2}, []float64{1, 2, 3, 4}),
		trace.Array([]int{2, 2}, []float64{1, 4, 3, 8}),
	}
	s, err := FromSamples(vals)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2}, s.Mean().Shape)
	assert.Equal(t, []float64{1, 3, 3, 6}, s.Mean().Re)
	assert.Equal(t, []float64{0, 1, 0, 2}, s.Std().Re)
	assert.Equal(t, []float64{53, -math.Log2(1.0 / 3.0), 53, -math.Log2(2.0 / 6.0)}, s.Sig().Re)
}

func TestFromSamples_MaskedArray(t *testing.T) {
	vals := []trace.Value{
		trace.MaskedArray([]int{3}, []float64{1, 5, 9}, []bool{false, true, true}),
		trace.MaskedArray([]int{3}, []float64{3, 7, 9}, []bool{false, false, true}),
	}
	s, err := FromSamples(vals)
	require.NoError(t, err)

	mean := s.Mean().Re
	assert.Equal(t, 2.0, mean[0])
	assert.Equal(t, 7.0, mean[1])
	assert.True(t, math.IsNaN(mean[2]), "element masked in every sample")
	assert.Equal(t, 0.0, s.Std().Re[1])
	assert.True(t, math.IsNaN(s.Sig().Re[2]))
}

func TestFromSamples_MaskedAndUnmaskedMix(t *testing.T) {
	vals := []trace.Value{
		trace.Array([]int{2}, []float64{1, 2}),
		trace.MaskedArray([]int{2}, []float64{100, 2}, []bool{true, false}),
	}
	s, err := FromSamples(vals)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, s.Mean().Re)
}

func TestFromSamples_Sparse(t *testing.T) {
	vals := []trace.Value{
		trace.Sparse([]int{2, 2}, []int{0}, []int{0}, []float64{1}),
		trace.Sparse([]int{2, 2}, []int{0, 1}, []int{0, 1}, []float64{3, 2}),
	}
	s, err := FromSamples(vals)
	require.NoError(t, err)
	require.True(t, s.IsSparse())

	assert.Equal(t, []float64{2, 0, 0, 1}, s.Mean().Re)
	assert.Equal(t, []float64{1, 0, 0, 1}, s.Std().Re)

	sig := s.Sig().Re
	assert.Equal(t, 1.0, sig[0])
	assert.Equal(t, 53.0, sig[1])
	assert.Equal(t, 53.0, sig[2])
	assert.Equal(t, 0.0, sig[3])
}

func TestFromSamples_SparseConstant(t *testing.T) {
	vals := []trace.Value{
		trace.Sparse([]int{1, 3}, []int{0}, []int{2}, []float64{0.1}),
		trace.Sparse([]int{1, 3}, []int{0}, []int{2}, []float64{0.1}),
		trace.Sparse([]int{1, 3}, []int{0}, []int{2}, []float64{0.1}),
	}
	s, err := FromSamples(vals)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0.1}, s.Mean().Re)
	assert.Equal(t, []float64{0, 0, 0}, s.Std().Re)
	assert.Equal(t, []float64{53, 53, 53}, s.Sig().Re)
}

func TestFromSamples_HomogeneousListIsArray(t *testing.T) {
	vals := []trace.Value{
		trace.List(trace.Float(1), trace.Float(2)),
		trace.List(trace.Float(3), trace.Float(2)),
	}
	s, err := FromSamples(vals)
	require.NoError(t, err)
	assert.Equal(t, KindArray, s.Kind())
	assert.Equal(t, []int{2}, s.Shape())
	assert.Equal(t, []float64{2, 2}, s.Mean().Re)
}

func TestFromSamples_Tuple(t *testing.T) {
	vals := []trace.Value{
		trace.Tuple(trace.Float(1), trace.String("a"), trace.Array([]int{2}, []float64{1, 1})),
		trace.Tuple(trace.Float(3), trace.String("b"), trace.Array([]int{2}, []float64{1, 3})),
	}
	s, err := FromSamples(vals)
	require.NoError(t, err)
	require.Equal(t, KindTuple, s.Kind())
	require.Len(t, s.Items(), 3)

	assert.Equal(t, 2.0, s.Items()[0].Mean().Scalar())
	assert.Equal(t, KindEmpty, s.Items()[1].Kind())
	assert.Equal(t, []float64{1, 2}, s.Items()[2].Mean().Re)
	assert.True(t, math.IsNaN(s.Mean().Scalar()))
}

func TestFromSamples_NonNumericIsEmpty(t *testing.T) {
	for name, v := range map[string]trace.Value{
		"string": trace.String("x"),
		"bool":   trace.Bool(true),
		"null":   trace.Null(),
	} {
		t.Run(name, func(t *testing.T) {
			s, err := FromSamples([]trace.Value{v, v, v})
			require.NoError(t, err)
			assert.Equal(t, KindEmpty, s.Kind())
			assert.Equal(t, 3, s.Count())
			assert.True(t, math.IsNaN(s.Mean().Scalar()))
			assert.True(t, math.IsNaN(s.Std().Scalar()))
			assert.True(t, math.IsNaN(s.Sig().Scalar()))
		})
	}
}

func TestFromSamples_NoSamples(t *testing.T) {
	s, err := FromSamples(nil)
	require.NoError(t, err)
	assert.Equal(t, KindEmpty, s.Kind())
	assert.Equal(t, 0, s.Count())
}

func TestFromSamples_InconsistentTypes(t *testing.T) {
	cases := map[string][]trace.Value{
		"kind":  {trace.Float(1), trace.String("1")},
		"dtype": {trace.Float(1), trace.Int(1)},
		"shape": {trace.Array([]int{2}, []float64{1, 2}), trace.Array([]int{3}, []float64{1, 2, 3})},
		"arity": {trace.Tuple(trace.Float(1), trace.Float(2)), trace.Tuple(trace.Float(1))},
	}
	for name, vals := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromSamples(vals)
			require.Error(t, err)
			assert.True(t, IsInconsistentSampleTypeError(err))

			var ie *InconsistentSampleTypeError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, 1, ie.Index)
		})
	}
}

func TestFromSamples_InconsistentTupleItem(t *testing.T) {
	vals := []trace.Value{
		trace.Tuple(trace.Float(1), trace.Float(2)),
		trace.Tuple(trace.Float(1), trace.String("2")),
	}
	_, err := FromSamples(vals)
	require.Error(t, err)
	assert.True(t, IsInconsistentSampleTypeError(err))
	assert.Contains(t, err.Error(), "tuple position 1")
}

func TestFromSamples_RejectsInvalidSample(t *testing.T) {
	realOnly := trace.Value{Kind: trace.KindScalar, DType: trace.Complex128, Data: trace.Floats{1}}
	_, err := FromSamples([]trace.Value{realOnly, realOnly})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample 0")
	assert.False(t, IsInconsistentSampleTypeError(err))

	_, err = FromSamples([]trace.Value{trace.Float(1), trace.Array([]int{3}, []float64{1})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample 1")
}

func TestEmpty(t *testing.T) {
	s := Empty(4)
	assert.Equal(t, KindEmpty, s.Kind())
	assert.Equal(t, 4, s.Count())
	assert.True(t, math.IsNaN(s.Sig().Scalar()))
}
