package stats

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/roach88/reprotrace/internal/trace"
)

// Kind identifies the Statistic variant.
type Kind int

const (
	KindEmpty Kind = iota
	KindArray
	KindTuple
)

// String returns the variant name.
func (k Kind) String() string {
	switch k {
	case KindArray:
		return "array"
	case KindTuple:
		return "tuple"
	}
	return "empty"
}

// Array is an elementwise result in row-major order. Im is set only for
// complex statistics. Scalars have an empty Shape and one element.
type Array struct {
	Shape []int
	Re    []float64
	Im    []float64
}

// IsScalar reports whether a has no dimensions.
func (a Array) IsScalar() bool {
	return len(a.Shape) == 0
}

// IsComplex reports whether a carries imaginary parts.
func (a Array) IsComplex() bool {
	return a.Im != nil
}

// Scalar returns the first real element, or NaN when a is empty.
func (a Array) Scalar() float64 {
	if len(a.Re) == 0 {
		return math.NaN()
	}
	return a.Re[0]
}

func nanArray() Array {
	return Array{Re: []float64{math.NaN()}}
}

// Option configures a Statistic.
type Option func(*Statistic)

// WithEstimator selects the significant-bits estimator. The default is
// ClosedForm.
func WithEstimator(e Estimator) Option {
	return func(s *Statistic) {
		if e != nil {
			s.est = e
		}
	}
}

// Statistic summarizes the samples of one value across runs.
// It is immutable; Mean, Std and Sig are computed once on first use.
type Statistic struct {
	kind  Kind
	n     int
	dtype trace.DType
	shape []int
	est   Estimator

	// dense samples, one row per run
	re   [][]float64
	im   [][]float64
	mask [][]bool

	// sparse samples
	sparse []cooSample

	items []*Statistic

	moments func() moments
	sig     func() Array
}

type moments struct {
	mean Array
	std  Array
}

// Empty returns an empty Statistic that remembers its sample count.
func Empty(n int) *Statistic {
	s := &Statistic{kind: KindEmpty, n: n, est: ClosedForm{}}
	s.init()
	return s
}

// FromSamples summarizes values, one per run.
//
// Every sample must pass trace.Value.Validate. The variant is chosen from
// values[0]. Every other sample must have the same kind, element type and
// shape, otherwise an *InconsistentSampleTypeError is returned. Non-numeric
// data produces an Empty statistic.
func FromSamples(values []trace.Value, opts ...Option) (*Statistic, error) {
	s := &Statistic{kind: KindEmpty, n: len(values), est: ClosedForm{}}
	for _, opt := range opts {
		opt(s)
	}
	if len(values) == 0 {
		s.init()
		return s, nil
	}

	for i, v := range values {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}

	want := classify(values[0])
	for i := 1; i < len(values); i++ {
		if got := classify(values[i]); !want.compatible(got) {
			return nil, &InconsistentSampleTypeError{Index: i, Want: want.String(), Got: got.String()}
		}
	}

	switch want.class {
	case classDense:
		s.fillDense(want, values)
	case classSparse:
		s.fillSparse(want, values)
	case classTuple:
		if err := s.fillTuple(values, opts); err != nil {
			return nil, err
		}
	}
	s.init()
	return s, nil
}

// Kind returns the variant.
func (s *Statistic) Kind() Kind { return s.kind }

// Count returns the number of samples, including for Empty statistics.
func (s *Statistic) Count() int { return s.n }

// DType returns the element type of an Array statistic.
func (s *Statistic) DType() trace.DType { return s.dtype }

// Shape returns the per-sample shape of an Array statistic.
func (s *Statistic) Shape() []int { return s.shape }

// IsScalar reports whether s is an Array statistic over scalar samples.
func (s *Statistic) IsScalar() bool { return s.kind == KindArray && len(s.shape) == 0 }

// IsComplex reports whether s summarizes complex samples.
func (s *Statistic) IsComplex() bool { return s.kind == KindArray && s.dtype.IsComplex() }

// IsSparse reports whether s summarizes sparse samples.
func (s *Statistic) IsSparse() bool { return s.kind == KindArray && s.sparse != nil }

// Items returns the per-position statistics of a Tuple.
func (s *Statistic) Items() []*Statistic { return s.items }

// Estimator returns the estimator used by Sig.
func (s *Statistic) Estimator() Estimator { return s.est }

// Mean is the elementwise arithmetic mean over runs. Real and imaginary
// parts of complex samples are averaged independently. Empty and Tuple
// statistics return a NaN scalar.
func (s *Statistic) Mean() Array { return s.moments().mean }

// Std is the elementwise population standard deviation over runs.
func (s *Statistic) Std() Array { return s.moments().std }

// Sig is the elementwise number of significant bits. For complex samples
// the real and imaginary parts are estimated independently and reported as
// Re and Im.
func (s *Statistic) Sig() Array { return s.sig() }

func (s *Statistic) init() {
	s.moments = sync.OnceValue(s.computeMoments)
	s.sig = sync.OnceValue(s.computeSig)
}

func (s *Statistic) fillDense(c sampleClass, values []trace.Value) {
	s.kind = KindArray
	s.dtype = c.dtype
	s.shape = c.shape
	s.re = make([][]float64, len(values))
	if c.dtype.IsComplex() {
		s.im = make([][]float64, len(values))
	}
	masked := false
	for _, v := range values {
		if v.Mask != nil {
			masked = true
			break
		}
	}
	if masked {
		s.mask = make([][]bool, len(values))
	}

	for i, v := range values {
		re, im := denseParts(v)
		s.re[i] = re
		if s.im != nil {
			s.im[i] = im
		}
		if masked {
			if v.Mask != nil {
				s.mask[i] = v.Mask
			} else {
				s.mask[i] = make([]bool, len(re))
			}
		}
	}
}

func (s *Statistic) fillSparse(c sampleClass, values []trace.Value) {
	s.kind = KindArray
	s.dtype = c.dtype
	s.shape = c.shape
	s.sparse = make([]cooSample, len(values))
	for i, v := range values {
		s.sparse[i] = newCOOSample(v)
	}
}

func (s *Statistic) fillTuple(values []trace.Value, opts []Option) error {
	arity := len(values[0].Items)
	s.kind = KindTuple
	s.items = make([]*Statistic, arity)
	column := make([]trace.Value, len(values))
	for pos := 0; pos < arity; pos++ {
		for i, v := range values {
			column[i] = v.Items[pos]
		}
		item, err := FromSamples(column, opts...)
		if err != nil {
			return fmt.Errorf("tuple position %d: %w", pos, err)
		}
		s.items[pos] = item
	}
	return nil
}

// denseParts returns the real and imaginary element slices of a dense or
// list value.
func denseParts(v trace.Value) (re, im []float64) {
	if v.Kind != trace.KindList {
		return v.Data, v.Imag
	}
	re = make([]float64, len(v.Items))
	if v.Items[0].Kind == trace.KindComplex || v.Items[0].DType.IsComplex() {
		im = make([]float64, len(v.Items))
	}
	for i, item := range v.Items {
		re[i] = item.Data[0]
		if im != nil && len(item.Imag) > 0 {
			im[i] = item.Imag[0]
		}
	}
	return re, im
}

func (s *Statistic) computeMoments() moments {
	if s.kind != KindArray {
		return moments{mean: nanArray(), std: nanArray()}
	}
	if s.sparse != nil {
		return s.sparseMoments()
	}

	size := len(s.re[0])
	mean := Array{Shape: s.shape, Re: make([]float64, size)}
	std := Array{Shape: s.shape, Re: make([]float64, size)}
	if s.im != nil {
		mean.Im = make([]float64, size)
		std.Im = make([]float64, size)
	}

	col := make([]float64, 0, s.n)
	for j := 0; j < size; j++ {
		col = s.column(col[:0], s.re, j)
		mean.Re[j], std.Re[j] = meanStd(col)
		if s.im != nil {
			col = s.column(col[:0], s.im, j)
			mean.Im[j], std.Im[j] = meanStd(col)
		}
	}
	return moments{mean: mean, std: std}
}

// column gathers element j of every unmasked sample.
func (s *Statistic) column(dst []float64, rows [][]float64, j int) []float64 {
	for i, row := range rows {
		if s.mask != nil && s.mask[i][j] {
			continue
		}
		dst = append(dst, row[j])
	}
	return dst
}

// meanStd returns the mean and population standard deviation of col.
// Identical samples yield the sample itself and an exact zero.
func meanStd(col []float64) (float64, float64) {
	if len(col) == 0 {
		return math.NaN(), math.NaN()
	}
	if identical(col) {
		return col[0], 0
	}
	return stat.PopMeanStdDev(col, nil)
}

func identical(col []float64) bool {
	for _, x := range col[1:] {
		if x != col[0] {
			return false
		}
	}
	return true
}

func (s *Statistic) computeSig() Array {
	if s.kind != KindArray {
		return nanArray()
	}
	m := s.moments()
	bits := s.dtype.SignificandBits()

	if s.sparse != nil {
		return s.sparseSig(m, bits)
	}

	size := len(m.mean.Re)
	sig := Array{Shape: s.shape, Re: make([]float64, size)}
	if s.im != nil {
		sig.Im = make([]float64, size)
	}

	col := make([]float64, 0, s.n)
	for j := 0; j < size; j++ {
		col = s.column(col[:0], s.re, j)
		sig.Re[j] = s.estimate(col, m.mean.Re[j], m.std.Re[j], bits)
		if s.im != nil {
			col = s.column(col[:0], s.im, j)
			sig.Im[j] = s.estimate(col, m.mean.Im[j], m.std.Im[j], bits)
		}
	}
	return sig
}

func (s *Statistic) estimate(col []float64, mean, std float64, bits int) float64 {
	if len(col) == 0 {
		return math.NaN()
	}
	if _, ok := s.est.(ClosedForm); ok {
		return closedForm(mean, std, bits)
	}
	if std == 0 && !math.IsNaN(mean) {
		return float64(bits)
	}
	return s.est.Estimate(col, mean, bits)
}
