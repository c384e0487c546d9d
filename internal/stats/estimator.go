package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Method names accepted by NewEstimator.
const (
	MethodClosedForm = "closed-form"
	MethodCNH        = "cnh"
	MethodGeneral    = "general"
)

// Default estimator parameters.
const (
	DefaultProbability = 0.95
	DefaultConfidence  = 0.95
)

// Estimator computes the significant bits of one element.
//
// samples holds the element's value in every run (masked samples already
// removed), reference is the value they are compared against (the mean) and
// bits is the widest significand the element type can hold. Elements whose
// samples all agree with the reference must report bits.
type Estimator interface {
	Name() string
	Estimate(samples []float64, reference float64, bits int) float64
}

// SampleBound is implemented by estimators whose result is only guaranteed
// once enough runs are summarized.
type SampleBound interface {
	RequiredSamples() int
}

// Methods lists the registered estimator names.
func Methods() []string {
	return []string{MethodCNH, MethodGeneral, MethodClosedForm}
}

// NewEstimator returns the estimator registered under method.
// probability and confidence only apply to CNH and General.
func NewEstimator(method string, probability, confidence float64) (Estimator, error) {
	switch method {
	case MethodClosedForm, "":
		return ClosedForm{}, nil
	case MethodCNH:
		return CNH{Probability: probability, Confidence: confidence}, nil
	case MethodGeneral:
		return General{Probability: probability, Confidence: confidence}, nil
	}
	return nil, &UnknownMethodError{Method: method}
}

// ClosedForm estimates -log2(|std/mean|) from the population standard
// deviation of the samples around the reference.
//
//   - std == 0: bits
//   - mean == 0, std != 0: -log2(|std|)
type ClosedForm struct{}

// Name implements Estimator.
func (ClosedForm) Name() string { return MethodClosedForm }

// Estimate implements Estimator.
func (ClosedForm) Estimate(samples []float64, reference float64, bits int) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	std := spread(samples, reference)
	return closedForm(reference, std, bits)
}

func closedForm(mean, std float64, bits int) float64 {
	switch {
	case math.IsNaN(mean) || math.IsNaN(std):
		return math.NaN()
	case std == 0:
		return float64(bits)
	case mean == 0:
		return -math.Log2(math.Abs(std))
	}
	return -math.Log2(math.Abs(std / mean))
}

// spread is the population standard deviation of samples around reference.
func spread(samples []float64, reference float64) float64 {
	var ss float64
	for _, x := range samples {
		if x == reference {
			continue
		}
		d := x - reference
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(samples)))
}

// CNH is the Centered Normal Hypothesis estimator. It assumes the relative
// error of the samples is normally distributed around zero and reports the
// bits that hold with the given probability, at the given confidence level.
type CNH struct {
	Probability float64
	Confidence  float64
}

// Name implements Estimator.
func (CNH) Name() string { return MethodCNH }

// Estimate implements Estimator.
func (c CNH) Estimate(samples []float64, reference float64, bits int) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	z, ok := relativeError(samples, reference)
	if !ok {
		return math.NaN()
	}
	if allZero(z) {
		return float64(bits)
	}
	n := len(z)
	if n < 2 {
		return float64(bits)
	}

	std := stat.StdDev(z, nil)
	if std == 0 {
		return float64(bits)
	}

	chi := distuv.ChiSquared{K: float64(n - 1)}.Quantile((1 - c.Confidence) / 2)
	inorm := distuv.UnitNormal.Quantile((c.Probability + 1) / 2)
	delta := 0.5*math.Log2(float64(n-1)/chi) + math.Log2(inorm)

	return -math.Log2(std) - delta
}

// General makes no assumption on the error distribution. It reports the
// largest k such that every sample's relative error is within 2^-k.
//
// The bound holds with Probability at the given Confidence only when at
// least RequiredSamples runs are merged.
type General struct {
	Probability float64
	Confidence  float64
}

// Name implements Estimator.
func (General) Name() string { return MethodGeneral }

// Estimate implements Estimator.
func (g General) Estimate(samples []float64, reference float64, bits int) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	z, ok := relativeError(samples, reference)
	if !ok {
		return math.NaN()
	}

	var worst float64
	for _, e := range z {
		if a := math.Abs(e); a > worst {
			worst = a
		}
	}
	if worst == 0 {
		return float64(bits)
	}

	for k := bits; k > 0; k-- {
		if worst <= math.Ldexp(1, -k) {
			return float64(k)
		}
	}
	return 0
}

// RequiredSamples implements SampleBound: the smallest n with
// Probability^n <= 1-Confidence. It is 0 when either parameter lies outside
// (0, 1).
func (g General) RequiredSamples() int {
	if g.Probability <= 0 || g.Probability >= 1 || g.Confidence <= 0 || g.Confidence >= 1 {
		return 0
	}
	return int(math.Ceil(math.Log(1-g.Confidence) / math.Log(g.Probability)))
}

// relativeError returns x/ref - 1 for each sample, or x - ref when the
// reference is zero. ok is false when the reference is not finite.
func relativeError(samples []float64, reference float64) ([]float64, bool) {
	if math.IsNaN(reference) || math.IsInf(reference, 0) {
		return nil, false
	}
	z := make([]float64, len(samples))
	for i, x := range samples {
		switch {
		case x == reference:
			z[i] = 0
		case reference == 0:
			z[i] = x
		default:
			z[i] = x/reference - 1
		}
	}
	return z, true
}

func allZero(xs []float64) bool {
	for _, x := range xs {
		if x != 0 {
			return false
		}
	}
	return true
}
