package stats

import (
	"math"

	"github.com/roach88/reprotrace/internal/trace"
)

type coord struct {
	row, col int
}

// cooSample is one sparse sample with duplicate coordinates summed.
type cooSample map[coord]float64

func newCOOSample(v trace.Value) cooSample {
	s := make(cooSample, len(v.Data))
	for i, x := range v.Data {
		s[coord{v.Rows[i], v.Cols[i]}] += x
	}
	return s
}

type cooAccum struct {
	sum, sumsq float64
	count      int
	first      float64
	same       bool
}

// sparseMoments accumulates E[x] and E[x^2] over the stored coordinates of
// every sample and derives the variance as E[x^2] - E[x]^2. Coordinates no
// sample stores are zero with zero deviation.
func (s *Statistic) sparseMoments() moments {
	rows, cols := s.shape[0], s.shape[1]
	mean := Array{Shape: s.shape, Re: make([]float64, rows*cols)}
	std := Array{Shape: s.shape, Re: make([]float64, rows*cols)}

	acc := make(map[coord]*cooAccum)
	for _, sample := range s.sparse {
		for at, x := range sample {
			a, ok := acc[at]
			if !ok {
				a = &cooAccum{first: x, same: true}
				acc[at] = a
			} else if x != a.first {
				a.same = false
			}
			a.sum += x
			a.sumsq += x * x
			a.count++
		}
	}

	n := float64(s.n)
	for at, a := range acc {
		idx := at.row*cols + at.col
		switch {
		case a.same && (a.count == s.n || a.first == 0):
			if a.count == s.n {
				mean.Re[idx] = a.first
			}
		default:
			m := a.sum / n
			v := a.sumsq/n - m*m
			if v < 0 {
				v = 0
			}
			mean.Re[idx] = m
			std.Re[idx] = math.Sqrt(v)
		}
	}
	return moments{mean: mean, std: std}
}

func (s *Statistic) sparseSig(m moments, bits int) Array {
	cols := s.shape[1]
	sig := Array{Shape: s.shape, Re: make([]float64, len(m.mean.Re))}
	for i := range sig.Re {
		sig.Re[i] = float64(bits)
	}

	seen := make(map[coord]struct{})
	col := make([]float64, s.n)
	for _, sample := range s.sparse {
		for at := range sample {
			if _, ok := seen[at]; ok {
				continue
			}
			seen[at] = struct{}{}
			for i, other := range s.sparse {
				col[i] = other[at]
			}
			idx := at.row*cols + at.col
			sig.Re[idx] = s.estimate(col, m.mean.Re[idx], m.std.Re[idx], bits)
		}
	}
	return sig
}
