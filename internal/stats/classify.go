package stats

import (
	"fmt"
	"slices"

	"github.com/roach88/reprotrace/internal/trace"
)

type sampleKind int

const (
	classOther sampleKind = iota
	classDense
	classSparse
	classTuple
)

// sampleClass is what FromSamples needs to know about one sample to decide
// the variant and check the others against it.
type sampleClass struct {
	class sampleKind
	kind  trace.Kind
	dtype trace.DType
	shape []int
	arity int
}

func classify(v trace.Value) sampleClass {
	c := sampleClass{kind: v.Kind}
	switch v.Kind {
	case trace.KindScalar:
		c.class = classDense
		c.dtype = dtypeOr(v.DType, trace.Float64)
	case trace.KindComplex:
		c.class = classDense
		c.dtype = dtypeOr(v.DType, trace.Complex128)
	case trace.KindArray:
		c.class = classDense
		c.dtype = dtypeOr(v.DType, trace.Float64)
		c.shape = v.Shape
	case trace.KindSparse:
		c.dtype = dtypeOr(v.DType, trace.Float64)
		c.shape = v.Shape
		if !c.dtype.IsComplex() {
			c.class = classSparse
		}
	case trace.KindList:
		if dtype, ok := homogeneous(v.Items); ok {
			c.class = classDense
			c.dtype = dtype
			c.shape = []int{len(v.Items)}
			return c
		}
		if len(v.Items) > 0 {
			c.class = classTuple
			c.arity = len(v.Items)
		}
	case trace.KindTuple:
		if len(v.Items) > 0 {
			c.class = classTuple
			c.arity = len(v.Items)
		}
	}
	return c
}

// homogeneous reports whether items are numeric scalars sharing one dtype,
// in which case the list converts to a 1-D array.
func homogeneous(items []trace.Value) (trace.DType, bool) {
	if len(items) == 0 {
		return "", false
	}
	first := items[0]
	if first.Kind != trace.KindScalar && first.Kind != trace.KindComplex {
		return "", false
	}
	for _, item := range items[1:] {
		if item.Kind != first.Kind || item.DType != first.DType {
			return "", false
		}
	}
	if first.Kind == trace.KindComplex {
		return dtypeOr(first.DType, trace.Complex128), true
	}
	return dtypeOr(first.DType, trace.Float64), true
}

func dtypeOr(d, fallback trace.DType) trace.DType {
	if d == "" {
		return fallback
	}
	return d
}

func (c sampleClass) compatible(o sampleClass) bool {
	if c.class != o.class {
		return false
	}
	switch c.class {
	case classOther:
		return c.kind == o.kind
	case classTuple:
		return c.arity == o.arity
	}
	return c.dtype == o.dtype && slices.Equal(c.shape, o.shape)
}

func (c sampleClass) String() string {
	switch c.class {
	case classDense:
		if len(c.shape) == 0 {
			return fmt.Sprintf("%s scalar", c.dtype)
		}
		return fmt.Sprintf("%s array %v", c.dtype, c.shape)
	case classSparse:
		return fmt.Sprintf("%s sparse %v", c.dtype, c.shape)
	case classTuple:
		return fmt.Sprintf("tuple of %d", c.arity)
	}
	return string(c.kind)
}
