package trace

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind string

const (
	KindScalar  Kind = "scalar"
	KindComplex Kind = "complex"
	KindArray   Kind = "array"
	KindSparse  Kind = "sparse"
	KindList    Kind = "list"
	KindTuple   Kind = "tuple"
	KindString  Kind = "string"
	KindBool    Kind = "bool"
	KindNull    Kind = "null"
)

// DType is the element type of a numeric value.
type DType string

const (
	Float64    DType = "float64"
	Float32    DType = "float32"
	Int64      DType = "int64"
	Int32      DType = "int32"
	Int16      DType = "int16"
	Int8       DType = "int8"
	Uint64     DType = "uint64"
	Uint32     DType = "uint32"
	Uint16     DType = "uint16"
	Uint8      DType = "uint8"
	Complex128 DType = "complex128"
	Complex64  DType = "complex64"
)

// IsComplex reports whether d stores a real and an imaginary part.
func (d DType) IsComplex() bool {
	return d == Complex128 || d == Complex64
}

// IsInteger reports whether d is a signed or unsigned integer type.
func (d DType) IsInteger() bool {
	switch d {
	case Int64, Int32, Int16, Int8, Uint64, Uint32, Uint16, Uint8:
		return true
	}
	return false
}

// Known reports whether d is one of the supported element types.
func (d DType) Known() bool {
	return d.IsInteger() || d.IsComplex() || d == Float64 || d == Float32
}

// SignificandBits is the number of bits a value of this type can hold
// exactly: the significand width (with the implicit bit) for floats and the
// bit width for integers. Complex types report the width of one part.
func (d DType) SignificandBits() int {
	switch d {
	case Float64, Complex128:
		return 53
	case Float32, Complex64:
		return 24
	case Int64, Uint64:
		return 64
	case Int32, Uint32:
		return 32
	case Int16, Uint16:
		return 16
	case Int8, Uint8:
		return 8
	}
	return 53
}

// Value is a traced argument value.
//
// Numeric data is always carried as float64; integer dtypes are exact up to
// 2^53. Scalars have an empty Shape and one element in Data.
type Value struct {
	Kind  Kind    `json:"kind"`
	DType DType   `json:"dtype,omitempty"`
	Shape []int   `json:"shape,omitempty"`
	Data  Floats  `json:"data,omitempty"`
	Imag  Floats  `json:"imag,omitempty"`
	Mask  []bool  `json:"mask,omitempty"`
	Rows  []int   `json:"rows,omitempty"`
	Cols  []int   `json:"cols,omitempty"`
	Items []Value `json:"items,omitempty"`
	Str   string  `json:"str,omitempty"`
	Bool  bool    `json:"bool,omitempty"`
}

// Float returns a float64 scalar.
func Float(x float64) Value {
	return Value{Kind: KindScalar, DType: Float64, Data: Floats{x}}
}

// Float32Value returns a float32 scalar.
func Float32Value(x float32) Value {
	return Value{Kind: KindScalar, DType: Float32, Data: Floats{float64(x)}}
}

// Int returns an int64 scalar.
func Int(n int64) Value {
	return Value{Kind: KindScalar, DType: Int64, Data: Floats{float64(n)}}
}

// Complex returns a complex128 scalar.
func Complex(c complex128) Value {
	return Value{Kind: KindComplex, DType: Complex128, Data: Floats{real(c)}, Imag: Floats{imag(c)}}
}

// Array returns a dense float64 array. data is in row-major order.
func Array(shape []int, data []float64) Value {
	return Value{Kind: KindArray, DType: Float64, Shape: shape, Data: data}
}

// TypedArray returns a dense array with an explicit element type.
func TypedArray(dtype DType, shape []int, data []float64) Value {
	return Value{Kind: KindArray, DType: dtype, Shape: shape, Data: data}
}

// ComplexArray returns a dense complex128 array split into parts.
func ComplexArray(shape []int, re, im []float64) Value {
	return Value{Kind: KindArray, DType: Complex128, Shape: shape, Data: re, Imag: im}
}

// MaskedArray returns a float64 array where mask[i] hides element i.
func MaskedArray(shape []int, data []float64, mask []bool) Value {
	return Value{Kind: KindArray, DType: Float64, Shape: shape, Data: data, Mask: mask}
}

// Sparse returns a 2-D float64 matrix in coordinate form.
func Sparse(shape []int, rows, cols []int, vals []float64) Value {
	return Value{Kind: KindSparse, DType: Float64, Shape: shape, Rows: rows, Cols: cols, Data: vals}
}

// List returns a sequence value.
func List(items ...Value) Value {
	return Value{Kind: KindList, Items: items}
}

// Tuple returns a fixed-arity heterogeneous value.
func Tuple(items ...Value) Value {
	return Value{Kind: KindTuple, Items: items}
}

// String returns an opaque string value.
func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	return Value{Kind: KindBool, Bool: b}
}

// Null returns the null value.
func Null() Value {
	return Value{Kind: KindNull}
}

// Size returns the number of elements described by Shape.
func (v Value) Size() int {
	n := 1
	for _, d := range v.Shape {
		n *= d
	}
	return n
}

// Validate checks that the payload is consistent with Kind, DType and Shape.
// Numeric kinds may omit DType; a DType that is present must be Known.
func (v Value) Validate() error {
	switch v.Kind {
	case KindScalar, KindComplex, KindArray, KindSparse:
		if v.DType != "" && !v.DType.Known() {
			return fmt.Errorf("%s value has unknown dtype %q", v.Kind, v.DType)
		}
	}

	switch v.Kind {
	case KindScalar:
		if v.DType.IsComplex() {
			return fmt.Errorf("scalar value cannot have complex dtype %q", v.DType)
		}
		if len(v.Data) != 1 {
			return fmt.Errorf("scalar must carry one element, got %d", len(v.Data))
		}
	case KindComplex:
		if v.DType != "" && !v.DType.IsComplex() {
			return fmt.Errorf("complex value cannot have real dtype %q", v.DType)
		}
		if len(v.Data) != 1 || len(v.Imag) != 1 {
			return fmt.Errorf("complex scalar must carry one real and one imaginary part")
		}
	case KindArray:
		n := v.Size()
		if len(v.Data) != n {
			return fmt.Errorf("array of shape %v needs %d elements, got %d", v.Shape, n, len(v.Data))
		}
		if v.DType.IsComplex() && len(v.Imag) != n {
			return fmt.Errorf("complex array of shape %v needs %d imaginary parts, got %d", v.Shape, n, len(v.Imag))
		}
		if v.Mask != nil && len(v.Mask) != n {
			return fmt.Errorf("mask of shape %v needs %d entries, got %d", v.Shape, n, len(v.Mask))
		}
	case KindSparse:
		if len(v.Shape) != 2 {
			return fmt.Errorf("sparse value must be 2-D, got shape %v", v.Shape)
		}
		if len(v.Rows) != len(v.Data) || len(v.Cols) != len(v.Data) {
			return fmt.Errorf("sparse coordinates and values differ in length")
		}
		for i := range v.Data {
			if v.Rows[i] < 0 || v.Rows[i] >= v.Shape[0] || v.Cols[i] < 0 || v.Cols[i] >= v.Shape[1] {
				return fmt.Errorf("sparse coordinate (%d,%d) outside shape %v", v.Rows[i], v.Cols[i], v.Shape)
			}
		}
	case KindList, KindTuple:
		for i, item := range v.Items {
			if err := item.Validate(); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
	case KindString, KindBool, KindNull:
	default:
		return fmt.Errorf("unknown value kind %q", v.Kind)
	}
	return nil
}

// Floats is a float64 slice whose JSON form tolerates NaN and infinities.
type Floats []float64

// MarshalJSON writes finite values as numbers and the rest as strings.
func (f Floats) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, len(f)*8+2)
	buf = append(buf, '[')
	for i, x := range f {
		if i > 0 {
			buf = append(buf, ',')
		}
		switch {
		case math.IsNaN(x):
			buf = append(buf, `"NaN"`...)
		case math.IsInf(x, 1):
			buf = append(buf, `"Inf"`...)
		case math.IsInf(x, -1):
			buf = append(buf, `"-Inf"`...)
		default:
			buf = strconv.AppendFloat(buf, x, 'g', -1, 64)
		}
	}
	buf = append(buf, ']')
	return buf, nil
}

// UnmarshalJSON accepts numbers and the strings written by MarshalJSON.
func (f *Floats) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Floats, len(raw))
	for i, r := range raw {
		if len(r) > 0 && r[0] == '"' {
			var s string
			if err := json.Unmarshal(r, &s); err != nil {
				return err
			}
			switch s {
			case "NaN":
				out[i] = math.NaN()
			case "Inf", "+Inf":
				out[i] = math.Inf(1)
			case "-Inf":
				out[i] = math.Inf(-1)
			default:
				return fmt.Errorf("invalid float literal %q", s)
			}
			continue
		}
		x, err := strconv.ParseFloat(string(r), 64)
		if err != nil {
			return fmt.Errorf("invalid float %s: %w", r, err)
		}
		out[i] = x
	}
	*f = out
	return nil
}
