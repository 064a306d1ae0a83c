// Package tensor holds the minimal integer and float tensors exchanged
// between the token pipeline and the model. Storage is flat and row-major.
package tensor

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is wrapped by every ShapeError.
var ErrShapeMismatch = errors.New("shape mismatch")

// ShapeError reports tensors whose dimensions do not line up.
type ShapeError struct {
	Op   string
	Want Shape
	Got  Shape
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: shape mismatch: want %v, got %v", e.Op, e.Want, e.Got)
}

func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the shape.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

func (s Shape) NDim() int { return len(s) }

// Equal checks if two shapes are identical.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

func (s Shape) Clone() Shape {
	c := make(Shape, len(s))
	copy(c, s)
	return c
}

func (s Shape) String() string {
	return fmt.Sprintf("%v", []int(s))
}

// strides computes row-major element strides.
func (s Shape) strides() []int {
	st := make([]int, len(s))
	acc := 1
	for i := len(s) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= s[i]
	}
	return st
}

// IntTensor is a rank-2 (rows x cols) integer tensor, used for token batches.
type IntTensor struct {
	shape Shape
	data  []int
}

// NewIntTensor copies rectangular rows into a (len(rows), len(rows[0])) tensor.
// Ragged input is a ShapeError.
func NewIntTensor(rows [][]int) (*IntTensor, error) {
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	data := make([]int, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, &ShapeError{
				Op:   fmt.Sprintf("NewIntTensor row %d", i),
				Want: Shape{cols},
				Got:  Shape{len(r)},
			}
		}
		data = append(data, r...)
	}
	return &IntTensor{shape: Shape{len(rows), cols}, data: data}, nil
}

func (t *IntTensor) Shape() Shape { return t.shape.Clone() }

func (t *IntTensor) At(i, j int) int { return t.data[i*t.shape[1]+j] }

// Row returns a view of row i. Callers must not modify it.
func (t *IntTensor) Row(i int) []int {
	c := t.shape[1]
	return t.data[i*c : (i+1)*c]
}

// NotEqual returns a 0/1 float tensor of the same shape, 1 where the element != v.
func (t *IntTensor) NotEqual(v int) *FloatTensor {
	out := Zeros(t.shape...)
	for i, x := range t.data {
		if x != v {
			out.data[i] = 1
		}
	}
	return out
}

// FloatTensor is a dense rank-N float64 tensor.
type FloatTensor struct {
	shape   Shape
	strides []int
	data    []float64
}

// Zeros allocates a tensor of the given shape.
func Zeros(shape ...int) *FloatTensor {
	s := Shape(shape).Clone()
	for _, d := range s {
		if d < 0 {
			panic(fmt.Sprintf("tensor.Zeros: negative dimension in %v", s))
		}
	}
	return &FloatTensor{shape: s, strides: s.strides(), data: make([]float64, s.NumElements())}
}

// FromData wraps data (not copied) with the given shape.
func FromData(data []float64, shape ...int) (*FloatTensor, error) {
	s := Shape(shape).Clone()
	if s.NumElements() != len(data) {
		return nil, &ShapeError{Op: "FromData", Want: s, Got: Shape{len(data)}}
	}
	return &FloatTensor{shape: s, strides: s.strides(), data: data}, nil
}

// FromBoolRows builds a rank-2 0/1 tensor from rectangular boolean rows.
func FromBoolRows(rows [][]bool) (*FloatTensor, error) {
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	data := make([]float64, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, &ShapeError{Op: fmt.Sprintf("FromBoolRows row %d", i), Want: Shape{cols}, Got: Shape{len(r)}}
		}
		for j, b := range r {
			if b {
				data[i*cols+j] = 1
			}
		}
	}
	return FromData(data, len(rows), cols)
}

func (t *FloatTensor) Shape() Shape { return t.shape.Clone() }

func (t *FloatTensor) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: %d indices for rank-%d tensor", len(idx), len(t.shape)))
	}
	off := 0
	for i, x := range idx {
		if x < 0 || x >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.shape))
		}
		off += x * t.strides[i]
	}
	return off
}

func (t *FloatTensor) At(idx ...int) float64 { return t.data[t.offset(idx)] }

func (t *FloatTensor) Set(v float64, idx ...int) { t.data[t.offset(idx)] = v }

// Data exposes the flat row-major storage.
func (t *FloatTensor) Data() []float64 { return t.data }

// Slice returns the contiguous sub-slice addressed by a prefix of indices,
// e.g. Slice(b, l) of a (B, L, V) tensor is the V logits at (b, l).
func (t *FloatTensor) Slice(prefix ...int) []float64 {
	if len(prefix) > len(t.shape) {
		panic("tensor: slice prefix longer than rank")
	}
	off := 0
	for i, x := range prefix {
		if x < 0 || x >= t.shape[i] {
			panic(fmt.Sprintf("tensor: slice prefix %v out of range for shape %v", prefix, t.shape))
		}
		off += x * t.strides[i]
	}
	n := 1
	for _, d := range t.shape[len(prefix):] {
		n *= d
	}
	return t.data[off : off+n]
}
