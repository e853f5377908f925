// Package ml holds the dense float32 tensors that flow between the vision
// encoder, the projector and the language model embedding table.
package ml

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pdevine/tensor"
)

var ErrShape = errors.New("ml: invalid shape")

type number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

func mul[T number](s ...T) T {
	p := T(1)
	for _, v := range s {
		p *= v
	}

	return p
}

// FromFloatSlice wraps s in a dense tensor without copying.
func FromFloatSlice(s []float32, shape ...int) (*tensor.Dense, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: no dimensions", ErrShape)
	}

	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("%w: %v", ErrShape, shape)
		}
	}

	if n := mul(shape...); n != len(s) {
		return nil, fmt.Errorf("%w: %v needs %d elements, got %d", ErrShape, shape, n, len(s))
	}

	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(s)), nil
}

// Zeros returns a zero filled float32 tensor.
func Zeros(shape ...int) (*tensor.Dense, error) {
	n := mul(shape...)
	if n < 0 {
		return nil, fmt.Errorf("%w: %v", ErrShape, shape)
	}

	return FromFloatSlice(make([]float32, n), shape...)
}

// Floats returns the backing data of t in row-major order.
func Floats(t tensor.Tensor) []float32 {
	if t == nil {
		return nil
	}

	d, ok := tensor.Materialize(t).(*tensor.Dense)
	if !ok {
		return nil
	}

	f32s, _ := d.Data().([]float32)
	return f32s
}

// Rows returns the size of the leading (sequence) dimension.
func Rows(t *tensor.Dense) int {
	if t == nil {
		return 0
	}

	return t.Shape()[0]
}

// Dim returns the size of the trailing (feature) dimension.
func Dim(t *tensor.Dense) int {
	if t == nil {
		return 0
	}

	shape := t.Shape()
	return shape[len(shape)-1]
}

// Concat joins two dimensional tensors along the sequence axis. Nil inputs are
// skipped; every remaining input must share the same feature dimension.
func Concat(ts ...*tensor.Dense) (*tensor.Dense, error) {
	var parts []tensor.Tensor
	dim := -1
	for _, t := range ts {
		if t == nil {
			continue
		}

		if t.Dims() != 2 {
			return nil, fmt.Errorf("%w: concat needs rank 2, got %v", ErrShape, t.Shape())
		}

		if dim >= 0 && Dim(t) != dim {
			return nil, fmt.Errorf("%w: concat feature size %d != %d", ErrShape, Dim(t), dim)
		}

		dim = Dim(t)
		parts = append(parts, t)
	}

	switch len(parts) {
	case 0:
		return nil, fmt.Errorf("%w: nothing to concat", ErrShape)
	case 1:
		return parts[0].(*tensor.Dense), nil
	}

	out, err := tensor.Concat(0, parts[0], parts[1:]...)
	if err != nil {
		return nil, err
	}

	return tensor.Materialize(out).(*tensor.Dense), nil
}

type DumpOptions struct {
	// Items is the number of elements to print at the beginning and end of each dimension.
	Items int

	// Precision is the number of decimal places to print.
	Precision int
}

func Dump(t *tensor.Dense, opts ...DumpOptions) string {
	if len(opts) < 1 {
		opts = append(opts, DumpOptions{
			Items:     3,
			Precision: 4,
		})
	}

	s := Floats(t)
	if s == nil {
		return "<nil>"
	}

	shape := []int(t.Shape())
	o := opts[0]

	var sb strings.Builder
	var f func([]int, int)
	f = func(dims []int, stride int) {
		prefix := strings.Repeat(" ", len(shape)-len(dims)+1)
		fmt.Fprint(&sb, "[")
		defer func() { fmt.Fprint(&sb, "]") }()
		for i := 0; i < dims[0]; i++ {
			if i >= o.Items && i < dims[0]-o.Items {
				fmt.Fprint(&sb, "..., ")
				// skip to next printable element
				skip := dims[0] - 2*o.Items
				if len(dims) > 1 {
					stride += mul(append(dims[1:], skip)...)
					fmt.Fprint(&sb, strings.Repeat("\n", len(dims)-1), prefix)
				}
				i += skip - 1
			} else if len(dims) > 1 {
				f(dims[1:], stride)
				stride += mul(dims[1:]...)
				if i < dims[0]-1 {
					fmt.Fprint(&sb, ",", strings.Repeat("\n", len(dims)-1), prefix)
				}
			} else {
				fmt.Fprintf(&sb, "%.*f", o.Precision, s[stride+i])
				if i < dims[0]-1 {
					fmt.Fprint(&sb, ", ")
				}
			}
		}
	}
	f(shape, 0)

	return sb.String()
}
