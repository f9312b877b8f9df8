package layer

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Flatten reshapes {Steps, Channels} samples into flat feature vectors.
// This is useful for connecting convolutional layers to dense layers. The
// channels-last layout is already flat, so data passes through untouched.
type Flatten struct {
	in  Shape
	out Shape
}

// NewFlatten creates a new flatten layer.
func NewFlatten() *Flatten {
	return &Flatten{}
}

func (f *Flatten) Build(in Shape, _ *rand.Rand) error {
	if in.Size() <= 0 {
		return fmt.Errorf("flatten: empty input %v: %w", in, ErrShape)
	}
	f.in = in
	f.out = Shape{Steps: 1, Channels: in.Size()}
	return nil
}

// Forward performs a forward pass, flattening the input.
func (f *Flatten) Forward(x *mat.Dense, training bool) *mat.Dense {
	checkWidth("Flatten", x, f.in.Size())
	return x
}

// Backward passes the gradient through unchanged.
func (f *Flatten) Backward(grad *mat.Dense) *mat.Dense {
	return grad
}

func (f *Flatten) Params() []float64    { return nil }
func (f *Flatten) Gradients() []float64 { return nil }
func (f *Flatten) InShape() Shape       { return f.in }
func (f *Flatten) OutShape() Shape      { return f.out }
func (f *Flatten) Name() string         { return "flatten" }
