package layer

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dropout implements dropout regularization.
// During training, randomly sets inputs to 0 with probability rate and
// scales the survivors by 1/(1-rate). During inference, passes inputs
// through unchanged.
type Dropout struct {
	rate float64
	in   Shape
	rng  *rand.Rand

	// Stores dropout mask (0 or scale) for backward pass
	mask *mat.Dense
}

// NewDropout creates a new dropout layer.
// rate is the probability of dropping a unit.
func NewDropout(rate float64) *Dropout {
	return &Dropout{rate: rate}
}

// Build keeps the shape and the mask source.
func (d *Dropout) Build(in Shape, rng *rand.Rand) error {
	if d.rate < 0 || d.rate >= 1 {
		return fmt.Errorf("dropout: rate %v outside [0, 1): %w", d.rate, ErrShape)
	}
	d.in = in
	d.rng = rng
	return nil
}

// Forward performs a forward pass through the dropout layer.
func (d *Dropout) Forward(x *mat.Dense, training bool) *mat.Dense {
	rows := checkWidth("Dropout", x, d.in.Size())
	if !training || d.rate == 0 {
		d.mask = nil
		return mat.DenseCopyOf(x)
	}

	scale := 1 / (1 - d.rate)
	mask := mat.NewDense(rows, d.in.Size(), nil)
	maskData := mask.RawMatrix().Data
	for i := range maskData {
		if d.rng.Float64() >= d.rate {
			maskData[i] = scale
		}
	}

	out := mat.NewDense(rows, d.in.Size(), nil)
	out.MulElem(x, mask)
	d.mask = mask
	return out
}

// Backward performs backpropagation through the dropout layer.
func (d *Dropout) Backward(grad *mat.Dense) *mat.Dense {
	if d.mask == nil {
		return mat.DenseCopyOf(grad)
	}
	rows, cols := grad.Dims()
	dx := mat.NewDense(rows, cols, nil)
	dx.MulElem(grad, d.mask)
	return dx
}

func (d *Dropout) Params() []float64    { return nil }
func (d *Dropout) Gradients() []float64 { return nil }
func (d *Dropout) InShape() Shape       { return d.in }
func (d *Dropout) OutShape() Shape      { return d.in }
func (d *Dropout) Name() string         { return "dropout" }

// Rate returns the dropout probability.
func (d *Dropout) Rate() float64 {
	return d.rate
}
