package layer

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Regularizer adds a weight penalty to the training loss.
type Regularizer interface {
	// Penalty returns the loss term for the weights.
	Penalty(w []float64) float64

	// Gradient adds d(Penalty)/dw into grad.
	Gradient(w, grad []float64)

	String() string
}

// L2 is the penalty Lambda * sum(w^2).
type L2 struct {
	Lambda float64
}

// NewL2 creates an L2 kernel penalty.
func NewL2(lambda float64) L2 {
	return L2{Lambda: lambda}
}

func (r L2) Penalty(w []float64) float64 {
	return r.Lambda * floats.Dot(w, w)
}

func (r L2) Gradient(w, grad []float64) {
	floats.AddScaled(grad, 2*r.Lambda, w)
}

func (r L2) String() string {
	return fmt.Sprintf("l2(%g)", r.Lambda)
}
