// Package activations provides the activation functions a genome can select.
package activations

import "math"

// Activation is an activation function with derivative.
type Activation interface {
	// Activate computes f(x)
	Activate(x float64) float64

	// Derivative computes f'(x) from the pre-activation value.
	Derivative(x float64) float64

	// Name returns the identifier used in genomes and summaries.
	Name() string
}

// ReLU activation function.
type ReLU struct{}

// Activate computes max(0, x)
func (r ReLU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// Derivative returns 1 if x > 0, else 0
func (r ReLU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

func (r ReLU) Name() string { return "relu" }

// ELU activation function.
// f(x) = x for x > 0, alpha*(exp(x)-1) otherwise.
type ELU struct {
	Alpha float64
}

// NewELU creates an ELU with the given alpha, usually 1.0.
func NewELU(alpha float64) *ELU {
	return &ELU{Alpha: alpha}
}

// Activate computes x if x > 0, else alpha*(exp(x)-1)
func (e *ELU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return e.Alpha * (math.Exp(x) - 1)
}

// Derivative returns 1 if x > 0, else alpha*exp(x)
func (e *ELU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return e.Alpha * math.Exp(x)
}

func (e *ELU) Name() string { return "elu" }

// Softplus activation function: log(1 + exp(x)).
type Softplus struct{}

// Activate computes log(1 + exp(x)) without overflowing for large x.
func (s Softplus) Activate(x float64) float64 {
	if x > 30 {
		return x
	}
	if x < -30 {
		return math.Exp(x)
	}
	return math.Log1p(math.Exp(x))
}

// Derivative is the logistic function.
func (s Softplus) Derivative(x float64) float64 {
	return sigmoid(x)
}

func (s Softplus) Name() string { return "softplus" }

// Linear is the identity activation.
type Linear struct{}

func (l Linear) Activate(x float64) float64   { return x }
func (l Linear) Derivative(x float64) float64 { return 1 }
func (l Linear) Name() string                 { return "linear" }

// Sigmoid activation function.
type Sigmoid struct{}

// sigmoid computes the sigmoid function
func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Activate computes sigmoid(x)
func (s Sigmoid) Activate(x float64) float64 {
	return sigmoid(x)
}

// Derivative computes sigmoid(x) * (1 - sigmoid(x))
func (s Sigmoid) Derivative(x float64) float64 {
	sigma := sigmoid(x)
	return sigma * (1 - sigma)
}

func (s Sigmoid) Name() string { return "sigmoid" }

// Tanh activation function.
type Tanh struct{}

// Activate computes tanh(x)
func (t Tanh) Activate(x float64) float64 {
	return math.Tanh(x)
}

// Derivative computes 1 - tanh(x)^2
func (t Tanh) Derivative(x float64) float64 {
	tanhX := math.Tanh(x)
	return 1 - tanhX*tanhX
}

func (t Tanh) Name() string { return "tanh" }
