// Package layer provides the network layers a genome can be compiled into.
//
// Every layer works on batches: a *mat.Dense with one sample per row. A
// sample of shape {Steps, Channels} is stored channels-last, so feature
// (t, c) sits in column t*Channels + c.
package layer

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/FlavioCFOliveira/evocnn/internal/activations"
)

// ErrShape is returned by Build when a layer cannot accept its input shape.
var ErrShape = errors.New("invalid layer shape")

// Shape is the per-sample shape of a layer's input or output.
// Flat feature vectors use Steps == 1.
type Shape struct {
	Steps    int
	Channels int
}

// Size returns the number of features per sample.
func (s Shape) Size() int {
	return s.Steps * s.Channels
}

func (s Shape) String() string {
	if s.Steps == 1 {
		return fmt.Sprintf("(None, %d)", s.Channels)
	}
	return fmt.Sprintf("(None, %d, %d)", s.Steps, s.Channels)
}

// Layer is a neural network layer.
type Layer interface {
	// Build allocates weights for the given input shape.
	Build(in Shape, rng *rand.Rand) error

	// Forward maps a batch to the layer output. training selects batch
	// statistics and dropout masks.
	Forward(x *mat.Dense, training bool) *mat.Dense

	// Backward takes dL/d(output) of the last Forward and returns dL/d(input).
	// Parameter gradients are overwritten, not accumulated.
	Backward(grad *mat.Dense) *mat.Dense

	// Params returns the trainable parameters. The slice aliases the layer
	// storage, so optimizers update it in place.
	Params() []float64

	// Gradients returns the gradient buffer aligned with Params.
	Gradients() []float64

	InShape() Shape
	OutShape() Shape
	Name() string
}

// Regularized is implemented by layers that may carry a kernel penalty.
type Regularized interface {
	KernelRegularizer() Regularizer
	RegularizationLoss() float64
}

// glorotUniform fills w with U(-limit, limit), limit = sqrt(6/(fanIn+fanOut)).
func glorotUniform(w []float64, fanIn, fanOut int, rng *rand.Rand) {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range w {
		w[i] = rng.Float64()*2*limit - limit
	}
}

// addBias adds b to every row of m.
func addBias(m *mat.Dense, b []float64) {
	rows, _ := m.Dims()
	for i := 0; i < rows; i++ {
		floats.Add(m.RawRowView(i), b)
	}
}

// sumRows writes the column sums of m into dst.
func sumRows(dst []float64, m *mat.Dense) {
	for i := range dst {
		dst[i] = 0
	}
	rows, _ := m.Dims()
	for i := 0; i < rows; i++ {
		floats.Add(dst, m.RawRowView(i))
	}
}

func checkWidth(who string, x mat.Matrix, want int) int {
	rows, cols := x.Dims()
	if cols != want {
		panic(fmt.Sprintf("%s: input width %d, want %d", who, cols, want))
	}
	return rows
}

// Dense is a fully connected layer: activation(x * W + b).
type Dense struct {
	units int
	act   activations.Activation
	reg   Regularizer

	in  Shape
	out Shape

	// params holds the kernel [in x units] row-major followed by the biases.
	params     []float64
	grads      []float64
	kernel     *mat.Dense
	gradKernel *mat.Dense
	bias       []float64
	gradBias   []float64

	// Saved for backward pass
	input  *mat.Dense
	preAct *mat.Dense
}

// NewDense creates a dense layer with the given number of units.
// Weights are allocated by Build.
func NewDense(units int, act activations.Activation) *Dense {
	return &Dense{units: units, act: act}
}

// SetKernelRegularizer attaches a penalty to the kernel weights.
func (d *Dense) SetKernelRegularizer(r Regularizer) {
	d.reg = r
}

// Build allocates and initializes the kernel with Glorot uniform values.
func (d *Dense) Build(in Shape, rng *rand.Rand) error {
	if d.units <= 0 {
		return fmt.Errorf("dense: units must be positive, got %d: %w", d.units, ErrShape)
	}
	inSize := in.Size()
	if inSize <= 0 {
		return fmt.Errorf("dense: empty input %v: %w", in, ErrShape)
	}

	d.in = in
	d.out = Shape{Steps: 1, Channels: d.units}

	nk := inSize * d.units
	d.params = make([]float64, nk+d.units)
	d.grads = make([]float64, nk+d.units)
	d.kernel = mat.NewDense(inSize, d.units, d.params[:nk])
	d.gradKernel = mat.NewDense(inSize, d.units, d.grads[:nk])
	d.bias = d.params[nk:]
	d.gradBias = d.grads[nk:]

	glorotUniform(d.params[:nk], inSize, d.units, rng)
	return nil
}

// Forward performs a forward pass through the dense layer.
func (d *Dense) Forward(x *mat.Dense, training bool) *mat.Dense {
	rows := checkWidth("Dense", x, d.in.Size())

	z := mat.NewDense(rows, d.units, nil)
	z.Mul(x, d.kernel)
	addBias(z, d.bias)

	out := mat.NewDense(rows, d.units, nil)
	out.Apply(func(_, _ int, v float64) float64 { return d.act.Activate(v) }, z)

	d.input = x
	d.preAct = z
	return out
}

// Backward performs backpropagation through the dense layer.
func (d *Dense) Backward(grad *mat.Dense) *mat.Dense {
	rows, _ := grad.Dims()

	// dz = dL/d(output) * activation'(z)
	dz := mat.NewDense(rows, d.units, nil)
	dz.Apply(func(i, j int, g float64) float64 {
		return g * d.act.Derivative(d.preAct.At(i, j))
	}, grad)

	d.gradKernel.Mul(d.input.T(), dz)
	sumRows(d.gradBias, dz)
	if d.reg != nil {
		d.reg.Gradient(d.params[:len(d.params)-d.units], d.grads[:len(d.grads)-d.units])
	}

	dx := mat.NewDense(rows, d.in.Size(), nil)
	dx.Mul(dz, d.kernel.T())
	return dx
}

func (d *Dense) Params() []float64    { return d.params }
func (d *Dense) Gradients() []float64 { return d.grads }
func (d *Dense) InShape() Shape       { return d.in }
func (d *Dense) OutShape() Shape      { return d.out }
func (d *Dense) Name() string         { return "dense" }

// Units returns the number of output units.
func (d *Dense) Units() int {
	return d.units
}

// Activation returns the activation function used by this layer.
func (d *Dense) Activation() activations.Activation {
	return d.act
}

// KernelRegularizer returns the kernel penalty, or nil.
func (d *Dense) KernelRegularizer() Regularizer {
	return d.reg
}

// RegularizationLoss returns the kernel penalty term.
func (d *Dense) RegularizationLoss() float64 {
	if d.reg == nil {
		return 0
	}
	return d.reg.Penalty(d.params[:len(d.params)-d.units])
}

// Kernel returns the kernel matrix [in x units].
func (d *Dense) Kernel() *mat.Dense {
	return d.kernel
}

// Bias returns the bias vector.
func (d *Dense) Bias() []float64 {
	return d.bias
}
