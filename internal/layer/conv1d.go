package layer

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/FlavioCFOliveira/evocnn/internal/activations"
)

// Conv1D implements a 1D convolution over the Steps axis with valid padding.
// The batch is lowered to a patch matrix (im2col) so the whole convolution
// is a single matrix product.
type Conv1D struct {
	filters    int
	kernelSize int
	stride     int
	act        activations.Activation
	reg        Regularizer

	in       Shape
	out      Shape
	patchLen int

	// params holds the kernel [kernelSize*inChannels x filters] followed by the biases.
	params     []float64
	grads      []float64
	kernel     *mat.Dense
	gradKernel *mat.Dense
	bias       []float64
	gradBias   []float64

	// Saved for backward pass
	patches *mat.Dense
	preAct  *mat.Dense
}

// NewConv1D creates a 1D convolutional layer.
// filters: number of output channels
// kernelSize: width of the convolution window
// stride: step between windows
func NewConv1D(filters, kernelSize, stride int, act activations.Activation) *Conv1D {
	return &Conv1D{
		filters:    filters,
		kernelSize: kernelSize,
		stride:     stride,
		act:        act,
	}
}

// SetKernelRegularizer attaches a penalty to the kernel weights.
func (c *Conv1D) SetKernelRegularizer(r Regularizer) {
	c.reg = r
}

// Build computes the output length and initializes the kernel.
func (c *Conv1D) Build(in Shape, rng *rand.Rand) error {
	switch {
	case c.filters <= 0:
		return fmt.Errorf("conv1d: filters must be positive, got %d: %w", c.filters, ErrShape)
	case c.kernelSize <= 0:
		return fmt.Errorf("conv1d: kernel size must be positive, got %d: %w", c.kernelSize, ErrShape)
	case c.stride <= 0:
		return fmt.Errorf("conv1d: stride must be positive, got %d: %w", c.stride, ErrShape)
	case in.Channels <= 0:
		return fmt.Errorf("conv1d: input %v has no channels: %w", in, ErrShape)
	case in.Steps < c.kernelSize:
		return fmt.Errorf("conv1d: input length %d shorter than kernel %d: %w", in.Steps, c.kernelSize, ErrShape)
	}

	// Output length: (input - kernel) / stride + 1
	outSteps := (in.Steps-c.kernelSize)/c.stride + 1

	c.in = in
	c.out = Shape{Steps: outSteps, Channels: c.filters}
	c.patchLen = c.kernelSize * in.Channels

	nk := c.patchLen * c.filters
	c.params = make([]float64, nk+c.filters)
	c.grads = make([]float64, nk+c.filters)
	c.kernel = mat.NewDense(c.patchLen, c.filters, c.params[:nk])
	c.gradKernel = mat.NewDense(c.patchLen, c.filters, c.grads[:nk])
	c.bias = c.params[nk:]
	c.gradBias = c.grads[nk:]

	glorotUniform(c.params[:nk], c.patchLen, c.kernelSize*c.filters, rng)
	return nil
}

// Forward performs a forward pass through the convolutional layer.
// input: [batch, steps*channels]
// Returns: [batch, outSteps*filters]
func (c *Conv1D) Forward(x *mat.Dense, training bool) *mat.Dense {
	rows := checkWidth("Conv1D", x, c.in.Size())
	outSteps := c.out.Steps
	step := c.stride * c.in.Channels

	// Each output position reads a contiguous window of the channels-last row.
	patches := mat.NewDense(rows*outSteps, c.patchLen, nil)
	for n := 0; n < rows; n++ {
		row := x.RawRowView(n)
		for t := 0; t < outSteps; t++ {
			copy(patches.RawRowView(n*outSteps+t), row[t*step:t*step+c.patchLen])
		}
	}

	z := mat.NewDense(rows*outSteps, c.filters, nil)
	z.Mul(patches, c.kernel)
	addBias(z, c.bias)

	out := mat.NewDense(rows, outSteps*c.filters, nil)
	outData := out.RawMatrix().Data
	for i, v := range z.RawMatrix().Data {
		outData[i] = c.act.Activate(v)
	}

	c.patches = patches
	c.preAct = z
	return out
}

// Backward performs backpropagation through the convolutional layer.
func (c *Conv1D) Backward(grad *mat.Dense) *mat.Dense {
	rows, _ := grad.Dims()
	outSteps := c.out.Steps
	step := c.stride * c.in.Channels

	dz := mat.NewDense(rows*outSteps, c.filters, nil)
	dzData := dz.RawMatrix().Data
	zData := c.preAct.RawMatrix().Data
	for n := 0; n < rows; n++ {
		g := grad.RawRowView(n)
		base := n * outSteps * c.filters
		for j, v := range g {
			dzData[base+j] = v * c.act.Derivative(zData[base+j])
		}
	}

	c.gradKernel.Mul(c.patches.T(), dz)
	sumRows(c.gradBias, dz)
	if c.reg != nil {
		nk := c.patchLen * c.filters
		c.reg.Gradient(c.params[:nk], c.grads[:nk])
	}

	dPatches := mat.NewDense(rows*outSteps, c.patchLen, nil)
	dPatches.Mul(dz, c.kernel.T())

	// Overlapping windows accumulate into the same input positions.
	dx := mat.NewDense(rows, c.in.Size(), nil)
	for n := 0; n < rows; n++ {
		row := dx.RawRowView(n)
		for t := 0; t < outSteps; t++ {
			floats.Add(row[t*step:t*step+c.patchLen], dPatches.RawRowView(n*outSteps+t))
		}
	}
	return dx
}

func (c *Conv1D) Params() []float64    { return c.params }
func (c *Conv1D) Gradients() []float64 { return c.grads }
func (c *Conv1D) InShape() Shape       { return c.in }
func (c *Conv1D) OutShape() Shape      { return c.out }
func (c *Conv1D) Name() string         { return "conv1d" }

// Filters returns the number of output channels.
func (c *Conv1D) Filters() int { return c.filters }

// KernelSize returns the window width.
func (c *Conv1D) KernelSize() int { return c.kernelSize }

// Stride returns the step between windows.
func (c *Conv1D) Stride() int { return c.stride }

// Activation returns the activation function used by this layer.
func (c *Conv1D) Activation() activations.Activation { return c.act }

// KernelRegularizer returns the kernel penalty, or nil.
func (c *Conv1D) KernelRegularizer() Regularizer { return c.reg }

// RegularizationLoss returns the kernel penalty term.
func (c *Conv1D) RegularizationLoss() float64 {
	if c.reg == nil {
		return 0
	}
	return c.reg.Penalty(c.params[:c.patchLen*c.filters])
}

// Kernel returns the kernel matrix [kernelSize*inChannels x filters].
// Row k*inChannels + ch holds the weights for window offset k and input channel ch.
func (c *Conv1D) Kernel() *mat.Dense { return c.kernel }

// Bias returns the bias vector.
func (c *Conv1D) Bias() []float64 { return c.bias }
