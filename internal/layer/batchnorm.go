package layer

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// BatchNorm normalizes each channel over the batch and Steps axes and
// learns a per-channel scale (gamma) and shift (beta).
// Running statistics are used outside training.
type BatchNorm struct {
	eps      float64
	momentum float64

	in Shape

	// params holds gamma followed by beta.
	params    []float64
	grads     []float64
	gamma     []float64
	beta      []float64
	gradGamma []float64
	gradBeta  []float64

	movingMean []float64
	movingVar  []float64

	// Saved for backward pass
	xhat   *mat.Dense // [batch*steps x channels]
	invStd []float64
	rows   int
}

// NewBatchNorm creates a batch normalization layer.
// Typical values are momentum 0.99 and epsilon 1e-3.
func NewBatchNorm(momentum, eps float64) *BatchNorm {
	return &BatchNorm{momentum: momentum, eps: eps}
}

// Build initializes gamma to 1, beta to 0 and the running variance to 1.
func (b *BatchNorm) Build(in Shape, _ *rand.Rand) error {
	if in.Size() <= 0 {
		return fmt.Errorf("batch_normalization: empty input %v: %w", in, ErrShape)
	}
	ch := in.Channels
	b.in = in
	b.params = make([]float64, 2*ch)
	b.grads = make([]float64, 2*ch)
	b.gamma = b.params[:ch]
	b.beta = b.params[ch:]
	b.gradGamma = b.grads[:ch]
	b.gradBeta = b.grads[ch:]
	b.movingMean = make([]float64, ch)
	b.movingVar = make([]float64, ch)
	b.invStd = make([]float64, ch)
	for i := 0; i < ch; i++ {
		b.gamma[i] = 1
		b.movingVar[i] = 1
	}
	return nil
}

// Forward performs batch normalization.
func (b *BatchNorm) Forward(x *mat.Dense, training bool) *mat.Dense {
	rows := checkWidth("BatchNorm", x, b.in.Size())
	ch := b.in.Channels
	m := rows * b.in.Steps

	// View the batch as [batch*steps x channels]; channels-last keeps it contiguous.
	flat := mat.NewDense(m, ch, mat.DenseCopyOf(x).RawMatrix().Data)
	out := mat.NewDense(m, ch, nil)

	if !training {
		for c := 0; c < ch; c++ {
			scale := b.gamma[c] / math.Sqrt(b.movingVar[c]+b.eps)
			shift := b.beta[c] - b.movingMean[c]*scale
			for i := 0; i < m; i++ {
				out.Set(i, c, flat.At(i, c)*scale+shift)
			}
		}
		return mat.NewDense(rows, b.in.Size(), out.RawMatrix().Data)
	}

	xhat := mat.NewDense(m, ch, nil)
	col := make([]float64, m)
	for c := 0; c < ch; c++ {
		mat.Col(col, c, flat)
		mean, variance := stat.PopMeanVariance(col, nil)
		inv := 1 / math.Sqrt(variance+b.eps)
		b.invStd[c] = inv
		for i := 0; i < m; i++ {
			h := (col[i] - mean) * inv
			xhat.Set(i, c, h)
			out.Set(i, c, h*b.gamma[c]+b.beta[c])
		}
		b.movingMean[c] = b.momentum*b.movingMean[c] + (1-b.momentum)*mean
		// The running variance tracks the unbiased estimate.
		unbiased := variance
		if m > 1 {
			unbiased *= float64(m) / float64(m-1)
		}
		b.movingVar[c] = b.momentum*b.movingVar[c] + (1-b.momentum)*unbiased
	}

	b.xhat = xhat
	b.rows = rows
	return mat.NewDense(rows, b.in.Size(), out.RawMatrix().Data)
}

// Backward computes gradients using the batch statistics of the last Forward.
func (b *BatchNorm) Backward(grad *mat.Dense) *mat.Dense {
	ch := b.in.Channels
	m := b.rows * b.in.Steps
	dy := mat.NewDense(m, ch, mat.DenseCopyOf(grad).RawMatrix().Data)
	dx := mat.NewDense(m, ch, nil)
	fm := float64(m)

	for c := 0; c < ch; c++ {
		var sumDy, sumDyXhat float64
		for i := 0; i < m; i++ {
			g := dy.At(i, c)
			sumDy += g
			sumDyXhat += g * b.xhat.At(i, c)
		}
		b.gradGamma[c] = sumDyXhat
		b.gradBeta[c] = sumDy

		// dx = gamma*invStd/m * (m*dy - sum(dy) - xhat*sum(dy*xhat))
		k := b.gamma[c] * b.invStd[c] / fm
		for i := 0; i < m; i++ {
			dx.Set(i, c, k*(fm*dy.At(i, c)-sumDy-b.xhat.At(i, c)*sumDyXhat))
		}
	}
	return mat.NewDense(b.rows, b.in.Size(), dx.RawMatrix().Data)
}

func (b *BatchNorm) Params() []float64    { return b.params }
func (b *BatchNorm) Gradients() []float64 { return b.grads }
func (b *BatchNorm) InShape() Shape       { return b.in }
func (b *BatchNorm) OutShape() Shape      { return b.in }
func (b *BatchNorm) Name() string         { return "batch_normalization" }

// MovingMean returns the running mean per channel.
func (b *BatchNorm) MovingMean() []float64 { return b.movingMean }

// MovingVariance returns the running variance per channel.
func (b *BatchNorm) MovingVariance() []float64 { return b.movingVar }
