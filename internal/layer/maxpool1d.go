package layer

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// MaxPool1D downsamples the Steps axis by taking the maximum over windows.
// Stores argmax indices for correct gradient flow during backward pass.
type MaxPool1D struct {
	poolSize int
	stride   int

	in  Shape
	out Shape

	// argmax[n][t*C+c] is the input column that won for that output.
	argmax [][]int
}

// NewMaxPool1D creates a 1D max pooling layer.
// A stride of 0 defaults to poolSize.
func NewMaxPool1D(poolSize, stride int) *MaxPool1D {
	if stride == 0 {
		stride = poolSize
	}
	return &MaxPool1D{poolSize: poolSize, stride: stride}
}

// Build computes the output length with valid padding.
func (m *MaxPool1D) Build(in Shape, _ *rand.Rand) error {
	if m.poolSize <= 0 || m.stride <= 0 {
		return fmt.Errorf("max_pooling1d: pool %d stride %d must be positive: %w", m.poolSize, m.stride, ErrShape)
	}
	if in.Steps < m.poolSize {
		return fmt.Errorf("max_pooling1d: input length %d shorter than pool %d: %w", in.Steps, m.poolSize, ErrShape)
	}
	m.in = in
	m.out = Shape{Steps: (in.Steps-m.poolSize)/m.stride + 1, Channels: in.Channels}
	return nil
}

// Forward performs max pooling.
func (m *MaxPool1D) Forward(x *mat.Dense, training bool) *mat.Dense {
	rows := checkWidth("MaxPool1D", x, m.in.Size())
	ch := m.in.Channels
	outSize := m.out.Size()

	out := mat.NewDense(rows, outSize, nil)
	if cap(m.argmax) < rows {
		m.argmax = make([][]int, rows)
	}
	m.argmax = m.argmax[:rows]

	for n := 0; n < rows; n++ {
		src := x.RawRowView(n)
		dst := out.RawRowView(n)
		if len(m.argmax[n]) != outSize {
			m.argmax[n] = make([]int, outSize)
		}
		arg := m.argmax[n]
		for t := 0; t < m.out.Steps; t++ {
			start := t * m.stride
			for c := 0; c < ch; c++ {
				best := start*ch + c
				for k := 1; k < m.poolSize; k++ {
					idx := (start+k)*ch + c
					if src[idx] > src[best] {
						best = idx
					}
				}
				dst[t*ch+c] = src[best]
				arg[t*ch+c] = best
			}
		}
	}
	return out
}

// Backward routes each gradient to the input position that produced the max.
func (m *MaxPool1D) Backward(grad *mat.Dense) *mat.Dense {
	rows, _ := grad.Dims()
	dx := mat.NewDense(rows, m.in.Size(), nil)
	for n := 0; n < rows; n++ {
		g := grad.RawRowView(n)
		row := dx.RawRowView(n)
		for j, idx := range m.argmax[n] {
			row[idx] += g[j]
		}
	}
	return dx
}

func (m *MaxPool1D) Params() []float64    { return nil }
func (m *MaxPool1D) Gradients() []float64 { return nil }
func (m *MaxPool1D) InShape() Shape       { return m.in }
func (m *MaxPool1D) OutShape() Shape      { return m.out }
func (m *MaxPool1D) Name() string         { return "max_pooling1d" }

// PoolSize returns the pooling window width.
func (m *MaxPool1D) PoolSize() int { return m.poolSize }

// Stride returns the step between windows.
func (m *MaxPool1D) Stride() int { return m.stride }
