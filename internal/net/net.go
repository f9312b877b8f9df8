// Package net provides the sequential model and its training loop.
package net

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/FlavioCFOliveira/evocnn/internal/layer"
	"github.com/FlavioCFOliveira/evocnn/internal/loss"
	"github.com/FlavioCFOliveira/evocnn/internal/opt"
)

var (
	// ErrNotCompiled is returned when a model is used before Compile.
	ErrNotCompiled = errors.New("model is not compiled")

	// ErrShape is returned when data does not match the model input or target.
	ErrShape = errors.New("data shape mismatch")
)

// Sequential is a linear stack of layers trained with Compile and Fit.
type Sequential struct {
	input   layer.Shape
	layers  []layer.Layer
	loss    loss.Loss
	metrics []loss.Metric
	opt     opt.Optimizer
	rng     *rand.Rand

	compiled bool

	// Parameter groups handed to the optimizer, in layer order.
	paramGroups [][]float64
	gradGroups  [][]float64
}

// NewSequential creates an empty model for samples of the given shape.
// seed drives weight initialization, dropout masks and shuffling.
func NewSequential(input layer.Shape, seed int64) *Sequential {
	return &Sequential{
		input: input,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Add appends a layer. Layers are built by Compile.
func (s *Sequential) Add(l layer.Layer) {
	s.layers = append(s.layers, l)
	s.compiled = false
}

// Layers returns the model's layers in order.
func (s *Sequential) Layers() []layer.Layer {
	return s.layers
}

// InputShape returns the per-sample input shape.
func (s *Sequential) InputShape() layer.Shape {
	return s.input
}

// OutputShape returns the per-sample output shape of the last layer.
func (s *Sequential) OutputShape() layer.Shape {
	if len(s.layers) == 0 {
		return s.input
	}
	return s.layers[len(s.layers)-1].OutShape()
}

// Forward performs a forward pass through all layers.
func (s *Sequential) Forward(x *mat.Dense, training bool) *mat.Dense {
	curr := x
	for _, l := range s.layers {
		curr = l.Forward(curr, training)
	}
	return curr
}

// Backward performs a backward pass through all layers.
func (s *Sequential) Backward(grad *mat.Dense) *mat.Dense {
	curr := grad
	for i := len(s.layers) - 1; i >= 0; i-- {
		curr = s.layers[i].Backward(curr)
	}
	return curr
}

// Step performs one optimization step using the compiled optimizer.
func (s *Sequential) Step() {
	s.opt.Step(s.paramGroups, s.gradGroups)
}

// RegularizationLoss sums the kernel penalties of all layers.
func (s *Sequential) RegularizationLoss() float64 {
	var total float64
	for _, l := range s.layers {
		if r, ok := l.(layer.Regularized); ok {
			total += r.RegularizationLoss()
		}
	}
	return total
}

// TrainBatch performs one gradient step on a batch and returns its loss,
// including regularization penalties.
func (s *Sequential) TrainBatch(x, y *mat.Dense) (float64, error) {
	if _, err := s.checkData(x, y); err != nil {
		return 0, fmt.Errorf("train batch: %w", err)
	}
	_, l := s.trainBatch(x, y)
	return l, nil
}

// trainBatch runs forward, backward and one optimizer step. It returns the
// training-mode predictions and the loss before the update.
func (s *Sequential) trainBatch(x, y *mat.Dense) (*mat.Dense, float64) {
	yPred := s.Forward(x, true)
	l := s.loss.Forward(yPred, y) + s.RegularizationLoss()
	s.Backward(s.loss.Backward(yPred, y))
	s.Step()
	return yPred, l
}

// CountParams returns the number of trainable parameters.
func (s *Sequential) CountParams() int {
	total := 0
	for _, l := range s.layers {
		total += len(l.Params())
	}
	return total
}

// Release drops the layers, optimizer state and buffers held by the model.
// The model must be recompiled before further use.
func (s *Sequential) Release() {
	s.layers = nil
	s.opt = nil
	s.paramGroups = nil
	s.gradGroups = nil
	s.compiled = false
}

func (s *Sequential) build() error {
	shape := s.input
	s.paramGroups = s.paramGroups[:0]
	s.gradGroups = s.gradGroups[:0]
	for i, l := range s.layers {
		if err := l.Build(shape, s.rng); err != nil {
			return fmt.Errorf("layer %d (%s): %w", i, l.Name(), err)
		}
		if p := l.Params(); len(p) > 0 {
			s.paramGroups = append(s.paramGroups, p)
			s.gradGroups = append(s.gradGroups, l.Gradients())
		}
		shape = l.OutShape()
	}
	return nil
}

// checkData validates x (and y, if non-nil) against the model.
func (s *Sequential) checkData(x, y *mat.Dense) (int, error) {
	if !s.compiled {
		return 0, ErrNotCompiled
	}
	if x == nil || x.IsEmpty() {
		return 0, fmt.Errorf("empty input: %w", ErrShape)
	}
	rows, cols := x.Dims()
	if cols != s.input.Size() {
		return 0, fmt.Errorf("input has %d features, model expects %d: %w", cols, s.input.Size(), ErrShape)
	}
	if y != nil {
		yr, yc := y.Dims()
		if yr != rows {
			return 0, fmt.Errorf("%d inputs but %d targets: %w", rows, yr, ErrShape)
		}
		if yc != s.OutputShape().Size() {
			return 0, fmt.Errorf("targets have %d columns, model outputs %d: %w", yc, s.OutputShape().Size(), ErrShape)
		}
	}
	return rows, nil
}
