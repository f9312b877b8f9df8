// Package compiler turns a genome into a compiled 1-D convolutional
// regression network.
package compiler

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/FlavioCFOliveira/evocnn/internal/activations"
	"github.com/FlavioCFOliveira/evocnn/internal/genome"
	"github.com/FlavioCFOliveira/evocnn/internal/layer"
	"github.com/FlavioCFOliveira/evocnn/internal/loss"
	"github.com/FlavioCFOliveira/evocnn/internal/net"
	"github.com/FlavioCFOliveira/evocnn/internal/opt"
)

// Batch normalization and pooling constants of the convolution blocks.
const (
	BatchNormMomentum = 0.99
	BatchNormEpsilon  = 1e-3
	PoolSize          = 2
)

// Default learning rates per optimizer kind.
const (
	RMSpropLearningRate = 0.001
	NadamLearningRate   = 0.001
	AdamLearningRate    = 0.001
	SGDLearningRate     = 0.01
)

// Options control side channels and initialization of Compile.
type Options struct {
	// Console receives the architecture line. Nil discards it.
	Console io.Writer
	// Logger receives the architecture line as a structured record. Nil discards it.
	Logger *slog.Logger
	// Seed drives weight initialization, dropout and shuffling.
	Seed int64
}

// Activation returns the activation function for a genome kind.
func Activation(kind genome.Activation) (activations.Activation, error) {
	switch kind {
	case genome.ActivationReLU:
		return activations.ReLU{}, nil
	case genome.ActivationELU:
		return activations.NewELU(1.0), nil
	case genome.ActivationSoftplus:
		return activations.Softplus{}, nil
	case genome.ActivationLinear:
		return activations.Linear{}, nil
	case genome.ActivationTanh:
		return activations.Tanh{}, nil
	case genome.ActivationSigmoid:
		return activations.Sigmoid{}, nil
	}
	return nil, fmt.Errorf("%w: activation %v", genome.ErrInvalid, kind)
}

// Optimizer returns a fresh optimizer for a genome kind.
func Optimizer(kind genome.Optimizer) (opt.Optimizer, error) {
	switch kind {
	case genome.OptimizerRMSprop:
		return opt.NewRMSprop(RMSpropLearningRate), nil
	case genome.OptimizerNadam:
		return opt.NewNadam(NadamLearningRate), nil
	case genome.OptimizerAdam:
		return opt.NewAdam(AdamLearningRate), nil
	case genome.OptimizerSGD:
		return opt.NewSGD(SGDLearningRate), nil
	}
	return nil, fmt.Errorf("%w: optimizer %v", genome.ErrInvalid, kind)
}

// Compile builds the network described by g for samples of shape input,
// typically {Steps: timesteps, Channels: 1}.
//
// Topology: NbCNNLayers blocks of Conv1D [-> BatchNorm] [-> Dropout] ->
// MaxPool1D, then Flatten, then NbLayers blocks of Dense [-> Dropout], then
// a single linear unit. The model is compiled with MSE loss, the genome
// optimizer and an MAE metric.
func Compile(g genome.Genome, input layer.Shape, o Options) (*net.Sequential, error) {
	if o.Console != nil {
		fmt.Fprintln(o.Console, g.Summary())
	}
	if o.Logger != nil {
		o.Logger.Info("compiling model", "architecture", g.Summary())
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	act, err := Activation(g.Activation)
	if err != nil {
		return nil, err
	}
	optimizer, err := Optimizer(g.Optimizer)
	if err != nil {
		return nil, err
	}

	var reg layer.Regularizer
	if g.WeightDecay > 0 {
		reg = layer.NewL2(g.WeightDecay)
	}

	model := net.NewSequential(input, o.Seed)
	stride := g.EffectiveStride()
	for i := 0; i < g.NbCNNLayers; i++ {
		conv := layer.NewConv1D(g.Filters, g.SizeWindow, stride, act)
		if reg != nil {
			conv.SetKernelRegularizer(reg)
		}
		model.Add(conv)
		if g.BatchNorm {
			model.Add(layer.NewBatchNorm(BatchNormMomentum, BatchNormEpsilon))
		}
		if g.Dropout > 0 {
			model.Add(layer.NewDropout(g.Dropout))
		}
		model.Add(layer.NewMaxPool1D(PoolSize, 0))
	}

	model.Add(layer.NewFlatten())
	for i := 0; i < g.NbLayers; i++ {
		dense := layer.NewDense(g.NbNeurons, act)
		if reg != nil {
			dense.SetKernelRegularizer(reg)
		}
		model.Add(dense)
		if g.Dropout > 0 {
			model.Add(layer.NewDropout(g.Dropout))
		}
	}

	// Regression head
	model.Add(layer.NewDense(1, activations.Linear{}))

	if err := model.Compile(optimizer, loss.MSE{}, loss.MAE{}); err != nil {
		return nil, fmt.Errorf("compile %s: %w", g.Summary(), err)
	}
	return model, nil
}
