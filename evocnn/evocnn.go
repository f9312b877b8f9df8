// Package evocnn exposes the genome scoring entry point to external
// architecture search drivers.
package evocnn

import (
	"github.com/FlavioCFOliveira/evocnn/internal/compiler"
	"github.com/FlavioCFOliveira/evocnn/internal/dataset"
	"github.com/FlavioCFOliveira/evocnn/internal/genome"
	"github.com/FlavioCFOliveira/evocnn/internal/layer"
	"github.com/FlavioCFOliveira/evocnn/internal/net"
	"github.com/FlavioCFOliveira/evocnn/internal/trainer"
)

// Re-export common types for easier access
type (
	Genome     = genome.Genome
	Activation = genome.Activation
	Optimizer  = genome.Optimizer
	Stride     = genome.Stride

	Descriptor = dataset.Descriptor
	Split      = dataset.Split
	Synthetic  = dataset.Synthetic
	Static     = dataset.Static

	Retriever     = trainer.Retriever
	RetrieverFunc = trainer.RetrieverFunc
	Options       = trainer.Options
	Result        = trainer.Result

	Model          = net.Sequential
	Shape          = layer.Shape
	CompileOptions = compiler.Options
)

// Genome enumerations
const (
	ReLU     = genome.ActivationReLU
	ELU      = genome.ActivationELU
	Softplus = genome.ActivationSoftplus
	Linear   = genome.ActivationLinear
	Tanh     = genome.ActivationTanh
	Sigmoid  = genome.ActivationSigmoid

	RMSprop = genome.OptimizerRMSprop
	Nadam   = genome.OptimizerNadam
	Adam    = genome.OptimizerAdam
	SGD     = genome.OptimizerSGD

	StrideEqual = genome.StrideEqual
	StrideOne   = genome.StrideOne
)

// Undefined is the fitness of a network whose predictions do not correlate.
const Undefined = trainer.Undefined

var (
	ErrInvalid = genome.ErrInvalid
	ErrShape   = net.ErrShape
)

// Genome decoding
func FromMap(params map[string]any) (Genome, error) {
	return genome.FromMap(params)
}

func LoadGenome(path string) (Genome, error) {
	return genome.Load(path)
}

// DefaultOptions returns the standard training configuration.
func DefaultOptions() Options {
	return trainer.DefaultOptions()
}

// TrainAndScore trains the network described by g on the dataset selected by
// d and returns its fitness in [-1, 1].
func TrainAndScore(g Genome, d Descriptor, r Retriever, o Options) (float64, error) {
	return trainer.TrainAndScore(g, d, r, o)
}

// Run is TrainAndScore with the test scores and training history.
func Run(g Genome, d Descriptor, r Retriever, o Options) (Result, error) {
	return trainer.Run(g, d, r, o)
}

// Compile builds the network of g without training it.
func Compile(g Genome, input Shape, o CompileOptions) (*Model, error) {
	return compiler.Compile(g, input, o)
}
