// Command evocnn trains the network described by one genome on a synthetic
// series regression dataset and prints its fitness.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/FlavioCFOliveira/evocnn/internal/dataset"
	"github.com/FlavioCFOliveira/evocnn/internal/genome"
	"github.com/FlavioCFOliveira/evocnn/internal/layer"
	"github.com/FlavioCFOliveira/evocnn/internal/trainer"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// referenceGenome is scored when no -genome file is given.
var referenceGenome = genome.Genome{
	NbLayers:    1,
	NbNeurons:   16,
	Activation:  genome.ActivationReLU,
	Optimizer:   genome.OptimizerRMSprop,
	NbCNNLayers: 1,
	Filters:     16,
	SizeWindow:  3,
	Stride:      genome.StrideOne,
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("evocnn", flag.ContinueOnError)
	fs.SetOutput(stderr)
	genomePath := fs.String("genome", "", "genome JSON file (default: reference genome)")
	trait := fs.String("trait", "height", "target trait")
	k := fs.Int("k", 0, "number of features nearest the target; 0 keeps all")
	unif := fs.Bool("unif", false, "draw features uniformly from [0, 1)")
	samples := fs.Int("samples", 100, "synthetic sample count")
	steps := fs.Int("steps", 20, "synthetic timesteps per sample")
	testFraction := fs.Float64("test-fraction", 0.2, "held-out share of the samples")
	noise := fs.Float64("noise", 0.1, "target noise standard deviation")
	seed := fs.Int64("seed", 1, "data and initialization seed")
	epochs := fs.Int("epochs", trainer.DefaultEpochs, "maximum training epochs")
	verbose := fs.Bool("v", false, "log every epoch")
	if err := fs.Parse(args); err != nil {
		return err
	}

	g := referenceGenome
	if *genomePath != "" {
		loaded, err := genome.Load(*genomePath)
		if err != nil {
			return err
		}
		g = loaded
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	logger.Info("host", "device", layer.HostDevice().String())

	o := trainer.DefaultOptions()
	o.Epochs = *epochs
	o.Seed = *seed
	o.Console = stdout
	o.Logger = logger

	src := dataset.Synthetic{
		Samples:      *samples,
		Timesteps:    *steps,
		TestFraction: *testFraction,
		Noise:        *noise,
		Seed:         *seed,
	}
	fitness, err := trainer.TrainAndScore(g, dataset.Descriptor{Trait: *trait, K: *k, Unif: *unif}, src, o)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "fitness: %.6f\n", fitness)
	return nil
}
