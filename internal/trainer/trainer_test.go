package trainer

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/FlavioCFOliveira/evocnn/internal/dataset"
	"github.com/FlavioCFOliveira/evocnn/internal/genome"
)

func referenceGenome() genome.Genome {
	return genome.Genome{
		NbLayers:    1,
		NbNeurons:   16,
		Activation:  genome.ActivationReLU,
		Optimizer:   genome.OptimizerRMSprop,
		NbCNNLayers: 1,
		Filters:     16,
		SizeWindow:  3,
		Stride:      genome.StrideOne,
	}
}

func fastOptions() Options {
	o := DefaultOptions()
	o.Epochs = 30
	return o
}

func TestTrainAndScoreEndToEnd(t *testing.T) {
	src := dataset.Synthetic{Samples: 100, Timesteps: 20, TestFraction: 0.2, Noise: 0.1, Seed: 3}
	var console bytes.Buffer
	o := fastOptions()
	o.Console = &console

	fitness, err := TrainAndScore(referenceGenome(), dataset.Descriptor{Trait: "height"}, src, o)
	if err != nil {
		t.Fatal(err)
	}
	if math.IsNaN(fitness) || fitness < -1 || fitness > 1 {
		t.Fatalf("fitness %v outside [-1, 1]", fitness)
	}

	out := console.String()
	for _, want := range []string{"Architecture:[3,16,one]*1,bn=False;16,relu,rmsprop,1", "Test mse:", "Test mae:", "Test r:"} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q:\n%s", want, out)
		}
	}
}

func TestRunHistory(t *testing.T) {
	src := dataset.Synthetic{Samples: 100, Timesteps: 20, TestFraction: 0.2, Seed: 3}
	o := fastOptions()
	g := referenceGenome()
	g.BatchNorm = true
	g.Dropout = 0.1
	g.WeightDecay = 0.01

	res, err := Run(g, dataset.Descriptor{Trait: "height", K: 10}, src, o)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(res.History.Epochs); n < 1 || n > o.Epochs {
		t.Errorf("ran %d epochs", n)
	}
	// 80 training samples in batches of 32.
	if got, want := len(res.History.BatchLosses), 3*len(res.History.Epochs); got != want {
		t.Errorf("%d batch losses, want %d", got, want)
	}
	if res.MSE <= 0 || res.MAE <= 0 {
		t.Errorf("scores mse=%v mae=%v", res.MSE, res.MAE)
	}
	if res.Fitness != Fitness(res.R) {
		t.Errorf("fitness %v does not match r %v", res.Fitness, res.R)
	}
}

func TestZeroOptionsUseDefaults(t *testing.T) {
	src := dataset.Synthetic{Samples: 60, Timesteps: 10, TestFraction: 0.2, Seed: 5}

	fitness, err := TrainAndScore(referenceGenome(), dataset.Descriptor{Trait: "height"}, src, Options{})
	if err != nil {
		t.Fatalf("TrainAndScore with zero options: %v", err)
	}
	if fitness < -1 || fitness > 1 {
		t.Errorf("fitness %v outside [-1, 1]", fitness)
	}

	o := Options{EarlyStopping: DefaultOptions().EarlyStopping}
	res, err := Run(referenceGenome(), dataset.Descriptor{Trait: "height"}, src, o)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(res.History.Epochs); n < 1 || n > DefaultEpochs {
		t.Errorf("trained %d epochs with zero epoch count", n)
	}
	// 48 training samples in default batches of 32.
	if got, want := len(res.History.BatchLosses), 2*len(res.History.Epochs); got != want {
		t.Errorf("%d batch losses, want %d", got, want)
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	got := Options{}.withDefaults()
	want := DefaultOptions()
	if got.Epochs != want.Epochs || got.BatchSize != want.BatchSize || got.EarlyStopping != want.EarlyStopping {
		t.Errorf("withDefaults = %+v, want %+v", got, want)
	}

	custom := Options{Epochs: 7, BatchSize: 4, EarlyStopping: DefaultOptions().EarlyStopping}
	custom.EarlyStopping.Patience = 5
	if got := custom.withDefaults(); got.Epochs != 7 || got.BatchSize != 4 || got.EarlyStopping.Patience != 5 {
		t.Errorf("withDefaults overrode explicit fields: %+v", got)
	}
}

func TestConstantPredictionsScoreUndefined(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	xTrain := mat.NewDense(40, 12, nil)
	yTrain := make([]float64, 40)
	for i := 0; i < 40; i++ {
		for j := 0; j < 12; j++ {
			xTrain.Set(i, j, rng.NormFloat64())
		}
		yTrain[i] = xTrain.At(i, 0)
	}
	// Identical test rows give identical predictions.
	src := dataset.Static{"height": {
		XTrain: xTrain,
		XTest:  mat.NewDense(8, 12, nil),
		YTrain: yTrain,
		YTest:  []float64{1, 2, 3, 4, 5, 6, 7, 8},
	}}

	res, err := Run(referenceGenome(), dataset.Descriptor{Trait: "height"}, src, fastOptions())
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(res.R) {
		t.Errorf("r = %v, want NaN", res.R)
	}
	if res.Fitness != Undefined {
		t.Errorf("fitness = %v, want %v", res.Fitness, Undefined)
	}
}

func TestRetrievalErrorPropagates(t *testing.T) {
	sentinel := errors.New("store offline")
	r := RetrieverFunc(func(dataset.Descriptor) (dataset.Split, error) {
		return dataset.Split{}, sentinel
	})
	if _, err := TrainAndScore(referenceGenome(), dataset.Descriptor{Trait: "height"}, r, fastOptions()); !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want %v", err, sentinel)
	}

	empty := RetrieverFunc(func(dataset.Descriptor) (dataset.Split, error) {
		return dataset.Split{}, nil
	})
	if _, err := TrainAndScore(referenceGenome(), dataset.Descriptor{}, empty, fastOptions()); !errors.Is(err, dataset.ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
}

func TestInvalidGenome(t *testing.T) {
	src := dataset.Synthetic{Samples: 20, Timesteps: 20, TestFraction: 0.2}
	g := referenceGenome()
	g.Dropout = 1.5
	if _, err := TrainAndScore(g, dataset.Descriptor{}, src, fastOptions()); !errors.Is(err, genome.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestPearson(t *testing.T) {
	if r := Pearson([]float64{1, 2, 3}, []float64{2, 4, 6}); math.Abs(r-1) > 1e-12 {
		t.Errorf("r = %v, want 1", r)
	}
	if r := Pearson([]float64{1, 2, 3}, []float64{3, 2, 1}); math.Abs(r+1) > 1e-12 {
		t.Errorf("r = %v, want -1", r)
	}
	if r := Pearson([]float64{0.1, 0.1, 0.1}, []float64{1, 2, 3}); !math.IsNaN(r) {
		t.Errorf("constant predictions gave r = %v", r)
	}
	if r := Pearson([]float64{1}, []float64{1}); !math.IsNaN(r) {
		t.Errorf("single sample gave r = %v", r)
	}
}

func TestFitness(t *testing.T) {
	for _, tc := range []struct{ in, want float64 }{
		{math.NaN(), -1},
		{0.5, 0.5},
		{1.0000000000000002, 1},
		{-1.0000000000000002, -1},
		{math.Inf(1), 1},
	} {
		if got := Fitness(tc.in); got != tc.want {
			t.Errorf("Fitness(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
