// Package dataset defines the train/test split the trainer consumes and
// provides in-memory and synthetic sources of it.
package dataset

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ErrEmpty is returned for splits without samples.
var ErrEmpty = errors.New("empty dataset")

// Descriptor selects a dataset: the target trait, the number of neighbor
// features k, and whether features are drawn uniformly.
type Descriptor struct {
	Trait string
	K     int
	Unif  bool
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s/k=%d/unif=%t", d.Trait, d.K, d.Unif)
}

// Split holds aligned train and test features (samples x timesteps) and targets.
type Split struct {
	XTrain *mat.Dense
	XTest  *mat.Dense
	YTrain []float64
	YTest  []float64
}

// Validate checks that the split is non-empty and aligned.
func (s Split) Validate() error {
	if s.XTrain == nil || s.XTest == nil || s.XTrain.IsEmpty() || s.XTest.IsEmpty() {
		return ErrEmpty
	}
	trainRows, trainCols := s.XTrain.Dims()
	testRows, testCols := s.XTest.Dims()
	if trainCols != testCols {
		return fmt.Errorf("train has %d features, test has %d", trainCols, testCols)
	}
	if len(s.YTrain) != trainRows {
		return fmt.Errorf("%d train samples but %d targets", trainRows, len(s.YTrain))
	}
	if len(s.YTest) != testRows {
		return fmt.Errorf("%d test samples but %d targets", testRows, len(s.YTest))
	}
	return nil
}

// Timesteps returns the number of features per sample.
func (s Split) Timesteps() int {
	_, c := s.XTrain.Dims()
	return c
}

// Static serves fixed splits keyed by trait.
type Static map[string]Split

// Retrieve returns the split registered for d.Trait.
func (s Static) Retrieve(d Descriptor) (Split, error) {
	split, ok := s[d.Trait]
	if !ok {
		return Split{}, fmt.Errorf("no dataset for trait %q", d.Trait)
	}
	return split, nil
}

// Synthetic generates a series regression problem: each sample is a window
// of Timesteps features and the target is a fixed linear combination of them
// plus Gaussian noise.
//
// K, when positive and smaller than Timesteps, restricts samples to the K
// features nearest the end of the window. Unif draws features from U(0, 1)
// instead of N(0, 1).
type Synthetic struct {
	Samples      int
	Timesteps    int
	TestFraction float64
	Noise        float64
	Seed         int64
}

// Retrieve generates the split for d. The same descriptor and seed always
// yield the same data; the trait name perturbs the seed.
func (s Synthetic) Retrieve(d Descriptor) (Split, error) {
	if s.Samples < 2 || s.Timesteps < 1 {
		return Split{}, fmt.Errorf("synthetic: %d samples of %d steps: %w", s.Samples, s.Timesteps, ErrEmpty)
	}
	if s.TestFraction <= 0 || s.TestFraction >= 1 {
		return Split{}, fmt.Errorf("synthetic: test fraction %v outside (0, 1)", s.TestFraction)
	}

	steps := s.Timesteps
	if d.K > 0 && d.K < steps {
		steps = d.K
	}
	rng := rand.New(rand.NewSource(s.Seed + int64(traitHash(d.Trait))))

	coef := make([]float64, steps)
	for j := range coef {
		coef[j] = rng.NormFloat64()
	}

	x := mat.NewDense(s.Samples, steps, nil)
	y := make([]float64, s.Samples)
	for i := 0; i < s.Samples; i++ {
		row := x.RawRowView(i)
		for j := range row {
			if d.Unif {
				row[j] = rng.Float64()
			} else {
				row[j] = rng.NormFloat64()
			}
			y[i] += coef[j] * row[j]
		}
		y[i] += s.Noise * rng.NormFloat64()
	}

	nTest := int(float64(s.Samples) * s.TestFraction)
	if nTest < 1 {
		nTest = 1
	}
	nTrain := s.Samples - nTest
	if nTrain < 1 {
		return Split{}, fmt.Errorf("synthetic: no training samples left: %w", ErrEmpty)
	}

	return Split{
		XTrain: mat.DenseCopyOf(x.Slice(0, nTrain, 0, steps)),
		XTest:  mat.DenseCopyOf(x.Slice(nTrain, s.Samples, 0, steps)),
		YTrain: append([]float64(nil), y[:nTrain]...),
		YTest:  append([]float64(nil), y[nTrain:]...),
	}, nil
}

func traitHash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
