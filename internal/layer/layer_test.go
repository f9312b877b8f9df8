// Package layer provides unit tests for neural network layers.
package layer

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/FlavioCFOliveira/evocnn/internal/activations"
)

func randomBatch(rng *rand.Rand, rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(rows, cols, data)
}

// weightedSum is the scalar probe sum(out .* w) whose gradient w.r.t. out is w.
func weightedSum(out, w *mat.Dense) float64 {
	var p mat.Dense
	p.MulElem(out, w)
	return mat.Sum(&p)
}

// checkGradients compares Backward against finite differences for both the
// parameters and the input of l.
func checkGradients(t *testing.T, l Layer, x *mat.Dense, tol float64) {
	t.Helper()
	rng := rand.New(rand.NewSource(7))

	out := l.Forward(x, true)
	r, c := out.Dims()
	probe := randomBatch(rng, r, c)
	dx := l.Backward(probe)
	analytic := append([]float64(nil), l.Gradients()...)

	if params := l.Params(); len(params) > 0 {
		orig := append([]float64(nil), params...)
		numeric := fd.Gradient(nil, func(p []float64) float64 {
			copy(params, p)
			return weightedSum(l.Forward(x, true), probe)
		}, orig, &fd.Settings{Formula: fd.Central, Step: 1e-6})
		copy(params, orig)

		if !floats.EqualApprox(analytic, numeric, tol) {
			t.Errorf("%s: parameter gradient mismatch\nanalytic %v\nnumeric  %v", l.Name(), analytic, numeric)
		}
	}

	xr, xc := x.Dims()
	xData := append([]float64(nil), x.RawMatrix().Data...)
	numericX := fd.Gradient(nil, func(v []float64) float64 {
		return weightedSum(l.Forward(mat.NewDense(xr, xc, append([]float64(nil), v...)), true), probe)
	}, xData, &fd.Settings{Formula: fd.Central, Step: 1e-6})

	if !floats.EqualApprox(dx.RawMatrix().Data, numericX, tol) {
		t.Errorf("%s: input gradient mismatch\nanalytic %v\nnumeric  %v", l.Name(), dx.RawMatrix().Data, numericX)
	}
}

// TestDenseForward tests the affine map with hand-set weights.
func TestDenseForward(t *testing.T) {
	d := NewDense(2, activations.Tanh{})
	if err := d.Build(Shape{Steps: 1, Channels: 2}, rand.New(rand.NewSource(1))); err != nil {
		t.Fatal(err)
	}

	// Set weights to identity for predictable output
	d.Kernel().Set(0, 0, 1.0)
	d.Kernel().Set(0, 1, 0.0)
	d.Kernel().Set(1, 0, 0.0)
	d.Kernel().Set(1, 1, 1.0)
	d.Bias()[0] = 0
	d.Bias()[1] = 0.5

	out := d.Forward(mat.NewDense(1, 2, []float64{1.0, 2.0}), false)

	if math.Abs(out.At(0, 0)-math.Tanh(1.0)) > 1e-12 {
		t.Errorf("output[0] = %v, want %v", out.At(0, 0), math.Tanh(1.0))
	}
	if math.Abs(out.At(0, 1)-math.Tanh(2.5)) > 1e-12 {
		t.Errorf("output[1] = %v, want %v", out.At(0, 1), math.Tanh(2.5))
	}
}

// TestDenseGradients checks Dense backpropagation numerically.
func TestDenseGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	d := NewDense(3, activations.Tanh{})
	if err := d.Build(Shape{Steps: 1, Channels: 4}, rng); err != nil {
		t.Fatal(err)
	}
	checkGradients(t, d, randomBatch(rng, 5, 4), 1e-5)
}

// TestDenseL2Gradient checks that the kernel penalty gradient is included.
func TestDenseL2Gradient(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	d := NewDense(2, activations.Linear{})
	d.SetKernelRegularizer(NewL2(0.1))
	if err := d.Build(Shape{Steps: 1, Channels: 3}, rng); err != nil {
		t.Fatal(err)
	}

	x := randomBatch(rng, 4, 3)
	probe := randomBatch(rng, 4, 2)
	d.Forward(x, true)
	d.Backward(probe)
	analytic := append([]float64(nil), d.Gradients()...)

	params := d.Params()
	orig := append([]float64(nil), params...)
	numeric := fd.Gradient(nil, func(p []float64) float64 {
		copy(params, p)
		return weightedSum(d.Forward(x, true), probe) + d.RegularizationLoss()
	}, orig, nil)
	copy(params, orig)

	if !floats.EqualApprox(analytic, numeric, 1e-5) {
		t.Errorf("gradient mismatch\nanalytic %v\nnumeric  %v", analytic, numeric)
	}
}

// TestDenseBuildErrors tests that impossible shapes are rejected.
func TestDenseBuildErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if err := NewDense(0, activations.ReLU{}).Build(Shape{Steps: 1, Channels: 3}, rng); !errors.Is(err, ErrShape) {
		t.Errorf("zero units: err = %v, want ErrShape", err)
	}
	if err := NewDense(3, activations.ReLU{}).Build(Shape{}, rng); !errors.Is(err, ErrShape) {
		t.Errorf("empty input: err = %v, want ErrShape", err)
	}
}

// TestConv1DOutputShape tests valid-padding output lengths.
func TestConv1DOutputShape(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tests := []struct {
		steps, kernel, stride, want int
	}{
		{20, 3, 1, 18},
		{20, 3, 3, 6},
		{20, 10, 10, 2},
		{5, 5, 1, 1},
	}
	for _, tt := range tests {
		c := NewConv1D(4, tt.kernel, tt.stride, activations.ReLU{})
		if err := c.Build(Shape{Steps: tt.steps, Channels: 1}, rng); err != nil {
			t.Fatalf("Build(%+v): %v", tt, err)
		}
		if got := c.OutShape(); got.Steps != tt.want || got.Channels != 4 {
			t.Errorf("%+v: out shape %v, want (%d, 4)", tt, got, tt.want)
		}
	}
}

// TestConv1DForward tests a hand-computed convolution.
func TestConv1DForward(t *testing.T) {
	c := NewConv1D(1, 2, 1, activations.Linear{})
	if err := c.Build(Shape{Steps: 4, Channels: 1}, rand.New(rand.NewSource(1))); err != nil {
		t.Fatal(err)
	}
	c.Kernel().Set(0, 0, 1.0)
	c.Kernel().Set(1, 0, -1.0)
	c.Bias()[0] = 0.5

	out := c.Forward(mat.NewDense(1, 4, []float64{1, 3, 6, 10}), false)
	want := []float64{1 - 3 + 0.5, 3 - 6 + 0.5, 6 - 10 + 0.5}
	if !floats.EqualApprox(out.RawRowView(0), want, 1e-12) {
		t.Errorf("output = %v, want %v", out.RawRowView(0), want)
	}
}

// TestConv1DGradients checks Conv1D backpropagation numerically, with
// overlapping and non-overlapping windows.
func TestConv1DGradients(t *testing.T) {
	for _, stride := range []int{1, 2, 3} {
		rng := rand.New(rand.NewSource(int64(stride)))
		c := NewConv1D(3, 3, stride, activations.NewELU(1.0))
		c.SetKernelRegularizer(NewL2(0))
		if err := c.Build(Shape{Steps: 9, Channels: 2}, rng); err != nil {
			t.Fatal(err)
		}
		checkGradients(t, c, randomBatch(rng, 3, 18), 1e-5)
	}
}

// TestConv1DBuildErrors tests that a kernel longer than the input is rejected.
func TestConv1DBuildErrors(t *testing.T) {
	c := NewConv1D(4, 10, 1, activations.ReLU{})
	err := c.Build(Shape{Steps: 5, Channels: 1}, rand.New(rand.NewSource(1)))
	if !errors.Is(err, ErrShape) {
		t.Errorf("err = %v, want ErrShape", err)
	}
}

// TestMaxPool1D tests pooling values, shape and gradient routing.
func TestMaxPool1D(t *testing.T) {
	m := NewMaxPool1D(2, 0)
	if err := m.Build(Shape{Steps: 5, Channels: 2}, nil); err != nil {
		t.Fatal(err)
	}
	if got := m.OutShape(); got.Steps != 2 || got.Channels != 2 {
		t.Fatalf("out shape %v, want (2, 2)", got)
	}

	// steps: (1,9) (4,2) (3,3) (0,8) (7,7)
	x := mat.NewDense(1, 10, []float64{1, 9, 4, 2, 3, 3, 0, 8, 7, 7})
	out := m.Forward(x, true)
	want := []float64{4, 9, 3, 8}
	if !floats.Equal(out.RawRowView(0), want) {
		t.Errorf("output = %v, want %v", out.RawRowView(0), want)
	}

	dx := m.Backward(mat.NewDense(1, 4, []float64{1, 2, 3, 4}))
	wantDx := []float64{0, 2, 1, 0, 3, 0, 0, 4, 0, 0}
	if !floats.Equal(dx.RawRowView(0), wantDx) {
		t.Errorf("dx = %v, want %v", dx.RawRowView(0), wantDx)
	}
}

// TestBatchNormTraining tests that training output is normalized per channel.
func TestBatchNormTraining(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	b := NewBatchNorm(0.99, 1e-3)
	if err := b.Build(Shape{Steps: 3, Channels: 2}, rng); err != nil {
		t.Fatal(err)
	}

	x := randomBatch(rng, 8, 6)
	x.Scale(5, x)
	out := b.Forward(x, true)

	for c := 0; c < 2; c++ {
		var sum, sq float64
		for n := 0; n < 8; n++ {
			for s := 0; s < 3; s++ {
				v := out.At(n, s*2+c)
				sum += v
				sq += v * v
			}
		}
		mean := sum / 24
		if math.Abs(mean) > 1e-9 {
			t.Errorf("channel %d mean = %v, want 0", c, mean)
		}
		if v := sq/24 - mean*mean; math.Abs(v-1) > 1e-3 {
			t.Errorf("channel %d variance = %v, want about 1", c, v)
		}
	}
	if b.MovingMean()[0] == 0 {
		t.Error("moving mean was not updated")
	}
}

// TestBatchNormMovingStatistics tests the running mean and unbiased variance update.
func TestBatchNormMovingStatistics(t *testing.T) {
	b := NewBatchNorm(0.9, 1e-3)
	if err := b.Build(Shape{Steps: 2, Channels: 1}, nil); err != nil {
		t.Fatal(err)
	}
	// Four values 1, 3, 5, 7: mean 4, population variance 5, sample variance 20/3.
	b.Forward(mat.NewDense(2, 2, []float64{1, 3, 5, 7}), true)

	if want := 0.1 * 4; math.Abs(b.MovingMean()[0]-want) > 1e-12 {
		t.Errorf("moving mean = %v, want %v", b.MovingMean()[0], want)
	}
	if want := 0.9 + 0.1*20.0/3; math.Abs(b.MovingVariance()[0]-want) > 1e-12 {
		t.Errorf("moving variance = %v, want %v", b.MovingVariance()[0], want)
	}
}

// TestBatchNormInference tests that inference uses the running statistics.
func TestBatchNormInference(t *testing.T) {
	b := NewBatchNorm(0.99, 1e-3)
	if err := b.Build(Shape{Steps: 1, Channels: 1}, nil); err != nil {
		t.Fatal(err)
	}
	// Fresh layer: mean 0, variance 1, gamma 1, beta 0.
	out := b.Forward(mat.NewDense(2, 1, []float64{2, -4}), false)
	scale := 1 / math.Sqrt(1+1e-3)
	if math.Abs(out.At(0, 0)-2*scale) > 1e-12 || math.Abs(out.At(1, 0)+4*scale) > 1e-12 {
		t.Errorf("output = %v, want %v", out.RawMatrix().Data, []float64{2 * scale, -4 * scale})
	}
}

// TestBatchNormGradients checks BatchNorm backpropagation numerically.
func TestBatchNormGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	b := NewBatchNorm(0.99, 1e-3)
	if err := b.Build(Shape{Steps: 2, Channels: 3}, rng); err != nil {
		t.Fatal(err)
	}
	b.Params()[0] = 1.5
	b.Params()[4] = -0.3
	checkGradients(t, b, randomBatch(rng, 4, 6), 1e-4)
}

// TestDropoutTraining tests that dropout zeros and rescales during training.
func TestDropoutTraining(t *testing.T) {
	d := NewDropout(0.5)
	if err := d.Build(Shape{Steps: 1, Channels: 1000}, rand.New(rand.NewSource(42))); err != nil {
		t.Fatal(err)
	}

	x := mat.NewDense(1, 1000, nil)
	for i := 0; i < 1000; i++ {
		x.Set(0, i, 1.0)
	}
	out := d.Forward(x, true)

	nonZero := 0
	for _, v := range out.RawRowView(0) {
		switch v {
		case 0:
		case 2:
			nonZero++
		default:
			t.Fatalf("unexpected output value %v", v)
		}
	}
	// Approximately 50% should survive
	if nonZero < 400 || nonZero > 600 {
		t.Errorf("Expected ~50%% non-zero outputs, got %d/1000", nonZero)
	}

	// Gradient flows only through kept positions
	grad := mat.NewDense(1, 1000, nil)
	for i := 0; i < 1000; i++ {
		grad.Set(0, i, 1.0)
	}
	dx := d.Backward(grad)
	if !floats.Equal(dx.RawRowView(0), out.RawRowView(0)) {
		t.Error("gradient mask does not match forward mask")
	}
}

// TestDropoutInference tests that dropout is the identity outside training.
func TestDropoutInference(t *testing.T) {
	d := NewDropout(0.5)
	if err := d.Build(Shape{Steps: 1, Channels: 4}, rand.New(rand.NewSource(1))); err != nil {
		t.Fatal(err)
	}
	x := mat.NewDense(1, 4, []float64{1, 2, 3, 4})
	out := d.Forward(x, false)
	if !mat.Equal(out, x) {
		t.Errorf("output = %v, want input", out.RawRowView(0))
	}
}

// TestDropoutRateValidation tests that rate must be in [0, 1).
func TestDropoutRateValidation(t *testing.T) {
	for _, rate := range []float64{-0.1, 1.0} {
		if err := NewDropout(rate).Build(Shape{Steps: 1, Channels: 2}, nil); !errors.Is(err, ErrShape) {
			t.Errorf("rate %v: err = %v, want ErrShape", rate, err)
		}
	}
}

// TestFlatten tests that Flatten only changes the declared shape.
func TestFlatten(t *testing.T) {
	f := NewFlatten()
	if err := f.Build(Shape{Steps: 3, Channels: 2}, nil); err != nil {
		t.Fatal(err)
	}
	if got := f.OutShape(); got.Steps != 1 || got.Channels != 6 {
		t.Errorf("out shape %v, want (1, 6)", got)
	}
	x := mat.NewDense(1, 6, []float64{1, 2, 3, 4, 5, 6})
	if !mat.Equal(f.Forward(x, true), x) {
		t.Error("Flatten changed the data")
	}
	if len(f.Params()) != 0 {
		t.Errorf("Expected 0 params, got %d", len(f.Params()))
	}
}

// TestL2 tests the penalty and its gradient.
func TestL2(t *testing.T) {
	r := NewL2(0.075)
	w := []float64{1, -2}
	if got := r.Penalty(w); math.Abs(got-0.075*5) > 1e-12 {
		t.Errorf("Penalty = %v, want %v", got, 0.075*5)
	}
	grad := []float64{1, 1}
	r.Gradient(w, grad)
	want := []float64{1 + 0.15, 1 - 0.3}
	if !floats.EqualApprox(grad, want, 1e-12) {
		t.Errorf("grad = %v, want %v", grad, want)
	}
}

// TestHostDevice tests that the host description is populated.
func TestHostDevice(t *testing.T) {
	d := HostDevice()
	if d.GOMAXPROCS < 1 {
		t.Errorf("GOMAXPROCS = %d", d.GOMAXPROCS)
	}
	if d.String() == "" {
		t.Error("empty device description")
	}
}
