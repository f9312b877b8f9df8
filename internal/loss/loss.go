// Package loss provides loss functions and metrics over batches.
package loss

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Loss is a loss function with derivative.
// Batches are matrices with one sample per row.
type Loss interface {
	// Forward computes the mean loss over the batch.
	Forward(yPred, yTrue *mat.Dense) float64

	// Backward computes the gradient of the mean loss w.r.t. prediction.
	Backward(yPred, yTrue *mat.Dense) *mat.Dense

	// Name returns the identifier used in logs and history records.
	Name() string
}

// Metric is a monitored quantity that is not differentiated.
type Metric interface {
	Compute(yPred, yTrue *mat.Dense) float64
	Name() string
}

func checkDims(who string, yPred, yTrue *mat.Dense) (int, int) {
	r, c := yPred.Dims()
	tr, tc := yTrue.Dims()
	if r != tr || c != tc {
		panic(fmt.Sprintf("%s: prediction %dx%d and target %dx%d must have same shape", who, r, c, tr, tc))
	}
	return r, c
}

// MSE (Mean Squared Error) loss.
type MSE struct{}

// Forward computes mean squared error: (1/n) * sum((y_pred - y_true)^2)
func (m MSE) Forward(yPred, yTrue *mat.Dense) float64 {
	r, c := checkDims("MSE", yPred, yTrue)
	if r*c == 0 {
		return 0
	}
	var diff mat.Dense
	diff.Sub(yPred, yTrue)
	raw := diff.RawMatrix().Data
	return floats.Dot(raw, raw) / float64(r*c)
}

// Backward computes gradient: dL/dy_pred = (2/n) * (y_pred - y_true)
func (m MSE) Backward(yPred, yTrue *mat.Dense) *mat.Dense {
	r, c := checkDims("MSE", yPred, yTrue)
	grad := mat.NewDense(r, c, nil)
	grad.Sub(yPred, yTrue)
	grad.Scale(2/float64(r*c), grad)
	return grad
}

func (m MSE) Name() string { return "mse" }

// MAE (Mean Absolute Error) metric.
type MAE struct{}

// Compute returns (1/n) * sum(|y_pred - y_true|)
func (m MAE) Compute(yPred, yTrue *mat.Dense) float64 {
	r, c := checkDims("MAE", yPred, yTrue)
	if r*c == 0 {
		return 0
	}
	var diff mat.Dense
	diff.Sub(yPred, yTrue)
	var sum float64
	for _, v := range diff.RawMatrix().Data {
		sum += math.Abs(v)
	}
	return sum / float64(r*c)
}

func (m MAE) Name() string { return "mae" }
