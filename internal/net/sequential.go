package net

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/FlavioCFOliveira/evocnn/internal/loss"
	"github.com/FlavioCFOliveira/evocnn/internal/opt"
)

// DefaultBatchSize is used by Fit, Evaluate and Predict when none is given.
const DefaultBatchSize = 32

// Compile builds every layer against the input shape and configures the
// model for training.
func (s *Sequential) Compile(optimizer opt.Optimizer, lossFn loss.Loss, metrics ...loss.Metric) error {
	if optimizer == nil || lossFn == nil {
		return fmt.Errorf("compile: optimizer and loss are required")
	}
	if err := s.build(); err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	s.opt = optimizer
	s.loss = lossFn
	s.metrics = metrics
	s.compiled = true
	return nil
}

// Optimizer returns the compiled optimizer.
func (s *Sequential) Optimizer() opt.Optimizer {
	return s.opt
}

// Loss returns the compiled loss.
func (s *Sequential) Loss() loss.Loss {
	return s.loss
}

// Metrics returns the compiled metrics.
func (s *Sequential) Metrics() []loss.Metric {
	return s.metrics
}

// FitConfig controls a training run.
type FitConfig struct {
	Epochs    int
	BatchSize int // 0 means DefaultBatchSize
	Shuffle   bool

	// Optional held-out data evaluated after every epoch.
	ValidationX *mat.Dense
	ValidationY *mat.Dense

	// Optional stopping policy.
	EarlyStopping *EarlyStopping

	Logger *slog.Logger
}

// Fit trains the model and returns the per-epoch and per-batch history.
func (s *Sequential) Fit(x, y *mat.Dense, cfg FitConfig) (*History, error) {
	rows, err := s.checkData(x, y)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	hasVal := cfg.ValidationX != nil
	if hasVal {
		if _, err := s.checkData(cfg.ValidationX, cfg.ValidationY); err != nil {
			return nil, fmt.Errorf("fit: validation data: %w", err)
		}
	}
	if cfg.Epochs < 0 {
		return nil, fmt.Errorf("fit: negative epoch count %d", cfg.Epochs)
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var stopper *tracker
	if cfg.EarlyStopping != nil {
		if err := cfg.EarlyStopping.validate(s.metricKeys(hasVal)); err != nil {
			return nil, fmt.Errorf("fit: %w", err)
		}
		stopper = cfg.EarlyStopping.newTracker()
	}

	history := &History{}
	order := make([]int, rows)
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if cfg.Shuffle {
			s.rng.Shuffle(rows, func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		// Training values are running averages over the epoch's batches.
		logs := EpochLog{Epoch: epoch, Values: map[string]float64{"loss": 0}}
		for start := 0; start < rows; start += batchSize {
			end := min(start+batchSize, rows)
			by := gatherRows(y, order[start:end])
			yPred, l := s.trainBatch(gatherRows(x, order[start:end]), by)

			history.BatchLosses = append(history.BatchLosses, l)
			weight := float64(end-start) / float64(rows)
			logs.Values["loss"] += l * weight
			for _, m := range s.metrics {
				logs.Values[m.Name()] += m.Compute(yPred, by) * weight
			}
		}
		if hasVal {
			valLoss, valMetrics := s.evaluate(cfg.ValidationX, cfg.ValidationY, batchSize)
			logs.Values["val_loss"] = valLoss
			for k, v := range valMetrics {
				logs.Values["val_"+k] = v
			}
		}
		history.Epochs = append(history.Epochs, logs)
		logger.Debug("epoch", logs.attrs()...)

		if stopper != nil && stopper.observe(logs.Values[cfg.EarlyStopping.Monitor]) {
			history.Stopped = true
			history.StoppedEpoch = epoch
			logger.Info("early stopping",
				"epoch", epoch+1,
				"monitor", cfg.EarlyStopping.Monitor,
				"best", stopper.best,
				"patience", cfg.EarlyStopping.Patience)
			break
		}
	}

	return history, nil
}

// Scores holds the loss and metric values of an evaluation.
type Scores struct {
	Loss    float64
	Metrics map[string]float64
}

// Evaluate returns the loss (including regularization) and the compiled
// metrics on a dataset.
func (s *Sequential) Evaluate(x, y *mat.Dense) (Scores, error) {
	if _, err := s.checkData(x, y); err != nil {
		return Scores{}, fmt.Errorf("evaluate: %w", err)
	}
	l, m := s.evaluate(x, y, DefaultBatchSize)
	return Scores{Loss: l, Metrics: m}, nil
}

// Predict performs inference on a batch of samples.
func (s *Sequential) Predict(x *mat.Dense) (*mat.Dense, error) {
	if _, err := s.checkData(x, nil); err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return s.predict(x, DefaultBatchSize), nil
}

func (s *Sequential) predict(x *mat.Dense, batchSize int) *mat.Dense {
	rows, _ := x.Dims()
	out := mat.NewDense(rows, s.OutputShape().Size(), nil)
	for start := 0; start < rows; start += batchSize {
		end := min(start+batchSize, rows)
		chunk := s.Forward(mat.DenseCopyOf(x.Slice(start, end, 0, s.input.Size())), false)
		for i := start; i < end; i++ {
			out.SetRow(i, chunk.RawRowView(i-start))
		}
	}
	return out
}

func (s *Sequential) evaluate(x, y *mat.Dense, batchSize int) (float64, map[string]float64) {
	pred := s.predict(x, batchSize)
	l := s.loss.Forward(pred, y) + s.RegularizationLoss()
	m := make(map[string]float64, len(s.metrics))
	for _, metric := range s.metrics {
		m[metric.Name()] = metric.Compute(pred, y)
	}
	return l, m
}

func (s *Sequential) metricKeys(withValidation bool) []string {
	keys := []string{"loss"}
	for _, m := range s.metrics {
		keys = append(keys, m.Name())
	}
	if withValidation {
		n := len(keys)
		for _, k := range keys[:n] {
			keys = append(keys, "val_"+k)
		}
	}
	return keys
}

// Summary writes a summary of the network architecture.
func (s *Sequential) Summary(w io.Writer) {
	fmt.Fprintln(w, "Model: Sequential")
	fmt.Fprintln(w, "_________________________________________________________________")
	fmt.Fprintf(w, "%-25s %-20s %-10s\n", "Layer (type)", "Output Shape", "Param #")
	fmt.Fprintln(w, "=================================================================")

	for i, l := range s.layers {
		fmt.Fprintf(w, "%-25s %-20s %-10d\n", fmt.Sprintf("%s_%d", l.Name(), i), l.OutShape(), len(l.Params()))
	}
	fmt.Fprintln(w, "=================================================================")
	fmt.Fprintf(w, "Total params: %d\n", s.CountParams())
	fmt.Fprintln(w, "_________________________________________________________________")
}

// gatherRows copies the selected rows of m into a new matrix.
func gatherRows(m *mat.Dense, idx []int) *mat.Dense {
	_, cols := m.Dims()
	out := mat.NewDense(len(idx), cols, nil)
	for i, r := range idx {
		out.SetRow(i, m.RawRowView(r))
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
