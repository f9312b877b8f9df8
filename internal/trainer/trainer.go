// Package trainer compiles a genome, trains the resulting network on a
// retrieved dataset and scores it by the Pearson correlation of its test
// predictions.
package trainer

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/FlavioCFOliveira/evocnn/internal/compiler"
	"github.com/FlavioCFOliveira/evocnn/internal/dataset"
	"github.com/FlavioCFOliveira/evocnn/internal/genome"
	"github.com/FlavioCFOliveira/evocnn/internal/layer"
	"github.com/FlavioCFOliveira/evocnn/internal/net"
)

// Undefined is the fitness reported when the correlation is not defined,
// for instance when every prediction is identical.
const Undefined = -1.0

// Training defaults.
const (
	DefaultEpochs    = 1200
	DefaultBatchSize = net.DefaultBatchSize
	DefaultMinDelta  = 0.1
	DefaultPatience  = 2
)

// Retriever supplies the train/test split for a dataset descriptor.
type Retriever interface {
	Retrieve(d dataset.Descriptor) (dataset.Split, error)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(d dataset.Descriptor) (dataset.Split, error)

// Retrieve calls f(d).
func (f RetrieverFunc) Retrieve(d dataset.Descriptor) (dataset.Split, error) {
	return f(d)
}

// Options configure TrainAndScore. Zero fields take the defaults of
// DefaultOptions, so Options{} trains the standard way.
type Options struct {
	Epochs    int // 0 means DefaultEpochs
	BatchSize int // 0 means DefaultBatchSize
	NoShuffle bool
	// A zero policy (empty Monitor) means val_loss, DefaultMinDelta, DefaultPatience.
	EarlyStopping net.EarlyStopping
	Seed          int64

	// Console receives the architecture line and the test scores. Nil discards them.
	Console io.Writer
	// Nil discards structured logs.
	Logger *slog.Logger
}

// DefaultOptions returns the standard training configuration: up to 1200
// shuffled epochs of batch 32, stopped once val_loss fails to improve by 0.1
// for two epochs.
func DefaultOptions() Options {
	return Options{
		Epochs:        DefaultEpochs,
		BatchSize:     DefaultBatchSize,
		EarlyStopping: defaultEarlyStopping(),
		Seed:          1,
	}
}

func defaultEarlyStopping() net.EarlyStopping {
	return net.NewEarlyStopping("val_loss", DefaultMinDelta, DefaultPatience)
}

// withDefaults resolves zero fields.
func (o Options) withDefaults() Options {
	if o.Epochs <= 0 {
		o.Epochs = DefaultEpochs
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.EarlyStopping.Monitor == "" {
		o.EarlyStopping = defaultEarlyStopping()
	}
	return o
}

// Result is the detailed outcome of a scored training run.
type Result struct {
	Fitness float64
	MSE     float64
	MAE     float64
	R       float64 // raw correlation, possibly NaN
	History *net.History
}

// TrainAndScore trains the network described by g on the dataset selected
// by d and returns its fitness in [-1, 1].
func TrainAndScore(g genome.Genome, d dataset.Descriptor, r Retriever, o Options) (float64, error) {
	res, err := Run(g, d, r, o)
	if err != nil {
		return 0, err
	}
	return res.Fitness, nil
}

// Run is TrainAndScore returning the test scores and training history
// alongside the fitness.
func Run(g genome.Genome, d dataset.Descriptor, r Retriever, o Options) (Result, error) {
	o = o.withDefaults()
	logger := o.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("run", uuid.NewString())
	console := o.Console
	if console == nil {
		console = io.Discard
	}

	split, err := r.Retrieve(d)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve %s: %w", d, err)
	}
	if err := split.Validate(); err != nil {
		return Result{}, fmt.Errorf("retrieve %s: %w", d, err)
	}
	logger.Debug("dataset retrieved",
		"dataset", d.String(),
		"train", len(split.YTrain),
		"test", len(split.YTest),
		"timesteps", split.Timesteps())

	model, err := compiler.Compile(g, layer.Shape{Steps: split.Timesteps(), Channels: 1}, compiler.Options{
		Console: console,
		Logger:  logger,
		Seed:    o.Seed,
	})
	if err != nil {
		return Result{}, err
	}
	defer model.Release()

	yTrain := column(split.YTrain)
	yTest := column(split.YTest)

	stopping := o.EarlyStopping
	history, err := model.Fit(split.XTrain, yTrain, net.FitConfig{
		Epochs:        o.Epochs,
		BatchSize:     o.BatchSize,
		Shuffle:       !o.NoShuffle,
		ValidationX:   split.XTest,
		ValidationY:   yTest,
		EarlyStopping: &stopping,
		Logger:        logger,
	})
	if err != nil {
		return Result{}, err
	}

	scores, err := model.Evaluate(split.XTest, yTest)
	if err != nil {
		return Result{}, err
	}
	mae := scores.Metrics["mae"]
	fmt.Fprintln(console, "Test mse:", scores.Loss)
	fmt.Fprintln(console, "Test mae:", mae)

	pred, err := model.Predict(split.XTest)
	if err != nil {
		return Result{}, err
	}
	corr := Pearson(mat.Col(nil, 0, pred), split.YTest)
	fmt.Fprintln(console, "Test r:", corr)

	fitness := Fitness(corr)
	logger.Info("scored",
		"architecture", g.Summary(),
		"epochs", len(history.Epochs),
		"mse", scores.Loss,
		"mae", mae,
		"r", corr,
		"fitness", fitness)

	return Result{
		Fitness: fitness,
		MSE:     scores.Loss,
		MAE:     mae,
		R:       corr,
		History: history,
	}, nil
}

// Pearson returns the correlation of pred and target, NaN when undefined.
func Pearson(pred, target []float64) float64 {
	if len(pred) != len(target) || len(pred) < 2 || constant(pred) || constant(target) {
		return math.NaN()
	}
	return stat.Correlation(pred, target, nil)
}

func constant(v []float64) bool {
	for _, x := range v[1:] {
		if x != v[0] {
			return false
		}
	}
	return true
}

// Fitness maps a correlation to a score: NaN becomes Undefined and other
// values are clamped to [-1, 1].
func Fitness(r float64) float64 {
	if math.IsNaN(r) {
		return Undefined
	}
	return math.Max(-1, math.Min(1, r))
}

func column(v []float64) *mat.Dense {
	return mat.NewDense(len(v), 1, append([]float64(nil), v...))
}
