// Package genome defines the hyperparameter set that describes one candidate
// network and decodes it from the flat parameter maps a search produces.
package genome

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
)

// ErrInvalid is wrapped by every decoding and validation error.
var ErrInvalid = errors.New("invalid genome")

// Keys recognized in a parameter map.
const (
	KeyNbLayers    = "nb_layers"
	KeyNbNeurons   = "nb_neurons"
	KeyActivation  = "activation"
	KeyOptimizer   = "optimizer"
	KeyDropout     = "dropout"
	KeyWeightDecay = "weight_decay"
	KeyNbCNNLayers = "nb_cnn_layers"
	KeyBatchNorm   = "batch_norm"
	KeyFilters     = "filters"
	KeySizeWindow  = "size_window"
	KeyStride      = "stride"
)

// Genome is the flat set of architecture and training hyperparameters of
// one candidate network.
type Genome struct {
	NbLayers    int        `json:"nb_layers"`
	NbNeurons   int        `json:"nb_neurons"`
	Activation  Activation `json:"activation"`
	Optimizer   Optimizer  `json:"optimizer"`
	Dropout     float64    `json:"dropout"`
	WeightDecay float64    `json:"weight_decay"`
	NbCNNLayers int        `json:"nb_cnn_layers"`
	BatchNorm   bool       `json:"batch_norm"`
	Filters     int        `json:"filters"`
	SizeWindow  int        `json:"size_window"`
	Stride      Stride     `json:"stride"`
}

// Validate reports every out-of-range field.
func (g Genome) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if g.NbLayers < 0 {
		bad("%s = %d is negative", KeyNbLayers, g.NbLayers)
	}
	if g.NbLayers > 0 && g.NbNeurons <= 0 {
		bad("%s = %d must be positive", KeyNbNeurons, g.NbNeurons)
	}
	if g.NbCNNLayers < 0 {
		bad("%s = %d is negative", KeyNbCNNLayers, g.NbCNNLayers)
	}
	if g.NbCNNLayers > 0 {
		if g.Filters <= 0 {
			bad("%s = %d must be positive", KeyFilters, g.Filters)
		}
		if g.SizeWindow <= 0 {
			bad("%s = %d must be positive", KeySizeWindow, g.SizeWindow)
		}
	}
	if g.Dropout < 0 || g.Dropout >= 1 {
		bad("%s = %v outside [0, 1)", KeyDropout, g.Dropout)
	}
	if g.WeightDecay < 0 {
		bad("%s = %v is negative", KeyWeightDecay, g.WeightDecay)
	}
	if !g.Activation.valid() {
		bad("%s %v is not supported", KeyActivation, g.Activation)
	}
	if !g.Optimizer.valid() {
		bad("%s %v is not supported", KeyOptimizer, g.Optimizer)
	}
	if !g.Stride.valid() {
		bad("%s %v is not supported", KeyStride, g.Stride)
	}
	return errors.Join(errs...)
}

// EffectiveStride returns the convolution stride the genome selects.
func (g Genome) EffectiveStride() int {
	return g.Stride.Effective(g.SizeWindow)
}

// Summary returns the one-line architecture description.
func (g Genome) Summary() string {
	return fmt.Sprintf("Architecture:[%d,%d,%s]*%d,bn=%s;%d,%s,%s,%d,dr=%.2f,wd=%.2f",
		g.SizeWindow, g.Filters, g.Stride, g.NbCNNLayers, titleBool(g.BatchNorm),
		g.NbNeurons, g.Activation, g.Optimizer, g.NbLayers,
		g.Dropout, g.WeightDecay)
}

func titleBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// Map returns the genome as a parameter map.
func (g Genome) Map() map[string]any {
	return map[string]any{
		KeyNbLayers:    g.NbLayers,
		KeyNbNeurons:   g.NbNeurons,
		KeyActivation:  g.Activation.String(),
		KeyOptimizer:   g.Optimizer.String(),
		KeyDropout:     g.Dropout,
		KeyWeightDecay: g.WeightDecay,
		KeyNbCNNLayers: g.NbCNNLayers,
		KeyBatchNorm:   g.BatchNorm,
		KeyFilters:     g.Filters,
		KeySizeWindow:  g.SizeWindow,
		KeyStride:      g.Stride.String(),
	}
}

// FromMap decodes and validates a parameter map. Every recognized key is
// required; other keys are ignored. Numbers may arrive as any numeric type,
// as maps decoded from JSON carry float64.
func FromMap(raw map[string]any) (Genome, error) {
	var (
		g       Genome
		missing []string
		errs    []error
	)
	lookup := func(key string) (any, bool) {
		v, ok := raw[key]
		if !ok {
			missing = append(missing, key)
		}
		return v, ok
	}
	setInt := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, ok := asInt(v)
			if !ok {
				errs = append(errs, fmt.Errorf("%w: %s = %v is not an integer", ErrInvalid, key, v))
			}
			*dst = n
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			f, ok := asFloat64(v)
			if !ok {
				errs = append(errs, fmt.Errorf("%w: %s = %v is not a number", ErrInvalid, key, v))
			}
			*dst = f
		}
	}
	setKind := func(key string, parse func(string) error) {
		if v, ok := lookup(key); ok {
			s, ok := asString(v)
			if !ok {
				errs = append(errs, fmt.Errorf("%w: %s = %v is not a string", ErrInvalid, key, v))
				return
			}
			if err := parse(s); err != nil {
				errs = append(errs, err)
			}
		}
	}

	setInt(KeyNbLayers, &g.NbLayers)
	setInt(KeyNbNeurons, &g.NbNeurons)
	setKind(KeyActivation, func(s string) (err error) { g.Activation, err = ParseActivation(s); return })
	setKind(KeyOptimizer, func(s string) (err error) { g.Optimizer, err = ParseOptimizer(s); return })
	setFloat(KeyDropout, &g.Dropout)
	setFloat(KeyWeightDecay, &g.WeightDecay)
	setInt(KeyNbCNNLayers, &g.NbCNNLayers)
	if v, ok := lookup(KeyBatchNorm); ok {
		b, ok := asBool(v)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s = %v is not a boolean", ErrInvalid, KeyBatchNorm, v))
		}
		g.BatchNorm = b
	}
	setInt(KeyFilters, &g.Filters)
	setInt(KeySizeWindow, &g.SizeWindow)
	setKind(KeyStride, func(s string) (err error) { g.Stride, err = ParseStride(s); return })

	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", ")))
	}
	if err := errors.Join(errs...); err != nil {
		return Genome{}, err
	}
	if err := g.Validate(); err != nil {
		return Genome{}, err
	}
	return g, nil
}

// UnmarshalJSON decodes through FromMap so JSON documents get the same
// leniency and validation as parameter maps.
func (g *Genome) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	decoded, err := FromMap(raw)
	if err != nil {
		return err
	}
	*g = decoded
	return nil
}

// Load reads a genome from a JSON file.
func Load(path string) (Genome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Genome{}, err
	}
	var g Genome
	if err := json.Unmarshal(data, &g); err != nil {
		return Genome{}, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(x) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	if n, ok := asFloat64(v); ok && (n == 0 || n == 1) {
		return n == 1, true
	}
	return false, false
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int8:
		return int(x), true
	case int16:
		return int(x), true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case uint:
		return int(x), true
	case uint8:
		return int(x), true
	case uint16:
		return int(x), true
	case uint32:
		return int(x), true
	case uint64:
		return int(x), true
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n), true
		}
	}
	f, ok := asFloat64(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
