package genome

import (
	"fmt"
	"strings"
)

// Activation is the activation kind shared by every hidden layer.
type Activation int

const (
	ActivationReLU Activation = iota + 1
	ActivationELU
	ActivationSoftplus
	ActivationLinear
	ActivationTanh
	ActivationSigmoid
)

var activationNames = map[Activation]string{
	ActivationReLU:     "relu",
	ActivationELU:      "elu",
	ActivationSoftplus: "softplus",
	ActivationLinear:   "linear",
	ActivationTanh:     "tanh",
	ActivationSigmoid:  "sigmoid",
}

// ParseActivation maps a genome value to an Activation.
func ParseActivation(s string) (Activation, error) {
	for k, name := range activationNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown activation %q", ErrInvalid, s)
}

func (a Activation) String() string {
	if name, ok := activationNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Activation(%d)", int(a))
}

func (a Activation) valid() bool {
	_, ok := activationNames[a]
	return ok
}

func (a Activation) MarshalText() ([]byte, error) {
	if !a.valid() {
		return nil, fmt.Errorf("%w: activation %d", ErrInvalid, int(a))
	}
	return []byte(a.String()), nil
}

func (a *Activation) UnmarshalText(b []byte) error {
	v, err := ParseActivation(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Optimizer is the training algorithm kind.
type Optimizer int

const (
	OptimizerRMSprop Optimizer = iota + 1
	OptimizerNadam
	OptimizerAdam
	OptimizerSGD
)

var optimizerNames = map[Optimizer]string{
	OptimizerRMSprop: "rmsprop",
	OptimizerNadam:   "nadam",
	OptimizerAdam:    "adam",
	OptimizerSGD:     "sgd",
}

// ParseOptimizer maps a genome value to an Optimizer.
func ParseOptimizer(s string) (Optimizer, error) {
	for k, name := range optimizerNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown optimizer %q", ErrInvalid, s)
}

func (o Optimizer) String() string {
	if name, ok := optimizerNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Optimizer(%d)", int(o))
}

func (o Optimizer) valid() bool {
	_, ok := optimizerNames[o]
	return ok
}

func (o Optimizer) MarshalText() ([]byte, error) {
	if !o.valid() {
		return nil, fmt.Errorf("%w: optimizer %d", ErrInvalid, int(o))
	}
	return []byte(o.String()), nil
}

func (o *Optimizer) UnmarshalText(b []byte) error {
	v, err := ParseOptimizer(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Stride selects how far the convolution window moves.
type Stride int

const (
	// StrideEqual moves the window by its own width (no overlap).
	StrideEqual Stride = iota + 1
	// StrideOne moves the window one step at a time.
	StrideOne
)

// ParseStride maps a genome value to a Stride.
func ParseStride(s string) (Stride, error) {
	switch strings.ToLower(s) {
	case "equal":
		return StrideEqual, nil
	case "one":
		return StrideOne, nil
	}
	return 0, fmt.Errorf("%w: unknown stride %q", ErrInvalid, s)
}

// Effective returns the convolution stride for a window of the given width.
func (s Stride) Effective(window int) int {
	switch s {
	case StrideEqual:
		return window
	default:
		return 1
	}
}

func (s Stride) String() string {
	switch s {
	case StrideEqual:
		return "equal"
	case StrideOne:
		return "one"
	}
	return fmt.Sprintf("Stride(%d)", int(s))
}

func (s Stride) valid() bool {
	return s == StrideEqual || s == StrideOne
}

func (s Stride) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("%w: stride %d", ErrInvalid, int(s))
	}
	return []byte(s.String()), nil
}

func (s *Stride) UnmarshalText(b []byte) error {
	v, err := ParseStride(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
