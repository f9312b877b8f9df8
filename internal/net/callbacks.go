package net

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Mode selects whether a monitored value should decrease or increase.
type Mode int

const (
	// ModeAuto infers the direction from the monitor name: values whose
	// name contains "acc" are maximized, everything else is minimized.
	ModeAuto Mode = iota
	ModeMin
	ModeMax
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeMin:
		return "min"
	case ModeMax:
		return "max"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// EarlyStopping stops training when a monitored value has stopped improving.
// It is plain configuration; each Fit call tracks its own progress, so one
// value can be shared by any number of runs.
type EarlyStopping struct {
	Monitor  string  // history key, e.g. "val_loss"
	MinDelta float64 // minimum change that counts as an improvement
	Patience int     // epochs without improvement before stopping
	Mode     Mode
}

// NewEarlyStopping creates a policy in ModeAuto.
func NewEarlyStopping(monitor string, minDelta float64, patience int) EarlyStopping {
	return EarlyStopping{
		Monitor:  monitor,
		MinDelta: minDelta,
		Patience: patience,
		Mode:     ModeAuto,
	}
}

// Direction resolves ModeAuto to ModeMin or ModeMax.
func (e EarlyStopping) Direction() Mode {
	if e.Mode != ModeAuto {
		return e.Mode
	}
	if strings.Contains(e.Monitor, "acc") {
		return ModeMax
	}
	return ModeMin
}

func (e EarlyStopping) validate(available []string) error {
	if !slices.Contains(available, e.Monitor) {
		return fmt.Errorf("early stopping monitors %q, available: %s", e.Monitor, strings.Join(available, ", "))
	}
	if e.Patience < 0 {
		return fmt.Errorf("early stopping patience %d is negative", e.Patience)
	}
	if e.Mode < ModeAuto || e.Mode > ModeMax {
		return fmt.Errorf("early stopping mode %v is invalid", e.Mode)
	}
	return nil
}

func (e EarlyStopping) newTracker() *tracker {
	t := &tracker{
		minDelta: math.Abs(e.MinDelta),
		patience: e.Patience,
		max:      e.Direction() == ModeMax,
	}
	if t.max {
		t.best = math.Inf(-1)
	} else {
		t.best = math.Inf(1)
	}
	return t
}

// tracker holds the progress of one training run against an EarlyStopping.
type tracker struct {
	minDelta float64
	patience int
	max      bool

	best float64
	wait int
}

// observe records an epoch value and reports whether training should stop.
// NaN never counts as an improvement.
func (t *tracker) observe(v float64) bool {
	var improved bool
	if t.max {
		improved = v-t.minDelta > t.best
	} else {
		improved = v+t.minDelta < t.best
	}
	if improved {
		t.best = v
		t.wait = 0
		return false
	}
	t.wait++
	return t.wait >= t.patience
}
