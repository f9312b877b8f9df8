package net

import (
	"sort"
)

// EpochLog holds the values recorded at the end of one epoch.
// Keys are "loss", the metric names, and their "val_" counterparts.
type EpochLog struct {
	Epoch  int
	Values map[string]float64
}

func (l EpochLog) attrs() []any {
	keys := make([]string, 0, len(l.Values))
	for k := range l.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := []any{"epoch", l.Epoch + 1}
	for _, k := range keys {
		attrs = append(attrs, k, l.Values[k])
	}
	return attrs
}

// History is the record of a Fit call.
type History struct {
	Epochs []EpochLog

	// BatchLosses holds the training loss of every mini-batch in order.
	BatchLosses []float64

	// Stopped reports whether early stopping ended the run, at StoppedEpoch
	// (zero-based).
	Stopped      bool
	StoppedEpoch int
}

// Series returns the values of key across epochs. Epochs without the key
// are skipped.
func (h *History) Series(key string) []float64 {
	out := make([]float64, 0, len(h.Epochs))
	for _, e := range h.Epochs {
		if v, ok := e.Values[key]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Last returns the value of key at the final epoch.
func (h *History) Last(key string) (float64, bool) {
	if len(h.Epochs) == 0 {
		return 0, false
	}
	v, ok := h.Epochs[len(h.Epochs)-1].Values[key]
	return v, ok
}

// Best returns the smallest finite value of key and its epoch.
func (h *History) Best(key string) (float64, int, bool) {
	best, at, found := 0.0, -1, false
	for _, e := range h.Epochs {
		v, ok := e.Values[key]
		if !ok || !finite(v) {
			continue
		}
		if !found || v < best {
			best, at, found = v, e.Epoch, true
		}
	}
	return best, at, found
}
