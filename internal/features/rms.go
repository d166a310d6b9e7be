// Package features computes summary statistics over sample windows.
package features

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrEmptyInput is returned when a statistic is requested over no samples.
var ErrEmptyInput = errors.New("empty input")

// RMS returns the root mean square of vals.
func RMS(vals []float64) (float64, error) {
	if len(vals) == 0 {
		return 0, ErrEmptyInput
	}
	return math.Sqrt(floats.Dot(vals, vals) / float64(len(vals))), nil
}

// Channel extracts one channel from an interleaved window holding arity
// channels per cycle. Channel 0 is the first value of each cycle.
func Channel(window []float64, channel, arity int) ([]float64, error) {
	if arity <= 0 {
		return nil, fmt.Errorf("arity must be > 0, got %d", arity)
	}
	if channel < 0 || channel >= arity {
		return nil, fmt.Errorf("channel %d out of range [0, %d)", channel, arity)
	}
	if channel >= len(window) {
		return nil, nil
	}
	out := make([]float64, 0, (len(window)-channel+arity-1)/arity)
	for i := channel; i < len(window); i += arity {
		out = append(out, window[i])
	}
	return out, nil
}

// ChannelRMS returns the RMS of one channel of an interleaved window.
func ChannelRMS(window []float64, channel, arity int) (float64, error) {
	vals, err := Channel(window, channel, arity)
	if err != nil {
		return 0, err
	}
	rms, err := RMS(vals)
	if err != nil {
		return 0, fmt.Errorf("channel %d: %w", channel, err)
	}
	return rms, nil
}
