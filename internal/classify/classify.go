// Package classify maps a full sample window to an activity label.
package classify

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sweeney/motion-sensor/internal/features"
	"github.com/sweeney/motion-sensor/internal/logic"
)

// Classifier scores one complete window. Implementations may block; callers
// must not invoke them concurrently on the same instance unless documented.
type Classifier interface {
	Classify(ctx context.Context, window []float64) (logic.Label, error)
}

// Func adapts a plain function to Classifier.
type Func func(ctx context.Context, window []float64) (logic.Label, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, window []float64) (logic.Label, error) {
	return f(ctx, window)
}

// Band assigns Label to windows whose energy is at least Min.
type Band struct {
	Min   float64     `yaml:"min"`
	Label logic.Label `yaml:"label"`
}

// IntensityConfig configures an Intensity classifier.
type IntensityConfig struct {
	// Channels per cycle in the window.
	Arity int
	// Indices of the channels whose RMS values are averaged into the energy.
	Channels []int
	// Energy bands; the highest band whose Min is <= energy wins.
	Bands []Band
	// Label returned when energy is below every band.
	Idle logic.Label
}

// Intensity classifies a window by the mean per-channel RMS of selected
// channels. With angular-rate channels this separates resting, walking and
// running without a trained model.
type Intensity struct {
	arity    int
	channels []int
	bands    []Band
	idle     logic.Label
}

// ErrNoBands is returned by NewIntensity when no bands are configured.
var ErrNoBands = errors.New("intensity classifier needs at least one band")

// NewIntensity validates cfg and returns an Intensity classifier.
func NewIntensity(cfg IntensityConfig) (*Intensity, error) {
	if cfg.Arity <= 0 {
		return nil, fmt.Errorf("arity must be > 0, got %d", cfg.Arity)
	}
	if len(cfg.Channels) == 0 {
		return nil, errors.New("intensity classifier needs at least one channel")
	}
	for _, ch := range cfg.Channels {
		if ch < 0 || ch >= cfg.Arity {
			return nil, fmt.Errorf("channel %d out of range [0, %d)", ch, cfg.Arity)
		}
	}
	if len(cfg.Bands) == 0 {
		return nil, ErrNoBands
	}

	bands := make([]Band, len(cfg.Bands))
	copy(bands, cfg.Bands)
	sort.SliceStable(bands, func(i, j int) bool { return bands[i].Min < bands[j].Min })

	channels := make([]int, len(cfg.Channels))
	copy(channels, cfg.Channels)

	return &Intensity{
		arity:    cfg.Arity,
		channels: channels,
		bands:    bands,
		idle:     cfg.Idle,
	}, nil
}

// Energy returns the mean RMS of the configured channels.
func (c *Intensity) Energy(window []float64) (float64, error) {
	var sum float64
	for _, ch := range c.channels {
		rms, err := features.ChannelRMS(window, ch, c.arity)
		if err != nil {
			return 0, err
		}
		sum += rms
	}
	return sum / float64(len(c.channels)), nil
}

// Classify implements Classifier. It is safe for concurrent use.
func (c *Intensity) Classify(ctx context.Context, window []float64) (logic.Label, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	energy, err := c.Energy(window)
	if err != nil {
		return 0, fmt.Errorf("energy: %w", err)
	}

	label := c.idle
	for _, b := range c.bands {
		if energy < b.Min {
			break
		}
		label = b.Label
	}
	return label, nil
}
