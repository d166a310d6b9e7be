// Package gpio drives the activity LEDs, one output line per label.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/motion-sensor/internal/logic"
)

// Indicator lights the LED for a label.
type Indicator interface {
	// Set lights the LED for label and turns every other LED off.
	// Label 0, or a label without an LED, turns all LEDs off.
	Set(label logic.Label) error

	// Close turns the LEDs off and releases GPIO resources.
	Close() error
}

// Pulser shows each event on an Indicator for a fixed time, then clears it.
// A newer event replaces the one still showing and restarts the timer.
type Pulser struct {
	ind    Indicator
	length time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// NewPulser returns a Pulser lighting ind for length per event.
func NewPulser(ind Indicator, length time.Duration, logger *slog.Logger) *Pulser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pulser{ind: ind, length: length, logger: logger}
}

// Show lights label now and schedules it to clear.
func (p *Pulser) Show(label logic.Label) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
	}
	if err := p.ind.Set(label); err != nil {
		p.logger.Warn("indicator set failed", "label", label, "err", err)
		return
	}
	p.gen++
	gen := p.gen
	p.timer = time.AfterFunc(p.length, func() { p.clear(gen) })
}

// clear turns the LEDs off unless a newer Show has happened since.
func (p *Pulser) clear(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return
	}
	if err := p.ind.Set(0); err != nil {
		p.logger.Warn("indicator clear failed", "err", err)
	}
}

// Close stops any pending clear and closes the Indicator.
func (p *Pulser) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.gen++
	return p.ind.Close()
}
