//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/motion-sensor/internal/logic"
)

// RealIndicator drives LEDs on a Linux GPIO chip.
type RealIndicator struct {
	chip  *gpiocdev.Chip
	lines map[logic.Label]*gpiocdev.Line
}

// NewRealIndicator requests one output line per label on the named chip
// (e.g. "gpiochip0"). Pins use BCM numbering.
func NewRealIndicator(chipName string, pins map[logic.Label]int) (*RealIndicator, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	r := &RealIndicator{chip: chip, lines: make(map[logic.Label]*gpiocdev.Line, len(pins))}
	for label, pin := range pins {
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("motion-sensor"))
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request pin %d for label %d: %w", pin, label, err)
		}
		r.lines[label] = line
	}
	return r, nil
}

// Set drives the line for label high and all others low.
func (r *RealIndicator) Set(label logic.Label) error {
	var errs []error
	for l, line := range r.lines {
		v := 0
		if l == label {
			v = 1
		}
		if err := line.SetValue(v); err != nil {
			errs = append(errs, fmt.Errorf("set label %d: %w", l, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the lines, returning them to input with pull-down to match
// the Pi boot defaults.
func (r *RealIndicator) Close() error {
	var errs []error
	for l, line := range r.lines {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure label %d: %w", l, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close label %d: %w", l, err))
		}
	}
	r.lines = nil
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}
	return errors.Join(errs...)
}
