// Package logic contains pure business logic for motion activity detection:
// the sliding sample window, the inference log, and the majority-vote debounce.
// This package has NO external dependencies (no sensor, MQTT, OS, or time.Sleep).
// Time is always injectable via Ticks and time.Time parameters.
package logic

import (
	"errors"
	"fmt"
	"time"
)

// Label is a discrete classifier output.
type Label int

// LabelSet is the set of labels treated as meaningful events.
type LabelSet map[Label]bool

// DefaultLabels is the valid label set used when none is configured.
var DefaultLabels = LabelSet{1: true, 2: true, 3: true}

// NewLabelSet builds a LabelSet from a list of labels.
func NewLabelSet(labels ...Label) LabelSet {
	s := make(LabelSet, len(labels))
	for _, l := range labels {
		s[l] = true
	}
	return s
}

// Contains reports whether l is in the set.
func (s LabelSet) Contains(l Label) bool {
	return s[l]
}

// Ticks is a wrapping millisecond tick counter.
type Ticks uint32

// TicksDiff returns newer - older in milliseconds, accounting for wraparound
// of the 32-bit counter. The result is negative if older is actually later.
func TicksDiff(newer, older Ticks) int64 {
	return int64(int32(newer - older))
}

// TickClock converts monotonic elapsed time since an origin into Ticks.
type TickClock struct {
	origin time.Time
}

// NewTickClock returns a TickClock counting from origin.
func NewTickClock(origin time.Time) TickClock {
	return TickClock{origin: origin}
}

// At returns the tick value for t. Values wrap every 2^32 ms (~49.7 days).
func (c TickClock) At(t time.Time) Ticks {
	return Ticks(uint32(t.Sub(c.origin).Milliseconds()))
}

// InferenceTuple records one meaningful classifier output.
type InferenceTuple struct {
	Tick  Ticks
	Label Label
}

// Thresholds controls the debounce and cleanup rules.
// It is an immutable value: updates replace the whole struct.
type Thresholds struct {
	// Minimum tick span between oldest and newest tuple before a vote (exclusive).
	TimeDiffThresholdMs int64
	// Number of tuples that must be present, and that take part in the vote.
	MinTuples int
	// Cleanup only applies to logs with at most this many tuples.
	CleanMaxTuples int
	// Cleanup applies once the log span reaches this many ms.
	CleanMaxTimeDiffMs int64
}

// DefaultThresholds returns the reference debounce configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TimeDiffThresholdMs: 450,
		MinTuples:           9,
		CleanMaxTuples:      9,
		CleanMaxTimeDiffMs:  2000,
	}
}

// ErrInvalidThresholds is returned by Thresholds.Validate.
var ErrInvalidThresholds = errors.New("invalid thresholds")

// Validate rejects values that would make the filter meaningless.
func (t Thresholds) Validate() error {
	switch {
	case t.MinTuples <= 0:
		return fmt.Errorf("%w: min_tuples must be > 0, got %d", ErrInvalidThresholds, t.MinTuples)
	case t.CleanMaxTuples < 0:
		return fmt.Errorf("%w: clean_max_tuples must be >= 0, got %d", ErrInvalidThresholds, t.CleanMaxTuples)
	case t.TimeDiffThresholdMs < 0:
		return fmt.Errorf("%w: time_diff_threshold_ms must be >= 0, got %d", ErrInvalidThresholds, t.TimeDiffThresholdMs)
	case t.CleanMaxTimeDiffMs < 0:
		return fmt.Errorf("%w: clean_max_time_diff_ms must be >= 0, got %d", ErrInvalidThresholds, t.CleanMaxTimeDiffMs)
	}
	return nil
}

// ThresholdSource provides the live thresholds. Implementations must return
// a consistent value: all four fields from the same update.
type ThresholdSource interface {
	Thresholds() Thresholds
}

// StaticThresholds is a ThresholdSource that never changes.
type StaticThresholds Thresholds

// Thresholds returns t.
func (t StaticThresholds) Thresholds() Thresholds {
	return Thresholds(t)
}

// Vote is the outcome of a successful debounce.
type Vote struct {
	Label  Label
	Votes  []Label // the reduced sample the vote was taken over, oldest first
	SpanMs int64   // tick span of the whole log at decision time
}

// Event represents a stable activity to be published.
type Event struct {
	Timestamp time.Time
	Label     Label
	Name      string
	Votes     []Label
	SpanMs    int64
}

// EventCounts tracks the number of stable events per label since startup.
type EventCounts map[Label]int

// Clone returns an independent copy of c.
func (c EventCounts) Clone() EventCounts {
	out := make(EventCounts, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Total returns the sum of all counts.
func (c EventCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
