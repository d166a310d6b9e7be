package pipeline

import "sync/atomic"

// Stats is a point-in-time view of loop counters.
type Stats struct {
	SampleCycles     int64
	SensorErrors     int64
	WindowSize       int64
	WindowCapacity   int64
	WindowsOffered   int64
	WindowsReplaced  int64
	ScoreCycles      int64
	Classifications  int64
	ClassifierErrors int64
	Discarded        int64
	PendingTuples    int64
	Events           int64
}

// counters is shared by both loops; every field is written by exactly one.
type counters struct {
	sampleCycles     atomic.Int64
	sensorErrors     atomic.Int64
	windowSize       atomic.Int64
	windowCapacity   atomic.Int64
	windowsOffered   atomic.Int64
	windowsReplaced  atomic.Int64
	scoreCycles      atomic.Int64
	classifications  atomic.Int64
	classifierErrors atomic.Int64
	discarded        atomic.Int64
	pendingTuples    atomic.Int64
	events           atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		SampleCycles:     c.sampleCycles.Load(),
		SensorErrors:     c.sensorErrors.Load(),
		WindowSize:       c.windowSize.Load(),
		WindowCapacity:   c.windowCapacity.Load(),
		WindowsOffered:   c.windowsOffered.Load(),
		WindowsReplaced:  c.windowsReplaced.Load(),
		ScoreCycles:      c.scoreCycles.Load(),
		Classifications:  c.classifications.Load(),
		ClassifierErrors: c.classifierErrors.Load(),
		Discarded:        c.discarded.Load(),
		PendingTuples:    c.pendingTuples.Load(),
		Events:           c.events.Load(),
	}
}
