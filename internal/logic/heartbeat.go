package logic

import "time"

// Heartbeat decides when a periodic liveness event is due and keeps the
// per-label counts reported with it.
type Heartbeat struct {
	startTime     time.Time
	lastHeartbeat time.Time
	counts        EventCounts
}

// NewHeartbeat creates a Heartbeat. The startTime is used for calculating uptime.
func NewHeartbeat(startTime time.Time) *Heartbeat {
	return &Heartbeat{
		startTime:     startTime,
		lastHeartbeat: startTime,
		counts:        EventCounts{},
	}
}

// Count records one stable event.
func (h *Heartbeat) Count(e Event) {
	h.counts[e.Label]++
}

// Counts returns a copy of the per-label counts.
func (h *Heartbeat) Counts() EventCounts {
	return h.counts.Clone()
}

// Check returns heartbeat data if the interval has elapsed since the last
// heartbeat (or startup). Returns nil if the interval has not elapsed, or if
// interval is <= 0 (disabled).
func (h *Heartbeat) Check(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(h.lastHeartbeat) < interval {
		return nil
	}

	h.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(h.startTime),
		Counts:    h.counts.Clone(),
	}
}
