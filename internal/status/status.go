// Package status provides a thread-safe status tracker for the motion-sensor
// daemon. It is read by the HTTP handlers and the heartbeat publisher.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/pipeline"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	SampleMs     int64
	ScoreMs      int64
	WindowCycles int
	Channels     []int
	HeartbeatMs  int64
	Broker       string
	HTTPPort     string
	WSBroker     string // websocket broker URL for browser MQTT (empty = disabled)
	Names        map[logic.Label]string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	LastEvent     *logic.Event
	Counts        logic.EventCounts
	Pipeline      pipeline.Stats
	Thresholds    logic.Thresholds
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether the sliding window has filled at least once.
func (s Snapshot) Ready() bool {
	return s.Pipeline.WindowCapacity > 0 && s.Pipeline.WindowSize >= s.Pipeline.WindowCapacity
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Counts:    logic.EventCounts{},
		},
		now: time.Now,
	}
}

// RecordEvent stores e as the latest activity and counts it.
func (t *Tracker) RecordEvent(e logic.Event) {
	t.mu.Lock()
	t.snap.LastEvent = &e
	t.snap.Counts[e.Label]++
	t.mu.Unlock()
}

// SetPipeline stores the latest loop counters.
func (t *Tracker) SetPipeline(stats pipeline.Stats) {
	t.mu.Lock()
	t.snap.Pipeline = stats
	t.mu.Unlock()
}

// SetThresholds stores the live debounce thresholds.
func (t *Tracker) SetThresholds(th logic.Thresholds) {
	t.mu.Lock()
	t.snap.Thresholds = th
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Counts = t.snap.Counts.Clone()
	if t.snap.LastEvent != nil {
		last := *t.snap.LastEvent
		s.LastEvent = &last
	}
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
