package status

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/sweeney/motion-sensor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Ready         bool           `json:"ready"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	LastActivity  *ActivityJSON  `json:"last_activity,omitempty"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Counts        []CountJSON    `json:"event_counts"`
	Window        WindowJSON     `json:"window"`
	Loops         LoopsJSON      `json:"loops"`
	Thresholds    ThresholdsJSON `json:"thresholds"`
	Network       *NetworkJSON   `json:"network,omitempty"`
	Config        ConfigJSON     `json:"config"`
}

// ActivityJSON describes the most recent stable event.
type ActivityJSON struct {
	Timestamp string `json:"timestamp"`
	Label     int    `json:"label"`
	Name      string `json:"name,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountJSON is the event count for one label.
type CountJSON struct {
	Label int    `json:"label"`
	Name  string `json:"name,omitempty"`
	Count int    `json:"count"`
}

// WindowJSON reports sliding window fill.
type WindowJSON struct {
	Size     int64 `json:"size"`
	Capacity int64 `json:"capacity"`
}

// LoopsJSON reports sampling and scoring counters.
type LoopsJSON struct {
	SampleCycles     int64 `json:"sample_cycles"`
	SensorErrors     int64 `json:"sensor_errors"`
	WindowsOffered   int64 `json:"windows_offered"`
	WindowsReplaced  int64 `json:"windows_replaced"`
	ScoreCycles      int64 `json:"score_cycles"`
	Classifications  int64 `json:"classifications"`
	ClassifierErrors int64 `json:"classifier_errors"`
	Discarded        int64 `json:"discarded"`
	PendingTuples    int64 `json:"pending_tuples"`
}

// ThresholdsJSON is the JSON form of the debounce thresholds. It is also the
// body accepted by POST /config.
type ThresholdsJSON struct {
	TimeDiffThresholdMs int64 `json:"time_diff_threshold_ms"`
	MinTuples           int   `json:"min_tuples"`
	CleanMaxTuples      int   `json:"clean_max_tuples"`
	CleanMaxTimeDiffMs  int64 `json:"clean_max_time_diff_ms"`
}

// NewThresholdsJSON converts th for output.
func NewThresholdsJSON(th logic.Thresholds) ThresholdsJSON {
	return ThresholdsJSON(th)
}

// Thresholds converts back to the domain type.
func (t ThresholdsJSON) Thresholds() logic.Thresholds {
	return logic.Thresholds(t)
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SampleMs     int64  `json:"sample_ms"`
	ScoreMs      int64  `json:"score_ms"`
	WindowCycles int    `json:"window_cycles"`
	Channels     []int  `json:"channels"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	Broker       string `json:"broker"`
	HTTPPort     string `json:"http_port"`
	WSBroker     string `json:"ws_broker,omitempty"`
}

// LabelName returns the configured name for l, or its number.
func (c Config) LabelName(l logic.Label) string {
	if name, ok := c.Names[l]; ok && name != "" {
		return name
	}
	return strconv.Itoa(int(l))
}

func buildCounts(snap Snapshot) []CountJSON {
	labels := make([]logic.Label, 0, len(snap.Config.Names)+len(snap.Counts))
	seen := map[logic.Label]bool{}
	for l := range snap.Config.Names {
		labels = append(labels, l)
		seen[l] = true
	}
	for l := range snap.Counts {
		if !seen[l] {
			labels = append(labels, l)
		}
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	out := make([]CountJSON, len(labels))
	for i, l := range labels {
		out[i] = CountJSON{Label: int(l), Name: snap.Config.Names[l], Count: snap.Counts[l]}
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	p := snap.Pipeline
	channels := snap.Config.Channels
	if channels == nil {
		channels = []int{}
	}
	inner := StatusInner{
		Ready:         snap.Ready(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        buildCounts(snap),
		Window:        WindowJSON{Size: p.WindowSize, Capacity: p.WindowCapacity},
		Loops: LoopsJSON{
			SampleCycles:     p.SampleCycles,
			SensorErrors:     p.SensorErrors,
			WindowsOffered:   p.WindowsOffered,
			WindowsReplaced:  p.WindowsReplaced,
			ScoreCycles:      p.ScoreCycles,
			Classifications:  p.Classifications,
			ClassifierErrors: p.ClassifierErrors,
			Discarded:        p.Discarded,
			PendingTuples:    p.PendingTuples,
		},
		Thresholds: NewThresholdsJSON(snap.Thresholds),
		Config: ConfigJSON{
			SampleMs:     snap.Config.SampleMs,
			ScoreMs:      snap.Config.ScoreMs,
			WindowCycles: snap.Config.WindowCycles,
			Channels:     channels,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
			HTTPPort:     snap.Config.HTTPPort,
			WSBroker:     snap.Config.WSBroker,
		},
	}
	if e := snap.LastEvent; e != nil {
		inner.LastActivity = &ActivityJSON{
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
			Label:     int(e.Label),
			Name:      e.Name,
		}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
