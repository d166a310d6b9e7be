package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/pipeline"
)

var names = map[logic.Label]string{1: "light", 2: "moderate", 3: "vigorous"}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{SampleMs: 10, ScoreMs: 200, Broker: "tcp://localhost:1883", HTTPPort: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.SampleMs != 10 {
		t.Errorf("Config.SampleMs: got %d, want 10", snap.Config.SampleMs)
	}
	if snap.Config.HTTPPort != ":80" {
		t.Errorf("Config.HTTPPort: got %q, want %q", snap.Config.HTTPPort, ":80")
	}
	if snap.Ready() {
		t.Error("expected Ready=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if snap.LastEvent != nil {
		t.Error("expected no LastEvent initially")
	}
}

func TestRecordEvent(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	tr.RecordEvent(logic.Event{Timestamp: at, Label: 2, Name: "moderate"})
	tr.RecordEvent(logic.Event{Timestamp: at.Add(time.Second), Label: 3, Name: "vigorous"})
	tr.RecordEvent(logic.Event{Timestamp: at.Add(2 * time.Second), Label: 2, Name: "moderate"})

	snap := tr.Snapshot()
	if snap.LastEvent == nil || snap.LastEvent.Label != 2 {
		t.Fatalf("LastEvent: got %+v, want label 2", snap.LastEvent)
	}
	if snap.Counts[2] != 2 || snap.Counts[3] != 1 {
		t.Errorf("Counts: got %v", snap.Counts)
	}
}

func TestReadyFollowsWindow(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetPipeline(pipeline.Stats{WindowSize: 120, WindowCapacity: 250})
	if tr.Snapshot().Ready() {
		t.Error("expected Ready=false with partial window")
	}

	tr.SetPipeline(pipeline.Stats{WindowSize: 250, WindowCapacity: 250})
	if !tr.Snapshot().Ready() {
		t.Error("expected Ready=true with full window")
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(15 * time.Minute)}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.RecordEvent(logic.Event{Label: 1})

	snap1 := tr.Snapshot()
	tr.RecordEvent(logic.Event{Label: 3})

	if snap1.Counts[3] != 0 {
		t.Error("snapshot counts changed after a later event")
	}
	if snap1.LastEvent.Label != 1 {
		t.Error("snapshot LastEvent changed after a later event")
	}
}

func TestLabelName(t *testing.T) {
	cfg := Config{Names: names}
	if got := cfg.LabelName(3); got != "vigorous" {
		t.Errorf("LabelName(3): got %q", got)
	}
	if got := cfg.LabelName(7); got != "7" {
		t.Errorf("LabelName(7): got %q, want 7", got)
	}
}

func TestThresholdsJSONConversion(t *testing.T) {
	th := logic.DefaultThresholds()
	if got := NewThresholdsJSON(th).Thresholds(); got != th {
		t.Errorf("conversion changed thresholds: %+v", got)
	}
}

func fullSnapshot() Snapshot {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return Snapshot{
		LastEvent:     &logic.Event{Timestamp: start.Add(10 * time.Minute), Label: 2, Name: "moderate"},
		Counts:        logic.EventCounts{2: 5, 3: 1},
		Pipeline:      pipeline.Stats{WindowSize: 250, WindowCapacity: 250, SampleCycles: 90000, Classifications: 4500, Discarded: 12},
		Thresholds:    logic.DefaultThresholds(),
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config: Config{
			SampleMs: 10, ScoreMs: 200, WindowCycles: 50, Channels: []int{0, 1, 2, 4, 5},
			HeartbeatMs: 900000, Broker: "tcp://localhost:1883", HTTPPort: ":80", Names: names,
		},
	}
}

func TestFormatJSON(t *testing.T) {
	data := FormatJSON(fullSnapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed.Status

	if !s.Ready {
		t.Error("expected Ready=true")
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if s.LastActivity == nil || s.LastActivity.Name != "moderate" {
		t.Fatalf("LastActivity: got %+v", s.LastActivity)
	}
	if s.LastActivity.Timestamp != "2026-01-01T00:10:00Z" {
		t.Errorf("LastActivity.Timestamp: got %s", s.LastActivity.Timestamp)
	}
	if s.Window.Size != 250 || s.Window.Capacity != 250 {
		t.Errorf("Window: got %+v", s.Window)
	}
	if s.Loops.Classifications != 4500 || s.Loops.Discarded != 12 {
		t.Errorf("Loops: got %+v", s.Loops)
	}
	if s.Thresholds.MinTuples != 9 || s.Thresholds.TimeDiffThresholdMs != 450 {
		t.Errorf("Thresholds: got %+v", s.Thresholds)
	}
	if len(s.Config.Channels) != 5 {
		t.Errorf("Config.Channels: got %v", s.Config.Channels)
	}
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected no event/reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatJSONCountsListEveryNamedLabel(t *testing.T) {
	snap := fullSnapshot()
	snap.Counts[9] = 4 // unnamed label still reported

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	want := []CountJSON{
		{Label: 1, Name: "light", Count: 0},
		{Label: 2, Name: "moderate", Count: 5},
		{Label: 3, Name: "vigorous", Count: 1},
		{Label: 9, Count: 4},
	}
	got := parsed.Status.Counts
	if len(got) != len(want) {
		t.Fatalf("Counts: got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Counts[%d]: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestFormatJSONEmptySnapshot(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	status := raw["status"]
	if _, exists := status["last_activity"]; exists {
		t.Error("last_activity should be omitted before any event")
	}
	if _, exists := status["network"]; exists {
		t.Error("network should be omitted when unknown")
	}
	if status["ready"] != false {
		t.Errorf("ready: got %v, want false", status["ready"])
	}
}

func TestFormatStatusEvent(t *testing.T) {
	data := FormatStatusEvent(fullSnapshot(), "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("Reason: got %q, want empty", parsed.Status.Reason)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	data := FormatStatusEvent(fullSnapshot(), "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	data := FormatStatusEvent(fullSnapshot(), "STARTUP", "")

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, exists := raw["status"]["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if raw["status"]["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", raw["status"]["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := fullSnapshot()
	snap.Network = &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", parsed.Status.Network.IP)
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.RecordEvent(logic.Event{Label: logic.Label(i%3 + 1)})
			tr.SetPipeline(pipeline.Stats{SampleCycles: int64(i)})
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()

	if n := tr.Snapshot().Counts.Total(); n != 1000 {
		t.Errorf("expected 1000 counted events, got %d", n)
	}
}
