package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/motion-sensor/internal/classify"
	"github.com/sweeney/motion-sensor/internal/config"
	"github.com/sweeney/motion-sensor/internal/history"
	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/mqtt"
	"github.com/sweeney/motion-sensor/internal/pipeline"
	"github.com/sweeney/motion-sensor/internal/sensor"
	"github.com/sweeney/motion-sensor/internal/status"
	"github.com/sweeney/motion-sensor/internal/web"
)

// Debounce settings small enough to vote after a handful of score cycles.
var testThresholds = logic.Thresholds{
	TimeDiffThresholdMs: 250,
	MinTuples:           3,
	CleanMaxTuples:      3,
	CleanMaxTimeDiffMs:  5000,
}

const stepPeriod = 100 * time.Millisecond

// rig wires the whole daemon with fakes: scripted sensor, real classifier,
// in-memory history, fake MQTT and the web handler.
type rig struct {
	reader    *sensor.FakeReader
	publisher *mqtt.FakePublisher
	history   *history.Store
	tracker   *status.Tracker
	store     *config.Store
	pipe      *pipeline.Pipeline
	handler   http.Handler

	now time.Time
}

func newRig(t *testing.T, readings []sensor.Reading) *rig {
	t.Helper()

	cfg := config.Default()
	cfg.Sampling.WindowCycles = 4

	classifier, err := classify.NewIntensity(cfg.IntensityConfig())
	if err != nil {
		t.Fatalf("NewIntensity: %v", err)
	}
	store, err := config.NewStore(testThresholds)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	events, err := history.Open(":memory:", "integration")
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { events.Close() })

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := &rig{
		reader:    sensor.NewFakeReader(readings),
		publisher: mqtt.NewFakePublisher(),
		history:   events,
		tracker:   status.NewTracker(start, status.Config{Names: cfg.Labels.Names}),
		store:     store,
		now:       start,
	}

	r.pipe, err = pipeline.New(pipeline.Options{
		Reader:       r.reader,
		Classifier:   classifier,
		Thresholds:   store,
		Labels:       cfg.Labels.Set(),
		Name:         cfg.Labels.Name,
		WindowCycles: cfg.Sampling.WindowCycles,
		Channels:     cfg.Sampling.Channels,
		Handler:      r.handle,
		Now:          func() time.Time { return r.now },
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}

	r.handler = web.New(web.Options{
		Tracker:    r.tracker,
		Thresholds: store,
		History:    events,
	}).Handler()
	return r
}

func (r *rig) handle(e logic.Event) {
	r.publisher.Publish(e)
	r.history.Record(context.Background(), e)
	r.tracker.RecordEvent(e)
}

// step runs n sample+score cycles, advancing the clock stepPeriod each time.
func (r *rig) step(n int) {
	for i := 0; i < n; i++ {
		r.now = r.now.Add(stepPeriod)
		r.pipe.Producer().Step()
		r.pipe.Consumer().Step(context.Background())
	}
	r.tracker.SetPipeline(r.pipe.Stats())
}

func (r *rig) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	r.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// gyro returns a reading with angular rate rate on every axis.
func gyro(rate float64) sensor.Reading {
	return sensor.Reading{
		Accel: sensor.Vector{Z: 1},
		Gyro:  sensor.Vector{X: rate, Y: rate, Z: rate},
	}
}

func repeat(r sensor.Reading, n int) []sensor.Reading {
	out := make([]sensor.Reading, n)
	for i := range out {
		out[i] = r
	}
	return out
}

// TestIntegrationFullFlow tests the complete flow from sensor to MQTT,
// history and the status endpoints.
func TestIntegrationFullFlow(t *testing.T) {
	r := newRig(t, repeat(gyro(80), 8))

	// Window fills on cycle 4; tuples at cycles 4..7, vote once span > 250ms.
	r.step(7)

	if len(r.publisher.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(r.publisher.Events))
	}
	e := r.publisher.Events[0]
	if e.Label != 2 || e.Name != "moderate" {
		t.Errorf("expected label 2 (moderate), got %d (%s)", e.Label, e.Name)
	}
	if len(e.Votes) != testThresholds.MinTuples {
		t.Errorf("expected %d votes, got %v", testThresholds.MinTuples, e.Votes)
	}
	if e.SpanMs != 300 {
		t.Errorf("expected span 300ms, got %d", e.SpanMs)
	}

	var payload mqtt.Payload
	if err := json.Unmarshal(r.publisher.Payloads[0], &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if payload.Activity.Timestamp == "" {
		t.Error("payload missing timestamp")
	}

	// History endpoint
	rec := r.get(t, "/events")
	if rec.Code != http.StatusOK {
		t.Fatalf("/events: status %d", rec.Code)
	}
	var listed struct {
		Events []history.Record `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("/events: invalid JSON: %v", err)
	}
	if len(listed.Events) != 1 || listed.Events[0].Label != 2 || listed.Events[0].RunID != "integration" {
		t.Errorf("/events: unexpected records %+v", listed.Events)
	}

	// Status endpoint
	rec = r.get(t, "/index.json")
	var st status.StatusJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("/index.json: invalid JSON: %v", err)
	}
	if !st.Status.Ready {
		t.Error("expected ready once the window has filled")
	}
	if st.Status.LastActivity == nil || st.Status.LastActivity.Label != 2 {
		t.Errorf("unexpected last activity: %+v", st.Status.LastActivity)
	}
	if st.Status.Loops.Classifications != 4 {
		t.Errorf("expected 4 classifications, got %d", st.Status.Loops.Classifications)
	}
}

// TestIntegrationNoEventsBeforeWindowFills verifies nothing is scored until
// the sliding window is complete.
func TestIntegrationNoEventsBeforeWindowFills(t *testing.T) {
	r := newRig(t, repeat(gyro(200), 3))
	r.step(3)

	if len(r.publisher.Events) != 0 {
		t.Errorf("expected no events, got %d", len(r.publisher.Events))
	}
	stats := r.pipe.Stats()
	if stats.Classifications != 0 {
		t.Errorf("expected no classifications, got %d", stats.Classifications)
	}
	if stats.WindowSize != 15 || stats.WindowCapacity != 20 {
		t.Errorf("expected window 15/20, got %d/%d", stats.WindowSize, stats.WindowCapacity)
	}
}

// TestIntegrationIdleIsDiscarded verifies labels outside the valid set never
// reach the vote.
func TestIntegrationIdleIsDiscarded(t *testing.T) {
	r := newRig(t, repeat(gyro(1), 20))
	r.step(20)

	if len(r.publisher.Events) != 0 {
		t.Errorf("expected no events for idle input, got %d", len(r.publisher.Events))
	}
	if d := r.pipe.Stats().Discarded; d != 17 {
		t.Errorf("expected 17 discarded, got %d", d)
	}
}

// TestIntegrationActivityChange verifies a change in intensity produces a
// new stable label once the window has slid over the new data.
func TestIntegrationActivityChange(t *testing.T) {
	readings := append(repeat(gyro(80), 7), repeat(gyro(300), 20)...)
	r := newRig(t, readings)

	r.step(7)
	r.step(20)

	if len(r.publisher.Events) < 2 {
		t.Fatalf("expected at least 2 events, got %d", len(r.publisher.Events))
	}
	first := r.publisher.Events[0]
	last := r.publisher.Events[len(r.publisher.Events)-1]
	if first.Label != 2 {
		t.Errorf("first event: expected label 2, got %d", first.Label)
	}
	if last.Label != 3 || last.Name != "vigorous" {
		t.Errorf("last event: expected label 3 (vigorous), got %d (%s)", last.Label, last.Name)
	}

	counts, err := r.history.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Total() != len(r.publisher.Events) {
		t.Errorf("history has %d events, published %d", counts.Total(), len(r.publisher.Events))
	}
}

// TestIntegrationSensorErrorsSkipCycles verifies a failing sensor leaves the
// window untouched and the flow resumes once it recovers.
func TestIntegrationSensorErrorsSkipCycles(t *testing.T) {
	r := newRig(t, repeat(gyro(80), 10))

	r.step(2)
	r.reader.SetErrors(errors.New("i2c timeout"), nil)
	r.step(5)
	if r.pipe.Stats().WindowSize != 10 {
		t.Errorf("window should not change while the sensor fails, got %d", r.pipe.Stats().WindowSize)
	}
	r.reader.SetErrors(nil, nil)
	r.step(7)

	stats := r.pipe.Stats()
	if stats.SensorErrors != 5 {
		t.Errorf("expected 5 sensor errors, got %d", stats.SensorErrors)
	}
	if len(r.publisher.Events) != 1 {
		t.Errorf("expected 1 event after recovery, got %d", len(r.publisher.Events))
	}
}

// TestIntegrationThresholdUpdate verifies thresholds posted to /config take
// effect on the running filter.
func TestIntegrationThresholdUpdate(t *testing.T) {
	r := newRig(t, repeat(gyro(80), 20))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/config", strings.NewReader(`{"min_tuples":6}`))
	r.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /config: status %d: %s", rec.Code, rec.Body.String())
	}
	if got := r.store.Thresholds().MinTuples; got != 6 {
		t.Fatalf("store not updated, min_tuples=%d", got)
	}

	// Three tuples would have voted under the old settings.
	r.step(7)
	if len(r.publisher.Events) != 0 {
		t.Fatalf("expected no events with min_tuples=6, got %d", len(r.publisher.Events))
	}

	r.step(2)
	if len(r.publisher.Events) != 1 {
		t.Fatalf("expected 1 event after 6 tuples, got %d", len(r.publisher.Events))
	}
	if n := len(r.publisher.Events[0].Votes); n != 6 {
		t.Errorf("expected 6 votes, got %d", n)
	}
}

// TestIntegrationRunWithTicks drives both loops concurrently through their
// tick channels.
func TestIntegrationRunWithTicks(t *testing.T) {
	cfg := config.Default()
	cfg.Sampling.WindowCycles = 4
	classifier, err := classify.NewIntensity(cfg.IntensityConfig())
	if err != nil {
		t.Fatalf("NewIntensity: %v", err)
	}

	// The consumer goroutine is the only caller of now after New.
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(stepPeriod)
		return clock
	}

	got := make(chan logic.Event, 8)
	pipe, err := pipeline.New(pipeline.Options{
		Reader:       sensor.NewFakeReader(repeat(gyro(200), 1)),
		Classifier:   classifier,
		Thresholds:   logic.StaticThresholds(testThresholds),
		Labels:       cfg.Labels.Set(),
		Name:         cfg.Labels.Name,
		WindowCycles: cfg.Sampling.WindowCycles,
		Channels:     cfg.Sampling.Channels,
		Handler: func(e logic.Event) {
			select {
			case got <- e:
			default:
			}
		},
		Now: now,
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sample := make(chan time.Time)
	score := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- pipe.RunWithTicks(ctx, sample, score) }()

	var event logic.Event
	received := false
	for i := 0; i < 200 && !received; i++ {
		sample <- time.Time{}
		score <- time.Time{}
		select {
		case event = <-got:
			received = true
		default:
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("RunWithTicks: %v", err)
	}

	if !received {
		select {
		case event = <-got:
		default:
			t.Fatal("no event produced")
		}
	}
	if event.Label != 3 {
		t.Errorf("expected label 3, got %d", event.Label)
	}
}
