package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/mqtt"
	"github.com/sweeney/motion-sensor/internal/pipeline"
	"github.com/sweeney/motion-sensor/internal/status"
)

// eventLog is the subset of history.Store the daemon writes to.
type eventLog interface {
	Record(ctx context.Context, e logic.Event) error
	Prune(ctx context.Context, keep int) (int64, error)
}

// indicator is the subset of gpio.Pulser the daemon drives.
type indicator interface {
	Show(label logic.Label)
}

// eventObserver is the subset of metrics.Collector the daemon feeds.
type eventObserver interface {
	ObserveEvent(e logic.Event)
}

// daemon fans stable events out to every sink and publishes lifecycle events.
// history, indicator and metrics are optional.
type daemon struct {
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	thresholds logic.ThresholdSource
	stats      func() pipeline.Stats
	history    eventLog
	indicator  indicator
	metrics    eventObserver
	// stopSampling stops the pipeline and returns once no more events
	// can be emitted. Nil when nothing needs stopping.
	stopSampling func()

	heartbeat time.Duration
	keep      int
	logger    *slog.Logger
	now       func() time.Time
}

func (d *daemon) refreshStatus() {
	d.tracker.SetPipeline(d.stats())
	d.tracker.SetThresholds(d.thresholds.Thresholds())
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

func (d *daemon) publishSystem(event, reason string, retained bool) {
	d.refreshStatus()
	snap := d.tracker.Snapshot()
	err := d.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	switch {
	case err == nil:
		d.logger.Info("published system event", "event", event, "reason", reason)
	case errors.Is(err, mqtt.ErrBuffered):
		d.logger.Info("system event buffered", "event", event)
	default:
		d.logger.Warn("system event publish failed", "event", event, "err", err)
	}
}

func (d *daemon) publishStartup() {
	d.publishSystem("STARTUP", "", true)
}

func (d *daemon) handleEvent(ctx context.Context, hb *logic.Heartbeat, e logic.Event) {
	d.logger.Info("activity",
		"label", e.Label,
		"name", e.Name,
		"votes", e.Votes,
		"span_ms", e.SpanMs)

	if err := d.publisher.Publish(e); err != nil && !errors.Is(err, mqtt.ErrBuffered) {
		// Don't crash on publish failure
		d.logger.Warn("publish error", "err", err)
	}
	if d.history != nil {
		if err := d.history.Record(ctx, e); err != nil {
			d.logger.Warn("history record failed", "err", err)
		}
	}
	if d.indicator != nil {
		d.indicator.Show(e.Label)
	}
	if d.metrics != nil {
		d.metrics.ObserveEvent(e)
	}
	d.tracker.RecordEvent(e)
	hb.Count(e)
}

func (d *daemon) checkHeartbeat(ctx context.Context, hb *logic.Heartbeat, t time.Time) {
	data := hb.Check(t, d.heartbeat)
	if data == nil {
		return
	}
	d.logger.Info("heartbeat",
		"uptime", data.Uptime.Truncate(time.Second),
		"events", data.Counts.Total())

	if net := readNetworkInfo(); net != nil {
		d.tracker.SetNetwork(net)
	}
	d.publishSystem("HEARTBEAT", "", false)

	if d.history != nil {
		pruneHistory(ctx, d.history, d.keep, d.logger)
	}
}

// pruneHistory trims the log to the newest keep events. keep <= 0 leaves
// the log untouched.
func pruneHistory(ctx context.Context, log eventLog, keep int, logger *slog.Logger) {
	if keep <= 0 {
		return
	}
	if n, err := log.Prune(ctx, keep); err != nil {
		logger.Warn("history prune failed", "err", err)
	} else if n > 0 {
		logger.Info("history pruned", "deleted", n)
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// runLoop handles events, status refreshes and heartbeats until a signal
// arrives or ctx ends. It publishes SHUTDOWN on the way out.
func (d *daemon) runLoop(ctx context.Context, events <-chan logic.Event, tick <-chan time.Time, sig <-chan os.Signal) error {
	hb := logic.NewHeartbeat(d.now())

	for {
		select {
		case s := <-sig:
			name := signalName(s)
			d.logger.Info("shutting down", "signal", name)
			d.shutdown(ctx, hb, events, name)
			return nil

		case <-ctx.Done():
			d.shutdown(ctx, hb, events, "ERROR")
			return nil

		case e := <-events:
			d.handleEvent(ctx, hb, e)

		case <-tick:
			d.refreshStatus()
			d.checkHeartbeat(ctx, hb, d.now())
		}
	}
}

// shutdown stops sampling, handles what is left in the queue and publishes
// a retained SHUTDOWN with reason.
func (d *daemon) shutdown(ctx context.Context, hb *logic.Heartbeat, events <-chan logic.Event, reason string) {
	if d.stopSampling != nil {
		d.stopSampling()
	}
	d.drain(context.WithoutCancel(ctx), hb, events)
	d.logger.Info("events this run", "total", hb.Counts().Total())
	d.publishSystem("SHUTDOWN", reason, true)
}

// drain handles events already queued so they are not lost on shutdown.
func (d *daemon) drain(ctx context.Context, hb *logic.Heartbeat, events <-chan logic.Event) {
	for {
		select {
		case e := <-events:
			d.handleEvent(ctx, hb, e)
		default:
			return
		}
	}
}
