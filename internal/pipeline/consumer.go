package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/sweeney/motion-sensor/internal/classify"
	"github.com/sweeney/motion-sensor/internal/logic"
)

// EventHandler receives each stable event. It runs on the scoring goroutine
// and should not block for long.
type EventHandler func(logic.Event)

// Consumer scores the latest complete window once per tick and debounces
// the resulting labels. It is the only goroutine that touches the filter.
type Consumer struct {
	classifier classify.Classifier
	filter     *logic.DebounceFilter
	in         *mailbox
	ticks      logic.TickClock
	now        func() time.Time
	name       func(logic.Label) string
	handler    EventHandler
	stats      *counters
	logger     *slog.Logger
}

// Step runs one scoring cycle and returns the stable event it produced, if any.
func (c *Consumer) Step(ctx context.Context) (logic.Event, bool) {
	c.stats.scoreCycles.Add(1)
	now := c.now()
	tick := c.ticks.At(now)

	if window, ok := c.in.take(); ok {
		c.score(ctx, tick, window)
	}

	vote, ok := c.filter.Evaluate()
	c.stats.pendingTuples.Store(int64(c.filter.Len()))
	if !ok {
		return logic.Event{}, false
	}

	event := logic.Event{
		Timestamp: now,
		Label:     vote.Label,
		Name:      c.name(vote.Label),
		Votes:     vote.Votes,
		SpanMs:    vote.SpanMs,
	}
	c.stats.events.Add(1)
	if c.handler != nil {
		c.handler(event)
	}
	return event, true
}

func (c *Consumer) score(ctx context.Context, tick logic.Ticks, window []float64) {
	// A classification already started finishes even if shutdown begins.
	label, err := c.classifier.Classify(context.WithoutCancel(ctx), window)
	if err != nil {
		c.stats.classifierErrors.Add(1)
		c.logger.Warn("classifier error", "err", err)
		return
	}
	c.stats.classifications.Add(1)

	if !c.filter.Record(tick, label) {
		c.stats.discarded.Add(1)
		return
	}
	c.logger.Debug("inference", "label", label, "tick", tick, "pending", c.filter.Len())
}

// Run scores on every tick until ctx is done.
func (c *Consumer) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			c.Step(ctx)
		}
	}
}
