// Package pipeline runs the sampling and scoring loops. The sampling loop owns
// the sliding window and hands each complete window to the scoring loop
// through a one-slot mailbox; the two loops share no other mutable state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/motion-sensor/internal/classify"
	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/sensor"
)

// Options configures a Pipeline.
type Options struct {
	Reader     sensor.Reader
	Classifier classify.Classifier
	Thresholds logic.ThresholdSource
	Labels     logic.LabelSet // nil means logic.DefaultLabels
	// Name maps a label to its display name; defaults to the number.
	Name func(logic.Label) string

	WindowCycles int
	Channels     []int // flattened reading indices kept per cycle
	SamplePeriod time.Duration
	ScorePeriod  time.Duration

	Handler EventHandler
	Logger  *slog.Logger
	// Now supplies wall time for event timestamps and ticks; defaults to time.Now.
	Now func() time.Time
}

// Pipeline wires a Producer and a Consumer together.
type Pipeline struct {
	producer     *Producer
	consumer     *Consumer
	stats        *counters
	samplePeriod time.Duration
	scorePeriod  time.Duration
}

// New validates opts and builds the loops. Nothing runs until Run.
func New(opts Options) (*Pipeline, error) {
	if opts.Reader == nil {
		return nil, errors.New("pipeline: sensor reader is required")
	}
	if opts.Classifier == nil {
		return nil, errors.New("pipeline: classifier is required")
	}
	if opts.Thresholds == nil {
		return nil, errors.New("pipeline: threshold source is required")
	}
	for _, ch := range opts.Channels {
		if ch < 0 || ch >= sensor.NumChannels {
			return nil, fmt.Errorf("pipeline: channel %d out of range [0, %d)", ch, sensor.NumChannels)
		}
	}
	buffer, err := logic.NewSignalBuffer(opts.WindowCycles, len(opts.Channels))
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Name == nil {
		opts.Name = func(l logic.Label) string { return fmt.Sprintf("%d", l) }
	}

	stats := &counters{}
	box := newMailbox()
	channels := append([]int(nil), opts.Channels...)

	return &Pipeline{
		producer: newProducer(opts.Reader, buffer, channels, box, stats, opts.Logger.With("loop", "sample")),
		consumer: &Consumer{
			classifier: opts.Classifier,
			filter:     logic.NewDebounceFilter(opts.Thresholds, opts.Labels),
			in:         box,
			ticks:      logic.NewTickClock(opts.Now()),
			now:        opts.Now,
			name:       opts.Name,
			handler:    opts.Handler,
			stats:      stats,
			logger:     opts.Logger.With("loop", "score"),
		},
		stats:        stats,
		samplePeriod: opts.SamplePeriod,
		scorePeriod:  opts.ScorePeriod,
	}, nil
}

// Run starts both loops on their own tickers and blocks until ctx is done.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.samplePeriod <= 0 || p.scorePeriod <= 0 {
		return fmt.Errorf("pipeline: periods must be > 0 (sample %v, score %v)", p.samplePeriod, p.scorePeriod)
	}
	sample := time.NewTicker(p.samplePeriod)
	defer sample.Stop()
	score := time.NewTicker(p.scorePeriod)
	defer score.Stop()

	return p.RunWithTicks(ctx, sample.C, score.C)
}

// RunWithTicks runs both loops driven by the given tick channels.
func (p *Pipeline) RunWithTicks(ctx context.Context, sampleTick, scoreTick <-chan time.Time) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.producer.Run(gCtx, sampleTick)
	})
	g.Go(func() error {
		return p.consumer.Run(gCtx, scoreTick)
	})
	return g.Wait()
}

// Producer returns the sampling loop, for single-stepping.
func (p *Pipeline) Producer() *Producer { return p.producer }

// Consumer returns the scoring loop, for single-stepping.
func (p *Pipeline) Consumer() *Consumer { return p.consumer }

// Stats returns the current loop counters.
func (p *Pipeline) Stats() Stats {
	return p.stats.snapshot()
}
