package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/sensor"
)

// Producer samples the sensor once per tick and maintains the sliding window.
// It is the only goroutine that touches the SignalBuffer.
type Producer struct {
	reader   sensor.Reader
	buffer   *logic.SignalBuffer
	channels []int
	out      *mailbox
	stats    *counters
	logger   *slog.Logger

	group []float64
	// failing is set while the sensor keeps erroring, to log transitions only.
	failing bool
}

func newProducer(reader sensor.Reader, buffer *logic.SignalBuffer, channels []int, out *mailbox, stats *counters, logger *slog.Logger) *Producer {
	stats.windowCapacity.Store(int64(buffer.Capacity()))
	return &Producer{
		reader:   reader,
		buffer:   buffer,
		channels: channels,
		out:      out,
		stats:    stats,
		logger:   logger,
		group:    make([]float64, len(channels)),
	}
}

// Step runs one sampling cycle. A sensor error skips the cycle and leaves
// the window untouched.
func (p *Producer) Step() error {
	p.stats.sampleCycles.Add(1)

	reading, err := sensor.Read(p.reader)
	if err != nil {
		p.stats.sensorErrors.Add(1)
		if !p.failing {
			p.logger.Warn("sensor read error", "err", err)
			p.failing = true
		}
		return fmt.Errorf("read sensor: %w", err)
	}
	if p.failing {
		p.logger.Info("sensor read recovered")
		p.failing = false
	}

	for i, ch := range p.channels {
		p.group[i] = reading.Value(ch)
	}
	if err := p.buffer.Collect(p.group); err != nil {
		return err
	}
	p.stats.windowSize.Store(int64(p.buffer.Size()))

	if p.buffer.Complete() {
		if p.out.offer(p.buffer.Snapshot()) {
			p.stats.windowsReplaced.Add(1)
		}
		p.stats.windowsOffered.Add(1)
	}
	return nil
}

// Run samples on every tick until ctx is done.
func (p *Producer) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			// Errors are counted and logged in Step; the loop keeps going.
			_ = p.Step()
		}
	}
}
