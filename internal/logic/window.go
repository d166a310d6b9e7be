package logic

import (
	"errors"
	"fmt"
)

// ErrGroupTooLarge is returned when a sample group cannot fit in the window at all.
var ErrGroupTooLarge = errors.New("sample group larger than window capacity")

// SignalBuffer is a fixed-capacity sliding window of interleaved channel values.
// Not safe for concurrent use; the sampling loop owns it.
type SignalBuffer struct {
	buf      []float64
	capacity int
	channels int
}

// NewSignalBuffer creates a window holding cycles groups of channels scalars each.
func NewSignalBuffer(cycles, channels int) (*SignalBuffer, error) {
	if cycles <= 0 {
		return nil, fmt.Errorf("window cycles must be > 0, got %d", cycles)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channels per cycle must be > 0, got %d", channels)
	}
	capacity := cycles * channels
	return &SignalBuffer{
		buf:      make([]float64, 0, capacity),
		capacity: capacity,
		channels: channels,
	}, nil
}

// IsFull reports whether the buffer holds more scalars than its capacity.
func (b *SignalBuffer) IsFull() bool {
	return len(b.buf) > b.capacity
}

// Collect appends one sample group. Before appending, the oldest scalars are
// evicted one at a time until the group fits. Eviction is per scalar, not per
// group: a group whose length does not divide the capacity shifts the window
// boundary, and that drift is kept.
func (b *SignalBuffer) Collect(group []float64) error {
	if len(group) == 0 {
		return nil
	}
	if len(group) > b.capacity {
		return fmt.Errorf("%w: %d > %d", ErrGroupTooLarge, len(group), b.capacity)
	}

	for len(b.buf)+len(group) > b.capacity {
		b.evictOldest()
	}
	b.buf = append(b.buf, group...)
	return nil
}

func (b *SignalBuffer) evictOldest() {
	// Shift in place so the backing array never grows past capacity.
	copy(b.buf, b.buf[1:])
	b.buf = b.buf[:len(b.buf)-1]
}

// Size returns the number of scalars currently held.
func (b *SignalBuffer) Size() int {
	return len(b.buf)
}

// Capacity returns the window length in scalars.
func (b *SignalBuffer) Capacity() int {
	return b.capacity
}

// Channels returns the configured scalars per sampling cycle.
func (b *SignalBuffer) Channels() int {
	return b.channels
}

// Complete reports whether the window holds exactly Capacity scalars.
func (b *SignalBuffer) Complete() bool {
	return len(b.buf) == b.capacity
}

// Snapshot returns a copy of the current contents, oldest first.
func (b *SignalBuffer) Snapshot() []float64 {
	out := make([]float64, len(b.buf))
	copy(out, b.buf)
	return out
}

// Reset empties the buffer without releasing its storage.
func (b *SignalBuffer) Reset() {
	b.buf = b.buf[:0]
}
