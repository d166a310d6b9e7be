package gpio

import (
	"sync"

	"github.com/sweeney/motion-sensor/internal/logic"
)

// FakeIndicator records every Set call.
type FakeIndicator struct {
	mu sync.Mutex

	// history lists the labels passed to Set, in order.
	history []logic.Label

	// Closed tracks if Close was called.
	Closed bool

	// SetError, if set, will be returned by Set.
	SetError error
}

// NewFakeIndicator creates a FakeIndicator.
func NewFakeIndicator() *FakeIndicator {
	return &FakeIndicator{}
}

// Set records label.
func (f *FakeIndicator) Set(label logic.Label) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.history = append(f.history, label)
	return nil
}

// History returns a copy of the labels set so far.
func (f *FakeIndicator) History() []logic.Label {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.Label(nil), f.history...)
}

// Current returns the most recent label set, or 0 if none.
func (f *FakeIndicator) Current() logic.Label {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.history) == 0 {
		return 0
	}
	return f.history[len(f.history)-1]
}

// Close marks the indicator as closed.
func (f *FakeIndicator) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
