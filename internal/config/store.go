package config

import (
	"sync"
	"sync/atomic"

	"github.com/sweeney/motion-sensor/internal/logic"
)

// Store holds the live debounce thresholds. Readers get a whole value from a
// single update; Set replaces it atomically after validation.
type Store struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[logic.Thresholds]
	version atomic.Uint64
}

// NewStore creates a Store with initial thresholds.
func NewStore(initial logic.Thresholds) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	s := &Store{}
	th := initial
	s.current.Store(&th)
	return s, nil
}

// Thresholds returns the current thresholds. It implements logic.ThresholdSource.
func (s *Store) Thresholds() logic.Thresholds {
	return *s.current.Load()
}

// Set validates th and makes it the current value.
func (s *Store) Set(th logic.Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := th
	s.current.Store(&next)
	s.version.Add(1)
	return nil
}

// Version counts successful updates since creation.
func (s *Store) Version() uint64 {
	return s.version.Load()
}
