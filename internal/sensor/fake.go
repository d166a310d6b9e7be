package sensor

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted readings.
type FakeReader struct {
	mu sync.Mutex

	// Readings contains scripted values to return.
	// Each Acceleration/AngularRate pair consumes the next reading.
	Readings []Reading

	// index tracks current position in Readings
	index int
	// gyroPending is set after Acceleration and cleared by AngularRate
	gyroPending bool

	// Closed tracks if Close was called
	Closed bool

	// AccelError and GyroError, if set, are returned by the matching method.
	AccelError error
	GyroError  error
}

// NewFakeReader creates a FakeReader with the given readings.
func NewFakeReader(readings []Reading) *FakeReader {
	return &FakeReader{Readings: readings}
}

// Acceleration returns the acceleration of the current reading.
// If readings are exhausted, the last reading repeats.
func (f *FakeReader) Acceleration() (Vector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.AccelError != nil {
		return Vector{}, f.AccelError
	}
	if len(f.Readings) == 0 {
		return Vector{}, errors.New("no readings configured")
	}
	f.gyroPending = true
	return f.Readings[f.index].Accel, nil
}

// AngularRate returns the angular rate of the current reading and advances.
func (f *FakeReader) AngularRate() (Vector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.GyroError != nil {
		return Vector{}, f.GyroError
	}
	if len(f.Readings) == 0 {
		return Vector{}, errors.New("no readings configured")
	}
	v := f.Readings[f.index].Gyro
	if f.gyroPending && f.index < len(f.Readings)-1 {
		f.index++
	}
	f.gyroPending = false
	return v, nil
}

// SetErrors replaces the scripted errors. Safe to call while a loop is reading.
func (f *FakeReader) SetErrors(accel, gyro error) {
	f.mu.Lock()
	f.AccelError = accel
	f.GyroError = gyro
	f.mu.Unlock()
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset resets the reader to the beginning of readings.
func (f *FakeReader) Reset() {
	f.mu.Lock()
	f.index = 0
	f.gyroPending = false
	f.Closed = false
	f.mu.Unlock()
}
