// Package sensor provides motion sensor reading with hardware abstraction.
// The serial implementation reads an IMU bridge over a UART.
// The fake implementation allows testing without hardware.
package sensor

import "errors"

// Vector is one three-axis reading.
type Vector struct {
	X, Y, Z float64
}

// Axis returns the component at index i (0 = X, 1 = Y, 2 = Z).
func (v Vector) Axis(i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// Reader reads acceleration and angular rate from a motion sensor.
type Reader interface {
	// Acceleration returns the current acceleration vector.
	Acceleration() (Vector, error)

	// AngularRate returns the current angular rate vector.
	AngularRate() (Vector, error)

	// Close releases sensor resources.
	Close() error
}

// Reading is one combined accelerometer and gyroscope sample.
type Reading struct {
	Accel Vector
	Gyro  Vector
}

// Channel indices into a Reading flattened as (ax, ay, az, gx, gy, gz).
const (
	AccelX = iota
	AccelY
	AccelZ
	GyroX
	GyroY
	GyroZ

	NumChannels
)

// DefaultChannels is the reference selection: all acceleration axes plus
// angular rate Y and Z.
var DefaultChannels = []int{AccelX, AccelY, AccelZ, GyroY, GyroZ}

// Value returns the flattened channel ch of r.
func (r Reading) Value(ch int) float64 {
	if ch < GyroX {
		return r.Accel.Axis(ch)
	}
	return r.Gyro.Axis(ch - GyroX)
}

// ErrNoFrame is returned before the sensor has produced any data.
var ErrNoFrame = errors.New("sensor: no frame received yet")

// ErrStale is returned when the latest frame is older than allowed.
var ErrStale = errors.New("sensor: latest frame is stale")

// FrameReader is implemented by readers that can return both vectors from
// one frame.
type FrameReader interface {
	Frame() (Reading, error)
}

// Read returns both vectors from r, taken from a single frame when r is a
// FrameReader.
func Read(r Reader) (Reading, error) {
	if fr, ok := r.(FrameReader); ok {
		return fr.Frame()
	}
	acc, err := r.Acceleration()
	if err != nil {
		return Reading{}, err
	}
	gyro, err := r.AngularRate()
	if err != nil {
		return Reading{}, err
	}
	return Reading{Accel: acc, Gyro: gyro}, nil
}
