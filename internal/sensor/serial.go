package sensor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the IMU bridge firmware.
const DefaultBaudRate = 115200

// SerialReader reads CSV frames "ax,ay,az,gx,gy,gz" streamed by an IMU
// bridge and serves the most recent one. A background goroutine consumes
// the port so reads never block the sampling loop.
type SerialReader struct {
	port       io.ReadCloser
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu       sync.Mutex
	latest   Reading
	seen     time.Time
	frames   int
	badLines int
	readErr  error

	done chan struct{}
}

// SerialOptions configures a SerialReader.
type SerialOptions struct {
	// StaleAfter is how old the latest frame may be before reads fail.
	// Zero disables the check.
	StaleAfter time.Duration
	Logger     *slog.Logger
	// Now is used for staleness checks; defaults to time.Now.
	Now func() time.Time
}

// OpenSerial opens the serial device at path and starts reading frames.
func OpenSerial(path string, baud int, opts SerialOptions) (*SerialReader, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", path, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("reset serial input: %w", err)
	}
	return NewSerialReader(port, opts), nil
}

// NewSerialReader starts reading frames from port. Close stops it.
func NewSerialReader(port io.ReadCloser, opts SerialOptions) *SerialReader {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &SerialReader{
		port:       port,
		staleAfter: opts.StaleAfter,
		now:        opts.Now,
		logger:     opts.Logger,
		done:       make(chan struct{}),
	}
	go r.readLoop()
	return r
}

func (r *SerialReader) readLoop() {
	defer close(r.done)

	scanner := bufio.NewScanner(r.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		reading, err := ParseFrame(line)
		r.mu.Lock()
		if err != nil {
			r.badLines++
			bad := r.badLines
			r.mu.Unlock()
			// The first line after open is often a partial frame.
			if bad <= 3 {
				r.logger.Debug("sensor: skipping malformed frame", "line", line, "err", err)
			}
			continue
		}
		r.latest = reading
		r.seen = r.now()
		r.frames++
		r.mu.Unlock()
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	r.mu.Lock()
	r.readErr = err
	r.mu.Unlock()
}

func (r *SerialReader) current() (Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frames == 0 {
		if r.readErr != nil {
			return Reading{}, fmt.Errorf("serial read: %w", r.readErr)
		}
		return Reading{}, ErrNoFrame
	}
	if r.staleAfter > 0 && r.now().Sub(r.seen) > r.staleAfter {
		if r.readErr != nil {
			return Reading{}, fmt.Errorf("%w: serial read: %v", ErrStale, r.readErr)
		}
		return Reading{}, ErrStale
	}
	return r.latest, nil
}

// Frame returns both vectors of the latest frame.
func (r *SerialReader) Frame() (Reading, error) {
	return r.current()
}

// Acceleration returns the acceleration from the latest frame.
func (r *SerialReader) Acceleration() (Vector, error) {
	reading, err := r.current()
	if err != nil {
		return Vector{}, err
	}
	return reading.Accel, nil
}

// AngularRate returns the angular rate from the latest frame.
func (r *SerialReader) AngularRate() (Vector, error) {
	reading, err := r.current()
	if err != nil {
		return Vector{}, err
	}
	return reading.Gyro, nil
}

// Frames returns the number of frames parsed and lines rejected so far.
func (r *SerialReader) Frames() (ok, bad int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames, r.badLines
}

// Close closes the port and waits for the reader goroutine to exit.
func (r *SerialReader) Close() error {
	err := r.port.Close()
	<-r.done
	return err
}

// ErrFrameFormat is returned by ParseFrame for malformed lines.
var ErrFrameFormat = errors.New("malformed frame")

// ParseFrame parses one "ax,ay,az,gx,gy,gz" line.
func ParseFrame(line string) (Reading, error) {
	fields := strings.Split(line, ",")
	if len(fields) != NumChannels {
		return Reading{}, fmt.Errorf("%w: want %d fields, got %d", ErrFrameFormat, NumChannels, len(fields))
	}

	var vals [NumChannels]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Reading{}, fmt.Errorf("%w: field %d: %v", ErrFrameFormat, i, err)
		}
		vals[i] = v
	}

	return Reading{
		Accel: Vector{X: vals[AccelX], Y: vals[AccelY], Z: vals[AccelZ]},
		Gyro:  Vector{X: vals[GyroX], Y: vals[GyroY], Z: vals[GyroZ]},
	}, nil
}
