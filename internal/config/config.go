// Package config loads daemon configuration from a YAML file and holds the
// live debounce thresholds.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/motion-sensor/internal/classify"
	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/sensor"
)

// Config is the complete daemon configuration.
type Config struct {
	Sampling   Sampling   `yaml:"sampling"`
	Scoring    Scoring    `yaml:"scoring"`
	Debounce   Debounce   `yaml:"debounce"`
	Labels     Labels     `yaml:"labels"`
	Classifier Classifier `yaml:"classifier"`
	Sensor     Sensor     `yaml:"sensor"`
	MQTT       MQTT       `yaml:"mqtt"`
	HTTP       HTTP       `yaml:"http"`
	History    History    `yaml:"history"`
	Indicator  Indicator  `yaml:"indicator"`

	Heartbeat time.Duration `yaml:"heartbeat"`
	LogLevel  string        `yaml:"log_level"`
}

// Sampling configures the producer loop and window shape.
type Sampling struct {
	Period       time.Duration `yaml:"period"`
	WindowCycles int           `yaml:"window_cycles"`
	// Channels lists flattened reading indices (0-2 accel xyz, 3-5 gyro xyz)
	// kept per cycle, in window order.
	Channels []int `yaml:"channels"`
}

// Scoring configures the consumer loop.
type Scoring struct {
	Period time.Duration `yaml:"period"`
}

// Debounce holds the initial majority-vote thresholds.
type Debounce struct {
	TimeDiffThresholdMs int64 `yaml:"time_diff_threshold_ms"`
	MinTuples           int   `yaml:"min_tuples"`
	CleanMaxTuples      int   `yaml:"clean_max_tuples"`
	CleanMaxTimeDiffMs  int64 `yaml:"clean_max_time_diff_ms"`
}

// Thresholds converts d to the logic value type.
func (d Debounce) Thresholds() logic.Thresholds {
	return logic.Thresholds{
		TimeDiffThresholdMs: d.TimeDiffThresholdMs,
		MinTuples:           d.MinTuples,
		CleanMaxTuples:      d.CleanMaxTuples,
		CleanMaxTimeDiffMs:  d.CleanMaxTimeDiffMs,
	}
}

// Labels configures which classifier outputs count and how they are shown.
type Labels struct {
	Valid []logic.Label          `yaml:"valid"`
	Names map[logic.Label]string `yaml:"names"`
}

// Set returns the valid labels as a LabelSet.
func (l Labels) Set() logic.LabelSet {
	return logic.NewLabelSet(l.Valid...)
}

// Name returns the display name for label, or its number.
func (l Labels) Name(label logic.Label) string {
	if n, ok := l.Names[label]; ok && n != "" {
		return n
	}
	return fmt.Sprintf("%d", label)
}

// Classifier configures the intensity classifier.
type Classifier struct {
	// Channels are indices into the sampled group, not into the raw reading.
	Channels []int           `yaml:"channels"`
	Bands    []classify.Band `yaml:"bands"`
	Idle     logic.Label     `yaml:"idle"`
}

// Sensor configures the serial IMU bridge.
type Sensor struct {
	Device     string        `yaml:"device"`
	Baud       int           `yaml:"baud"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

// MQTT configures event publishing.
type MQTT struct {
	Broker     string `yaml:"broker"`
	BufferSize int    `yaml:"buffer_size"`
}

// HTTP configures the status server.
type HTTP struct {
	Addr     string `yaml:"addr"`
	WSBroker string `yaml:"ws_broker"`
}

// History configures the SQLite event history.
type History struct {
	Path string `yaml:"path"`
	Keep int    `yaml:"keep"`
}

// Indicator configures activity LEDs.
type Indicator struct {
	Chip  string              `yaml:"chip"`
	Pins  map[logic.Label]int `yaml:"pins"`
	Pulse time.Duration       `yaml:"pulse"`
}

// Default returns the reference configuration: 50 cycles of 5 channels
// sampled every 10ms, scored every 200ms.
func Default() Config {
	th := logic.DefaultThresholds()
	return Config{
		Sampling: Sampling{
			Period:       10 * time.Millisecond,
			WindowCycles: 50,
			Channels:     append([]int(nil), sensor.DefaultChannels...),
		},
		Scoring: Scoring{
			Period: 200 * time.Millisecond,
		},
		Debounce: Debounce{
			TimeDiffThresholdMs: th.TimeDiffThresholdMs,
			MinTuples:           th.MinTuples,
			CleanMaxTuples:      th.CleanMaxTuples,
			CleanMaxTimeDiffMs:  th.CleanMaxTimeDiffMs,
		},
		Labels: Labels{
			Valid: []logic.Label{1, 2, 3},
			Names: map[logic.Label]string{1: "light", 2: "moderate", 3: "vigorous"},
		},
		Classifier: Classifier{
			Channels: []int{3, 4}, // gyro Y, Z within the default group
			Bands: []classify.Band{
				{Min: 15, Label: 1},
				{Min: 60, Label: 2},
				{Min: 150, Label: 3},
			},
			Idle: 0,
		},
		Sensor: Sensor{
			Device:     "/dev/ttyUSB0",
			Baud:       sensor.DefaultBaudRate,
			StaleAfter: 250 * time.Millisecond,
		},
		MQTT: MQTT{
			Broker:     "tcp://192.168.1.200:1883",
			BufferSize: 100,
		},
		HTTP: HTTP{
			Addr:     ":80",
			WSBroker: "=broker",
		},
		History: History{
			Path: "/var/lib/motion-sensor/history.db",
			Keep: 10000,
		},
		Indicator: Indicator{
			Chip:  "gpiochip0",
			Pulse: 2 * time.Second,
		},
		Heartbeat: 15 * time.Minute,
		LogLevel:  "info",
	}
}

const maxFileSize = 1 * 1024 * 1024

// Load reads a YAML config file over the defaults. Fields omitted from the
// file keep their default values. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	if err := decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", cleanPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate fails fast on values the loops cannot run with.
func (c Config) Validate() error {
	if c.Sampling.Period <= 0 {
		return fmt.Errorf("sampling.period must be > 0, got %v", c.Sampling.Period)
	}
	if c.Scoring.Period <= 0 {
		return fmt.Errorf("scoring.period must be > 0, got %v", c.Scoring.Period)
	}
	if c.Sampling.WindowCycles <= 0 {
		return fmt.Errorf("sampling.window_cycles must be > 0, got %d", c.Sampling.WindowCycles)
	}
	if len(c.Sampling.Channels) == 0 {
		return errors.New("sampling.channels must not be empty")
	}
	for _, ch := range c.Sampling.Channels {
		if ch < 0 || ch >= sensor.NumChannels {
			return fmt.Errorf("sampling.channels: index %d out of range [0, %d)", ch, sensor.NumChannels)
		}
	}
	if err := c.Debounce.Thresholds().Validate(); err != nil {
		return fmt.Errorf("debounce: %w", err)
	}
	if len(c.Labels.Valid) == 0 {
		return errors.New("labels.valid must not be empty")
	}
	for _, ch := range c.Classifier.Channels {
		if ch < 0 || ch >= len(c.Sampling.Channels) {
			return fmt.Errorf("classifier.channels: index %d out of range [0, %d)", ch, len(c.Sampling.Channels))
		}
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("heartbeat must be >= 0, got %v", c.Heartbeat)
	}
	if c.History.Keep < 0 {
		return fmt.Errorf("history.keep must be >= 0, got %d", c.History.Keep)
	}
	return nil
}

// IntensityConfig builds the classifier configuration for the sampled group.
func (c Config) IntensityConfig() classify.IntensityConfig {
	return classify.IntensityConfig{
		Arity:    len(c.Sampling.Channels),
		Channels: c.Classifier.Channels,
		Bands:    c.Classifier.Bands,
		Idle:     c.Classifier.Idle,
	}
}

// IndicatorLabels returns the configured indicator labels in ascending order.
func (c Config) IndicatorLabels() []logic.Label {
	labels := make([]logic.Label, 0, len(c.Indicator.Pins))
	for l := range c.Indicator.Pins {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}
