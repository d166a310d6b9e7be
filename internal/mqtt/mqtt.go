// Package mqtt publishes activity and lifecycle events, with a fake for tests.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/motion-sensor/internal/logic"
)

// Topic is the MQTT topic for stable activity events.
const Topic = "motion/sensor/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "motion/sensor/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends an activity event to the broker.
	// A failure is reported but must not stop the process.
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event such as STARTUP, SHUTDOWN or HEARTBEAT.
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string // shutdown signal, or why the broker saw us go
	// RawPayload, if set, is sent as-is instead of the minimal system payload.
	RawPayload []byte
	Retained   bool
}

// Payload is the JSON body published on Topic.
type Payload struct {
	Activity ActivityPayload `json:"activity"`
}

// ActivityPayload describes one stable activity.
type ActivityPayload struct {
	Timestamp string `json:"timestamp"`
	Label     int    `json:"label"`
	Name      string `json:"name,omitempty"`
	Votes     []int  `json:"votes"`
	SpanMs    int64  `json:"span_ms"`
}

// FormatPayload creates the JSON payload for an activity event.
func FormatPayload(event logic.Event) ([]byte, error) {
	votes := make([]int, len(event.Votes))
	for i, v := range event.Votes {
		votes[i] = int(v)
	}
	return json.Marshal(Payload{
		Activity: ActivityPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
			Label:     int(event.Label),
			Name:      event.Name,
			Votes:     votes,
			SpanMs:    event.SpanMs,
		},
	})
}

// SystemPayload is the minimal system event body, used for the will message
// and for events that carry no status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
