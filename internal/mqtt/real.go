package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/motion-sensor/internal/logic"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// ErrBuffered is returned when a message was queued for replay because the
// broker is unreachable. The message is not lost unless the buffer overflows.
var ErrBuffered = errors.New("mqtt: not connected, message buffered")

// Options configures a RealPublisher.
type Options struct {
	Broker string
	// ClientID defaults to "motion-sensor-" plus a random UUID.
	ClientID string
	// BufferSize is how many messages are kept while disconnected.
	BufferSize int
	Logger     *slog.Logger
	Now        func() time.Time
}

// RealPublisher publishes to an MQTT broker. While the connection is down,
// messages are held in a ring buffer and replayed in order on reconnect.
type RealPublisher struct {
	client paho.Client
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	buffer    *ringBuffer
	connected bool
	replaying bool
	connects  int
}

// NewRealPublisher connects to the broker. A retained SHUTDOWN will with
// reason MQTT_DISCONNECT is registered so subscribers notice a lost device.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ClientID == "" {
		opts.ClientID = "motion-sensor-" + uuid.NewString()
	}

	p := &RealPublisher{
		logger: opts.Logger.With("component", "mqtt", "broker", opts.Broker),
		now:    opts.Now,
		buffer: newRingBuffer(opts.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: opts.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(clientOpts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		// With ConnectRetry set the client keeps trying in the background;
		// publishes are buffered until it succeeds.
		p.logger.Warn("broker not reachable yet, buffering", "timeout", connectTimeout)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(paho.Client) {
	p.mu.Lock()
	p.connected = true
	p.connects++
	reconnect := p.connects > 1
	start := !p.replaying
	p.replaying = true
	p.mu.Unlock()

	p.logger.Info("connected", "reconnect", reconnect)
	// Handlers must not block the paho router, so replay elsewhere.
	go func() {
		if reconnect {
			p.sendReconnected()
		}
		if start {
			p.replay()
		}
	}()
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.logger.Warn("connection lost", "err", err)
}

func (p *RealPublisher) sendReconnected() {
	payload, err := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
	if err == nil {
		_ = p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1})
	}
}

// replay sends buffered messages oldest first until the buffer is empty.
// While it runs, publish appends to the buffer so order is kept. On a send
// failure the unsent messages go back in front of anything newer and the
// next publish retries.
func (p *RealPublisher) replay() {
	for {
		p.mu.Lock()
		msgs, dropped := p.buffer.drainAll()
		if len(msgs) == 0 {
			p.replaying = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		p.logger.Info("replaying buffered messages", "count", len(msgs), "dropped", dropped)
		for i, msg := range msgs {
			if err := p.send(msg); err != nil {
				p.logger.Warn("replay failed, re-buffering", "remaining", len(msgs)-i, "err", err)
				p.mu.Lock()
				p.requeue(msgs[i:])
				p.replaying = false
				p.mu.Unlock()
				return
			}
		}
	}
}

// requeue puts unsent ahead of whatever was buffered meanwhile.
// Callers hold p.mu.
func (p *RealPublisher) requeue(unsent []bufferedMsg) {
	newer, _ := p.buffer.drainAll()
	for _, msg := range unsent {
		p.buffer.push(msg)
	}
	for _, msg := range newer {
		p.buffer.push(msg)
	}
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.topic, err)
	}
	return nil
}

// publish sends msg now, or buffers it if the broker is unreachable or older
// messages are still waiting. Buffering while connected starts a replay.
func (p *RealPublisher) publish(msg bufferedMsg) error {
	p.mu.Lock()
	direct := p.connected && !p.replaying && p.buffer.len() == 0
	p.mu.Unlock()

	if direct && p.client.IsConnectionOpen() {
		err := p.send(msg)
		if err == nil {
			return nil
		}
		p.logger.Warn("publish failed, buffering", "topic", msg.topic, "err", err)
	}

	p.mu.Lock()
	overwrote := p.buffer.push(msg)
	retry := p.connected && !p.replaying && p.client.IsConnectionOpen()
	if retry {
		p.replaying = true
	}
	p.mu.Unlock()
	if overwrote {
		p.logger.Warn("offline buffer full, dropped oldest message")
	}
	if retry {
		go p.replay()
	}
	return ErrBuffered
}

// Publish sends an activity event at QoS 0.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected && p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for replay.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker, allowing one second for in-flight work.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
