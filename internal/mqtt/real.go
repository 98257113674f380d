package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/washer-notify/internal/logger"
	"github.com/sweeney/washer-notify/internal/logic"
)

// bufferCapacity bounds how many messages are held while the broker is unreachable.
const bufferCapacity = 100

// Config describes the broker connection.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	log    *logger.Logger

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker. It does not wait
// for the first connection: the client retries in the background and
// anything published meanwhile is buffered.
func NewRealPublisher(cfg Config, log *logger.Logger) *RealPublisher {
	p := &RealPublisher{
		log: log,
		buf: newRingBuffer(bufferCapacity),
	}

	lwt, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "LWT", Reason: "connection lost"})

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(TopicSystem, string(lwt), 1, true).
		SetOnConnectHandler(func(paho.Client) {
			p.log.Infow("mqtt_connected", "broker", cfg.Broker)
			p.replay()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warnw("mqtt_connection_lost", "err", err)
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// Publish sends a cycle event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1: a missed CYCLE_FINISHED is the event automations care about most.
	return p.publish(bufferedMsg{topic: Topic, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.enqueue(msg)
		return nil
	}

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		p.enqueue(msg)
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		p.enqueue(msg)
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *RealPublisher) enqueue(msg bufferedMsg) {
	p.mu.Lock()
	dropped := p.buf.push(msg)
	pending := p.buf.len()
	p.mu.Unlock()
	if dropped {
		p.log.Warnw("mqtt_buffer_full", "capacity", bufferCapacity)
	}
	p.log.Debugw("mqtt_buffered", "topic", msg.topic, "pending", pending)
}

// replay publishes buffered messages in order. Runs on the paho connect
// callback, so it must not block waiting on tokens.
func (p *RealPublisher) replay() {
	p.mu.Lock()
	msgs := p.buf.drainAll()
	p.mu.Unlock()

	if len(msgs) > 0 {
		p.log.Infow("mqtt_replay", "messages", len(msgs))
	}
	for _, m := range msgs {
		p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
