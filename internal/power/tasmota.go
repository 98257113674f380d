package power

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	// statusEnergy selects the sensor section of the STATUS command.
	statusEnergy = "10"

	subscribeTimeout = 10 * time.Second
	publishTimeout   = 5 * time.Second
)

// connectTimeout bounds the first broker connection.
var connectTimeout = 10 * time.Second

// TasmotaConfig describes a Tasmota plug reporting over MQTT.
type TasmotaConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// Device is the Tasmota topic name, e.g. "washer" for cmnd/washer/STATUS.
	Device string
	// MaxAge bounds how old a cached reading may be when the plug does not
	// answer a poll in time.
	MaxAge time.Duration
}

// TasmotaReader polls a plug with STATUS 10 and waits for its STATUS10
// reply. Periodic SENSOR telemetry also refreshes the cached reading.
type TasmotaReader struct {
	client paho.Client
	device string
	maxAge time.Duration
	now    func() time.Time
	send   func(topic string, payload []byte) error

	mu      sync.Mutex
	watts   float64
	seenAt  time.Time
	subErr  error
	waiters []chan float64
}

type energy struct {
	Power json.RawMessage `json:"Power"`
}

// sensorPayload is the subset of a tele/<device>/SENSOR message we use.
type sensorPayload struct {
	Energy *energy `json:"ENERGY"`
}

// statusPayload is the subset of a stat/<device>/STATUS10 message we use.
type statusPayload struct {
	StatusSNS *sensorPayload `json:"StatusSNS"`
}

// SensorTopic returns the telemetry topic for a Tasmota device.
func SensorTopic(device string) string {
	return "tele/" + device + "/SENSOR"
}

// CommandTopic returns the topic the STATUS command is sent to.
func CommandTopic(device string) string {
	return "cmnd/" + device + "/STATUS"
}

// StatusTopic returns the topic the plug answers STATUS 10 on.
func StatusTopic(device string) string {
	return "stat/" + device + "/STATUS10"
}

// NewTasmotaReader connects to the broker and subscribes to the device's
// status and telemetry topics. The subscription is renewed on every
// reconnect.
func NewTasmotaReader(cfg TasmotaConfig) (*TasmotaReader, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("tasmota: device topic is required")
	}
	r := newTasmotaReader(cfg.Device, cfg.MaxAge, time.Now)

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(r.subscribe).
		SetConnectionLostHandler(func(paho.Client, error) {
			r.setSubscribed(errors.New("tasmota: connection lost"))
		})

	r.client = paho.NewClient(opts)
	r.send = r.publish

	token := r.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		r.client.Disconnect(0)
		return nil, fmt.Errorf("tasmota: connection timeout")
	}
	if err := token.Error(); err != nil {
		r.client.Disconnect(0)
		return nil, fmt.Errorf("tasmota: connect to broker: %w", err)
	}
	return r, nil
}

func newTasmotaReader(device string, maxAge time.Duration, now func() time.Time) *TasmotaReader {
	return &TasmotaReader{
		device: device,
		maxAge: maxAge,
		now:    now,
	}
}

// subscribe runs on every (re)connect. paho calls it on its own goroutine,
// so waiting on the token is safe.
func (r *TasmotaReader) subscribe(c paho.Client) {
	topics := map[string]byte{
		StatusTopic(r.device): 0,
		SensorTopic(r.device): 0,
	}
	token := c.SubscribeMultiple(topics, func(_ paho.Client, msg paho.Message) {
		r.handleMessage(msg.Topic(), msg.Payload())
	})
	switch {
	case !token.WaitTimeout(subscribeTimeout):
		r.setSubscribed(errors.New("tasmota: subscribe timeout"))
	case token.Error() != nil:
		r.setSubscribed(fmt.Errorf("tasmota: subscribe: %w", token.Error()))
	default:
		r.setSubscribed(nil)
	}
}

func (r *TasmotaReader) setSubscribed(err error) {
	r.mu.Lock()
	r.subErr = err
	r.mu.Unlock()
}

func (r *TasmotaReader) publish(topic string, payload []byte) error {
	token := r.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}

// handleMessage updates the cached reading and wakes pending polls.
// Malformed payloads are dropped.
func (r *TasmotaReader) handleMessage(topic string, payload []byte) {
	var (
		watts float64
		err   error
	)
	switch topic {
	case StatusTopic(r.device):
		watts, err = ParseTasmotaStatus(payload)
	case SensorTopic(r.device):
		watts, err = ParseTasmotaPower(payload)
	default:
		return
	}
	if err != nil {
		return
	}

	r.mu.Lock()
	r.watts = watts
	r.seenAt = r.now()
	waiters := r.waiters
	r.waiters = nil
	r.mu.Unlock()

	for _, ch := range waiters {
		ch <- watts
	}
}

// ParseTasmotaPower extracts ENERGY.Power from a SENSOR payload. Multi-channel
// devices report an array; the first channel is used.
func ParseTasmotaPower(payload []byte) (float64, error) {
	var p sensorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return 0, fmt.Errorf("decode sensor payload: %w", err)
	}
	return p.power()
}

// ParseTasmotaStatus extracts StatusSNS.ENERGY.Power from a STATUS10 reply.
func ParseTasmotaStatus(payload []byte) (float64, error) {
	var p statusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return 0, fmt.Errorf("decode status payload: %w", err)
	}
	if p.StatusSNS == nil {
		return 0, fmt.Errorf("status payload has no StatusSNS")
	}
	return p.StatusSNS.power()
}

func (p sensorPayload) power() (float64, error) {
	if p.Energy == nil || len(p.Energy.Power) == 0 {
		return 0, fmt.Errorf("payload has no ENERGY.Power")
	}

	var watts float64
	if err := json.Unmarshal(p.Energy.Power, &watts); err == nil {
		return watts, nil
	}
	var channels []float64
	if err := json.Unmarshal(p.Energy.Power, &channels); err != nil || len(channels) == 0 {
		return 0, fmt.Errorf("unexpected ENERGY.Power value %s", p.Energy.Power)
	}
	return channels[0], nil
}

// ReadPower asks the plug for a fresh reading and waits for the answer
// until ctx is done. If the plug stays silent, a cached reading younger than
// MaxAge is returned instead.
func (r *TasmotaReader) ReadPower(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ch := make(chan float64, 1)
	r.mu.Lock()
	if err := r.subErr; err != nil {
		r.mu.Unlock()
		return 0, err
	}
	r.waiters = append(r.waiters, ch)
	r.mu.Unlock()

	if err := r.send(CommandTopic(r.device), []byte(statusEnergy)); err != nil {
		r.dropWaiter(ch)
		return 0, fmt.Errorf("tasmota: request status: %w", err)
	}

	select {
	case watts := <-ch:
		return watts, nil
	case <-ctx.Done():
		r.dropWaiter(ch)
		return r.cached(ctx.Err())
	}
}

func (r *TasmotaReader) dropWaiter(ch chan float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, w := range r.waiters {
		if w == ch {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			return
		}
	}
}

func (r *TasmotaReader) cached(cause error) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seenAt.IsZero() {
		return 0, fmt.Errorf("%w: %v", ErrNoReading, cause)
	}
	age := r.now().Sub(r.seenAt)
	if r.maxAge > 0 && age > r.maxAge {
		return 0, fmt.Errorf("%w: last seen %s ago", ErrStale, age.Truncate(time.Second))
	}
	return r.watts, nil
}

// Close disconnects from the broker.
func (r *TasmotaReader) Close() error {
	if r.client != nil {
		r.client.Disconnect(1000) // 1 second timeout
	}
	return nil
}
