// Package mqtt publishes washer events to an MQTT broker, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sweeney/washer-notify/internal/logic"
)

// Topic is the MQTT topic for cycle events.
const Topic = "home/laundry/washer/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "home/laundry/washer/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a cycle event to the broker.
	// Returns error if publishing fails (should not crash the process).
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

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Washer WasherPayload `json:"washer"`
}

// WasherPayload contains the cycle event details. The recipient id is
// deliberately absent: the broker is a shared household bus.
type WasherPayload struct {
	ID         string  `json:"id"`
	Timestamp  string  `json:"timestamp"`
	Event      string  `json:"event"`
	From       string  `json:"from"`
	To         string  `json:"to"`
	PowerWatts float64 `json:"power_watts"`
}

// FormatPayload creates the JSON payload for a cycle event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Washer: WasherPayload{
			ID:         uuid.NewString(),
			Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
			Event:      string(event.Type),
			From:       string(event.From),
			To:         string(event.To),
			PowerWatts: event.Power,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
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
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

// Publish drops the event.
func (NopPublisher) Publish(logic.Event) error { return nil }

// PublishSystem drops the event.
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }

// IsConnected always reports false: there is no broker.
func (NopPublisher) IsConnected() bool { return false }
