package mqtt

import (
	"sync"

	"github.com/sweeney/washer-notify/internal/logic"
)

// FakePublisher keeps everything handed to it in memory. Each published
// event is formatted the same way RealPublisher would format it, so a
// payload that cannot be encoded fails here too.
type FakePublisher struct {
	mu sync.Mutex

	Events         []logic.Event
	Payloads       [][]byte
	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	// Injected failures.
	PublishError       error
	PublishSystemError error

	Closed    bool
	Connected bool
}

// NewFakePublisher returns an empty, disconnected fake.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the event, or returns PublishError.
func (f *FakePublisher) Publish(event logic.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.PublishError; err != nil {
		return err
	}
	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the event, or returns PublishSystemError.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.PublishSystemError; err != nil {
		return err
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close sets Closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected returns Connected.
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// EventTypes lists published washer event types in publish order.
func (f *FakePublisher) EventTypes() []logic.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]logic.EventType, 0, len(f.Events))
	for _, e := range f.Events {
		types = append(types, e.Type)
	}
	return types
}

// SystemEventNames lists published system event names in publish order.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.SystemEvents))
	for _, e := range f.SystemEvents {
		names = append(names, e.Event)
	}
	return names
}

// Reset returns the fake to its zero state.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events, f.Payloads = nil, nil
	f.SystemEvents, f.SystemPayloads = nil, nil
	f.PublishError, f.PublishSystemError = nil, nil
	f.Closed, f.Connected = false, false
}
