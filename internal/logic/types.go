// Package logic contains the wash-cycle state machine.
// This package has NO external dependencies (no device, MQTT, HTTP, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Phase is the stage of a wash cycle as inferred from power draw.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseWashing  Phase = "WASHING"
	PhaseDraining Phase = "DRAINING" // power dropped, awaiting debounce confirmation
)

// EventType represents a cycle transition event.
type EventType string

const (
	EventRegistered    EventType = "REGISTERED"
	EventCycleStarted  EventType = "CYCLE_STARTED"
	EventDrainStarted  EventType = "DRAIN_STARTED"
	EventCycleResumed  EventType = "CYCLE_RESUMED"
	EventCycleFinished EventType = "CYCLE_FINISHED"
	EventNotifyFailed  EventType = "NOTIFY_FAILED"
)

// Thresholds configures the state machine. On must be greater than Off.
type Thresholds struct {
	OnWatts  float64
	OffWatts float64
	Debounce time.Duration
}

// Input represents a single power sample.
type Input struct {
	Power float64 // watts
	Time  time.Time
}

// Event represents a phase transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	From      Phase
	To        Phase
	Power     float64
	// Recipient is set only on CYCLE_FINISHED: the id to notify.
	Recipient string
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Registered    int
	CycleStarted  int
	DrainStarted  int
	CycleResumed  int
	CycleFinished int
	NotifyFailed  int
}

// State is a point-in-time copy of the cycle state.
type State struct {
	Phase      Phase
	Registered bool
	Recipient  string
	DropSince  time.Time // zero unless Draining
	Notified   bool
	Counts     EventCounts
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
