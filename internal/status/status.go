// Package status provides a thread-safe status tracker for the washer-notify daemon.
// It is read by the HTTP handlers and used to build MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/washer-notify/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	OnWatts     float64
	OffWatts    float64
	DebounceMs  int64
	PollMs      int64
	IdlePollMs  int64
	HeartbeatMs int64
	DeviceKind  string
	Broker      string
	HTTPAddr    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Phase         logic.Phase
	Registered    bool
	Counts        logic.EventCounts
	LastPower     float64
	LastPollAt    time.Time
	LastPollError string
	PollErrors    int
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Phase:     logic.PhaseIdle,
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update copies the cycle state into the tracker. The recipient is not kept.
func (t *Tracker) Update(st logic.State) {
	t.mu.Lock()
	t.snap.Phase = st.Phase
	t.snap.Registered = st.Registered
	t.snap.Counts = st.Counts
	t.mu.Unlock()
}

// RecordPoll stores a successful power reading.
func (t *Tracker) RecordPoll(watts float64, at time.Time) {
	t.mu.Lock()
	t.snap.LastPower = watts
	t.snap.LastPollAt = at
	t.snap.LastPollError = ""
	t.mu.Unlock()
}

// RecordPollError stores a failed power reading.
func (t *Tracker) RecordPollError(err error, at time.Time) {
	t.mu.Lock()
	t.snap.LastPollAt = at
	t.snap.LastPollError = err.Error()
	t.snap.PollErrors++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
