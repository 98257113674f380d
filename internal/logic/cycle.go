package logic

import (
	"sync"
	"time"
)

// Cycle holds the registration and wash-cycle state behind a single mutex.
// Register and Process are the only mutators; each runs as one atomic unit.
type Cycle struct {
	mu         sync.Mutex
	thresholds Thresholds
	startTime  time.Time

	recipient  string
	registered bool
	phase      Phase
	dropSince  time.Time
	notified   bool

	counts        EventCounts
	lastHeartbeat time.Time
}

// NewCycle creates an idle, unregistered cycle tracker.
// The startTime is used for calculating uptime in heartbeat events.
func NewCycle(th Thresholds, startTime time.Time) *Cycle {
	return &Cycle{
		thresholds:    th,
		startTime:     startTime,
		phase:         PhaseIdle,
		lastHeartbeat: startTime,
	}
}

// Register records recipient as the one to notify and discards any
// in-progress cycle tracking. A registration that arrives mid-cycle replaces
// the previous recipient.
func (c *Cycle) Register(recipient string, now time.Time) Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := c.phase
	c.recipient = recipient
	c.registered = true
	c.phase = PhaseIdle
	c.dropSince = time.Time{}
	c.notified = false
	c.counts.Registered++

	return Event{
		Timestamp: now,
		Type:      EventRegistered,
		From:      from,
		To:        PhaseIdle,
	}
}

// Registered reports whether someone is waiting for a notification.
func (c *Cycle) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

// Process applies one power sample and returns the resulting event, if the
// sample caused a transition. Samples are ignored while nobody is registered.
//
// A CYCLE_FINISHED event carries the recipient; the registration is already
// cleared when it is returned, so the caller sends the notification outside
// the lock and a second finish cannot be produced for the same registration.
func (c *Cycle) Process(in Input) (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.registered {
		return Event{}, false
	}

	from := c.phase
	th := c.thresholds

	switch c.phase {
	case PhaseIdle:
		if in.Power > th.OnWatts {
			c.notified = false
			c.phase = PhaseWashing
			return c.emit(EventCycleStarted, from, in), true
		}

	case PhaseWashing:
		if in.Power < th.OffWatts {
			if c.dropSince.IsZero() {
				c.dropSince = in.Time
			}
			c.phase = PhaseDraining
			return c.emit(EventDrainStarted, from, in), true
		}

	case PhaseDraining:
		if in.Power > th.OnWatts {
			// False drop: the machine is between sub-stages.
			c.dropSince = time.Time{}
			c.phase = PhaseWashing
			return c.emit(EventCycleResumed, from, in), true
		}
		if in.Time.Sub(c.dropSince) > th.Debounce && !c.notified {
			ev := c.emit(EventCycleFinished, from, in)
			ev.To = PhaseIdle
			ev.Recipient = c.recipient

			c.notified = true
			c.recipient = ""
			c.registered = false
			c.dropSince = time.Time{}
			c.phase = PhaseIdle
			return ev, true
		}
	}

	return Event{}, false
}

func (c *Cycle) emit(t EventType, from Phase, in Input) Event {
	switch t {
	case EventCycleStarted:
		c.counts.CycleStarted++
	case EventDrainStarted:
		c.counts.DrainStarted++
	case EventCycleResumed:
		c.counts.CycleResumed++
	case EventCycleFinished:
		c.counts.CycleFinished++
	}
	return Event{
		Timestamp: in.Time,
		Type:      t,
		From:      from,
		To:        c.phase,
		Power:     in.Power,
	}
}

// RecordNotifyFailed counts a completion notification that could not be
// delivered. The registration stays cleared; delivery is not retried.
func (c *Cycle) RecordNotifyFailed() {
	c.mu.Lock()
	c.counts.NotifyFailed++
	c.mu.Unlock()
}

// State returns a copy of the current state.
func (c *Cycle) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Phase:      c.phase,
		Registered: c.registered,
		Recipient:  c.recipient,
		DropSince:  c.dropSince,
		Notified:   c.notified,
		Counts:     c.counts,
	}
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (c *Cycle) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastHeartbeat) < interval {
		return nil
	}

	c.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(c.startTime),
		Counts:    c.counts,
	}
}
