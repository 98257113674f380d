// Package monitor polls the power meter and drives the wash-cycle state
// machine, sending the completion notification when a cycle ends.
package monitor

import (
	"context"
	"time"

	"github.com/sweeney/washer-notify/internal/line"
	"github.com/sweeney/washer-notify/internal/logger"
	"github.com/sweeney/washer-notify/internal/logic"
	"github.com/sweeney/washer-notify/internal/mqtt"
	"github.com/sweeney/washer-notify/internal/power"
	"github.com/sweeney/washer-notify/internal/status"
)

// notifyTimeout bounds a completion push, which may outlive the run context
// when a cycle finishes during shutdown.
const notifyTimeout = 10 * time.Second

// Config controls polling cadence and the notification text.
type Config struct {
	PollInterval     time.Duration
	IdlePollInterval time.Duration
	// ReadTimeout bounds a single meter read. Zero uses PollInterval.
	ReadTimeout time.Duration
	// Heartbeat is the HEARTBEAT period. Zero disables it.
	Heartbeat time.Duration
	DoneText  string
}

// Monitor runs the polling loop.
type Monitor struct {
	reader     power.Reader
	cycle      *logic.Cycle
	messenger  line.Messenger
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	cfg        Config
	log        *logger.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// New creates a Monitor. If publisher also reports its connection state, the
// tracker is kept up to date with it.
func New(reader power.Reader, cycle *logic.Cycle, messenger line.Messenger, publisher mqtt.Publisher, tracker *status.Tracker, cfg Config, log *logger.Logger) *Monitor {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = cfg.PollInterval
	}
	m := &Monitor{
		reader:    reader,
		cycle:     cycle,
		messenger: messenger,
		publisher: publisher,
		tracker:   tracker,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		after:     time.After,
	}
	if cs, ok := publisher.(mqtt.ConnectionStatus); ok {
		m.mqttStatus = cs
	}
	return m
}

// Run polls until ctx is cancelled. It always returns nil: no poll or
// delivery failure stops the loop.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Infow("monitor_started",
		"poll", m.cfg.PollInterval,
		"idle_poll", m.cfg.IdlePollInterval,
		"heartbeat", m.cfg.Heartbeat)

	for {
		if ctx.Err() != nil {
			return nil
		}
		wait := m.Step(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-m.after(wait):
		}
	}
}

// Step performs one iteration and returns how long to sleep before the next.
func (m *Monitor) Step(ctx context.Context) time.Duration {
	if !m.cycle.Registered() {
		m.checkHeartbeat(m.now())
		return m.cfg.IdlePollInterval
	}

	readCtx, cancel := context.WithTimeout(ctx, m.cfg.ReadTimeout)
	watts, err := m.reader.ReadPower(readCtx)
	cancel()

	t := m.now()
	if err != nil {
		m.log.Warnw("power_read_failed", "err", err)
		m.tracker.RecordPollError(err, t)
		m.checkHeartbeat(t)
		return m.cfg.PollInterval
	}
	m.tracker.RecordPoll(watts, t)
	m.log.Debugw("power", "watts", watts)

	if ev, ok := m.cycle.Process(logic.Input{Power: watts, Time: t}); ok {
		m.handleEvent(ctx, ev)
	}
	m.refreshTracker()
	m.checkHeartbeat(t)
	return m.cfg.PollInterval
}

func (m *Monitor) handleEvent(ctx context.Context, ev logic.Event) {
	m.log.Infow("cycle_event", "event", ev.Type, "from", ev.From, "to", ev.To, "watts", ev.Power)
	m.publish(ev)

	if ev.Type == logic.EventCycleFinished {
		m.notify(ctx, ev)
	}
}

// notify delivers the completion message. The registration was cleared by
// the transition, so a failure is recorded and not retried.
func (m *Monitor) notify(ctx context.Context, ev logic.Event) {
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := m.messenger.PushText(pushCtx, ev.Recipient, m.cfg.DoneText); err != nil {
		m.cycle.RecordNotifyFailed()
		m.log.Errorw("notify_failed", "recipient", line.ShortID(ev.Recipient), "err", err)
		m.publish(logic.Event{
			Timestamp: m.now(),
			Type:      logic.EventNotifyFailed,
			From:      ev.To,
			To:        ev.To,
			Power:     ev.Power,
		})
		return
	}
	m.log.Infow("notified", "recipient", line.ShortID(ev.Recipient))
}

func (m *Monitor) publish(ev logic.Event) {
	if err := m.publisher.Publish(ev); err != nil {
		m.log.Warnw("mqtt_publish_failed", "event", ev.Type, "err", err)
	}
}

func (m *Monitor) refreshTracker() {
	m.tracker.Update(m.cycle.State())
	if m.mqttStatus != nil {
		m.tracker.SetMQTTConnected(m.mqttStatus.IsConnected())
	}
}

func (m *Monitor) checkHeartbeat(t time.Time) {
	hb := m.cycle.CheckHeartbeat(t, m.cfg.Heartbeat)
	if hb == nil {
		return
	}
	m.log.Infow("heartbeat",
		"uptime", hb.Uptime.Truncate(time.Second),
		"registered", hb.Counts.Registered,
		"finished", hb.Counts.CycleFinished,
		"notify_failed", hb.Counts.NotifyFailed)

	m.refreshTracker()
	event := mqtt.SystemEvent{
		Timestamp:  hb.Timestamp,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(m.tracker.Snapshot(), "HEARTBEAT", ""),
	}
	if err := m.publisher.PublishSystem(event); err != nil {
		m.log.Warnw("heartbeat_publish_failed", "err", err)
	}
}

// PublishSystem publishes a lifecycle event (STARTUP, SHUTDOWN) carrying the
// current status snapshot. Lifecycle events are retained.
func (m *Monitor) PublishSystem(name, reason string) {
	m.refreshTracker()
	event := mqtt.SystemEvent{
		Timestamp:  m.now(),
		Event:      name,
		Reason:     reason,
		RawPayload: status.FormatStatusEvent(m.tracker.Snapshot(), name, reason),
		Retained:   true,
	}
	if err := m.publisher.PublishSystem(event); err != nil {
		m.log.Warnw("system_publish_failed", "event", name, "err", err)
		return
	}
	m.log.Infow("system_event_published", "event", name, "reason", reason)
}
