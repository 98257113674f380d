package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Phase         string     `json:"phase"`
	Registered    bool       `json:"registered"`
	Power         *PowerJSON `json:"power,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"event_counts"`
	Config        ConfigJSON `json:"config"`
}

// PowerJSON describes the most recent poll.
type PowerJSON struct {
	Watts      float64 `json:"watts"`
	PolledAt   string  `json:"polled_at"`
	Error      string  `json:"error,omitempty"`
	ErrorCount int     `json:"error_count"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Registered    int `json:"registered"`
	CycleStarted  int `json:"cycle_started"`
	DrainStarted  int `json:"drain_started"`
	CycleResumed  int `json:"cycle_resumed"`
	CycleFinished int `json:"cycle_finished"`
	NotifyFailed  int `json:"notify_failed"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	OnWatts     float64 `json:"on_watts"`
	OffWatts    float64 `json:"off_watts"`
	DebounceMs  int64   `json:"debounce_ms"`
	PollMs      int64   `json:"poll_ms"`
	IdlePollMs  int64   `json:"idle_poll_ms"`
	HeartbeatMs int64   `json:"heartbeat_ms"`
	Device      string  `json:"device"`
	Broker      string  `json:"broker"`
	HTTPAddr    string  `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	phase := string(snap.Phase)
	if phase == "" {
		phase = "UNKNOWN"
	}

	inner := StatusInner{
		Phase:         phase,
		Registered:    snap.Registered,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Registered:    snap.Counts.Registered,
			CycleStarted:  snap.Counts.CycleStarted,
			DrainStarted:  snap.Counts.DrainStarted,
			CycleResumed:  snap.Counts.CycleResumed,
			CycleFinished: snap.Counts.CycleFinished,
			NotifyFailed:  snap.Counts.NotifyFailed,
		},
		Config: ConfigJSON{
			OnWatts:     snap.Config.OnWatts,
			OffWatts:    snap.Config.OffWatts,
			DebounceMs:  snap.Config.DebounceMs,
			PollMs:      snap.Config.PollMs,
			IdlePollMs:  snap.Config.IdlePollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Device:      snap.Config.DeviceKind,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}

	if !snap.LastPollAt.IsZero() {
		inner.Power = &PowerJSON{
			Watts:      snap.LastPower,
			PolledAt:   snap.LastPollAt.UTC().Format(time.RFC3339),
			Error:      snap.LastPollError,
			ErrorCount: snap.PollErrors,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
