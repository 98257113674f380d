package power

import (
	"sync"
	"time"
)

// PulseConfig describes an S0 energy-meter output wired to a GPIO line.
type PulseConfig struct {
	Chip      string // e.g. "gpiochip0"
	Line      int    // BCM offset
	ImpPerKWh float64
	// MaxAge is how long without a pulse before the draw is reported as 0 W.
	MaxAge time.Duration
}

// pulseMeter converts pulse timing into watts.
// Each pulse is 1/impPerKWh kWh, so P[W] = 3.6e6 / (impPerKWh * seconds).
type pulseMeter struct {
	impPerKWh float64
	maxAge    time.Duration
	now       func() time.Time

	mu        sync.Mutex
	pulses    int
	lastTS    time.Duration // kernel event timestamp of the last pulse
	lastPulse time.Time     // wall clock of the last pulse
	interval  time.Duration
}

func newPulseMeter(impPerKWh float64, maxAge time.Duration, now func() time.Time) *pulseMeter {
	return &pulseMeter{impPerKWh: impPerKWh, maxAge: maxAge, now: now}
}

// record registers one pulse. ts is the event timestamp from the GPIO edge,
// which is monotonic and more precise than the wall clock.
func (m *pulseMeter) record(ts time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pulses > 0 && ts > m.lastTS {
		m.interval = ts - m.lastTS
	}
	m.pulses++
	m.lastTS = ts
	m.lastPulse = m.now()
}

// watts estimates the current draw. The time since the last pulse bounds the
// estimate from above, so the value decays towards zero when pulses stop.
func (m *pulseMeter) watts() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pulses < 2 || m.interval <= 0 || m.impPerKWh <= 0 {
		return 0
	}
	since := m.now().Sub(m.lastPulse)
	if m.maxAge > 0 && since > m.maxAge {
		return 0
	}

	effective := m.interval
	if since > effective {
		effective = since
	}
	return 3.6e6 / (m.impPerKWh * effective.Seconds())
}
