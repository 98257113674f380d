// Package power reads the instantaneous power draw of the monitored outlet.
// Real implementations talk to a Tasmota plug over MQTT, a Shelly plug over
// HTTP, or an S0 pulse meter on a GPIO line. The fake implementation allows
// testing without hardware.
package power

import (
	"context"
	"errors"
)

// Reader reads the current power draw.
type Reader interface {
	// ReadPower returns the current draw in watts.
	// Any error is transient from the caller's point of view.
	ReadPower(ctx context.Context) (float64, error)

	// Close releases device resources.
	Close() error
}

// Device kinds selectable in configuration.
const (
	KindTasmota = "tasmota"
	KindShelly  = "shelly"
	KindPulse   = "pulse"
	KindFake    = "fake"
)

// ErrStale is returned when the last reading is too old to trust.
var ErrStale = errors.New("power: reading is stale")

// ErrNoReading is returned before the device has reported anything.
var ErrNoReading = errors.New("power: no reading yet")
