//go:build linux

package power

import (
	"context"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// PulseReader counts S0 pulses on a GPIO line using the Linux GPIO character device.
type PulseReader struct {
	line  *gpiocdev.Line
	meter *pulseMeter
}

// NewPulseReader requests the line with falling-edge detection. S0 outputs
// are open collector, so the line is pulled up and a pulse pulls it low.
func NewPulseReader(cfg PulseConfig) (*PulseReader, error) {
	if cfg.ImpPerKWh <= 0 {
		return nil, fmt.Errorf("pulse: impulses per kWh must be positive")
	}
	r := &PulseReader{meter: newPulseMeter(cfg.ImpPerKWh, cfg.MaxAge, time.Now)}

	line, err := gpiocdev.RequestLine(cfg.Chip, cfg.Line,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			r.meter.record(evt.Timestamp)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("request pulse line %s:%d: %w", cfg.Chip, cfg.Line, err)
	}
	r.line = line
	return r, nil
}

// ReadPower returns the draw derived from the most recent pulse interval.
func (r *PulseReader) ReadPower(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return r.meter.watts(), nil
}

// Close releases the GPIO line.
// The line is returned to a plain pulled-down input, matching Pi boot defaults.
func (r *PulseReader) Close() error {
	if r.line == nil {
		return nil
	}
	var errs []error
	if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pulse line: %w", err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pulse line: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
