//go:build !linux

package power

import (
	"context"
	"errors"
)

// PulseReader is not available on non-Linux platforms.
type PulseReader struct{}

// NewPulseReader returns an error on non-Linux platforms.
func NewPulseReader(cfg PulseConfig) (*PulseReader, error) {
	return nil, errors.New("pulse: not supported on this platform (requires Linux)")
}

// ReadPower is not implemented on non-Linux platforms.
func (r *PulseReader) ReadPower(ctx context.Context) (float64, error) {
	return 0, errors.New("pulse: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *PulseReader) Close() error {
	return nil
}
