package power

import (
	"context"
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted power readings.
type FakeReader struct {
	mu sync.Mutex

	// Samples contains scripted readings in watts.
	// Each call to ReadPower() consumes the next sample.
	Samples []float64

	// index tracks current position in Samples
	index int

	// Reads counts calls to ReadPower, including failed ones.
	Reads int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by ReadPower()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []float64) *FakeReader {
	return &FakeReader{Samples: samples}
}

// ReadPower returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) ReadPower(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Reads++
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Samples) == 0 {
		return 0, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return sample, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.mu.Lock()
	f.index = 0
	f.Reads = 0
	f.Closed = false
	f.mu.Unlock()
}
