// Package backend connects the engine to an audio device or file. A
// backend paces the engine: WaitPeriod blocks until the device can take
// another period, WritePeriod hands it over.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// ErrStalled is returned by WaitPeriod when the device stopped consuming
// audio. The engine restarts the backend.
var ErrStalled = errors.New("backend: audio device stalled")

// Config is the stream format. Open may adjust it to what the device
// supports and returns the format in effect.
type Config struct {
	Rate   int
	Period int // frames per period
}

// Validate checks the format.
func (c Config) Validate() error {
	if c.Rate < 8000 || c.Rate > 192000 {
		return fmt.Errorf("sample rate %d out of range [8000, 192000]", c.Rate)
	}
	if c.Period < 16 || c.Period > 8192 {
		return fmt.Errorf("period %d out of range [16, 8192]", c.Period)
	}
	return nil
}

// Backend is an audio output. Methods other than Close are called only by
// the engine driver goroutine.
type Backend interface {
	Name() string
	Open(cfg Config) (Config, error)
	// WaitPeriod blocks until one period can be written. io.EOF means the
	// stream is complete and the engine should shut down.
	WaitPeriod(ctx context.Context) error
	WritePeriod(left, right []float32) error
	Close() error
}

// Input is implemented by backends that also deliver audio input. The
// engine reads one period before rendering it.
type Input interface {
	ReadPeriod(left, right []float32) error
}
