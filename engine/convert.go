package engine

import (
	"fmt"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
)

// Multiplier is the ratio between the internal render rate and the device
// rate. It is fixed for the life of the process.
type Multiplier int

const (
	RateNormal Multiplier = iota
	RateOversample
	RateUndersample
)

var multiplierNames = []string{"normal", "oversample", "undersample"}

func (m Multiplier) String() string {
	if m < 0 || int(m) >= len(multiplierNames) {
		return fmt.Sprintf("Multiplier(%d)", int(m))
	}
	return multiplierNames[m]
}

// ParseMultiplier resolves a multiplier name.
func ParseMultiplier(s string) (Multiplier, error) {
	for i, n := range multiplierNames {
		if n == s {
			return Multiplier(i), nil
		}
	}
	return RateNormal, fmt.Errorf("unknown sample rate mode %q", s)
}

// Internal converts a device frame count to internal frames.
func (m Multiplier) Internal(frames int) int {
	switch m {
	case RateOversample:
		return frames * 2
	case RateUndersample:
		return frames / 2
	}
	return frames
}

// processor is the streaming part of an algo-dsp resampler.
type processor interface {
	Process(in []float64) []float64
}

// converter streams one channel between rates. Output is queued so that
// every call returns exactly len(dst) frames; the first periods carry the
// resampler's latency as silence.
type converter struct {
	proc processor
	in   []float64
	fifo []float32
}

func newConverter(from, to int) (*converter, error) {
	c := &converter{}
	if from == to {
		return c, nil
	}
	r, err := dspresample.NewForRates(float64(from), float64(to), dspresample.WithQuality(dspresample.QualityBest))
	if err != nil {
		return nil, fmt.Errorf("resampler %d -> %d: %w", from, to, err)
	}
	c.proc = r
	return c, nil
}

func (c *converter) convert(dst, src []float32) {
	if c.proc == nil {
		n := copy(dst, src)
		clear(dst[n:])
		return
	}
	c.in = c.in[:0]
	for _, s := range src {
		c.in = append(c.in, float64(s))
	}
	for _, s := range c.proc.Process(c.in) {
		c.fifo = append(c.fifo, float32(s))
	}
	if extra := len(c.fifo) - 4*len(dst); extra > 0 {
		c.fifo = c.fifo[:copy(c.fifo, c.fifo[extra:])]
	}
	n := copy(dst, c.fifo)
	clear(dst[n:])
	c.fifo = c.fifo[:copy(c.fifo, c.fifo[n:])]
}
