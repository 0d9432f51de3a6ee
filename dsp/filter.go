// Package dsp adapts the algo-dsp building blocks to the float32 signal path
// of the synthesizer and adds the per-sample filters algo-dsp does not ship.
package dsp

import (
	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/delay"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

// dcCutoff is the corner of the DC blocker on every part output.
const dcCutoff = 5.0

// NewDCBlocker returns a highpass section that removes DC at rate.
func NewDCBlocker(rate float64) *biquad.Section {
	return biquad.NewSection(design.Highpass(dcCutoff, 0.707, rate))
}

// ProcessBlock filters buf in place through s and flushes denormal state.
func ProcessBlock(s *biquad.Section, buf []float32) {
	for i, x := range buf {
		buf[i] = float32(s.ProcessSample(float64(x)))
	}
	st := s.State()
	s.SetState([2]float64{dspcore.FlushDenormals(st[0]), dspcore.FlushDenormals(st[1])})
}

// NewDelayLine returns a delay line holding at least size samples. The
// longest fractional delay it can read is size-3 samples.
func NewDelayLine(size int) *delay.Line {
	// delay.New fails only for size <= 0.
	line, _ := delay.New(max(size, 4))
	return line
}

// ReadDelay reads line at a fractional delay in samples. Delays below two
// samples are read at two so the interpolator never wraps to the oldest
// sample.
func ReadDelay(line *delay.Line, samples float32) float32 {
	return float32(line.ReadFractional(float64(max(samples, 2))))
}

// Flush returns 0 for values in the denormal range.
func Flush(x float32) float32 {
	return float32(dspcore.FlushDenormals(float64(x)))
}
