package synth

import (
	"math"

	"github.com/cwbudde/algo-approx"
)

// keyToFreq converts a fractional MIDI key to a frequency in Hz.
func keyToFreq(key float32) float32 {
	const a4Freq = 440.0
	const a4Note = 69
	return a4Freq * pow2Approx((key-a4Note)/12.0)
}

func pow2Approx(x float32) float32 {
	const ln2 = 0.69314718055994530942
	return approx.FastExp(x * ln2)
}

func semitonesToRatio(st float32) float32 {
	return pow2Approx(st / 12.0)
}

// onePoleCoef returns the per-sample smoothing coefficient reaching 63% of a
// step after seconds.
func onePoleCoef(seconds float64, rate float64) float32 {
	if seconds <= 0 || rate <= 0 {
		return 1
	}
	return float32(1 - math.Exp(-1/(seconds*rate)))
}

func isFinite(x float32) bool {
	return !math.IsNaN(float64(x)) && !math.IsInf(float64(x), 0)
}

func clampf(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// softClip is a cheap tanh-like saturator, exact at 0 and bounded by 1.
func softClip(x float32) float32 {
	x = clampf(x, -3, 3)
	return x * (27 + x*x) / (27 + 9*x*x)
}

// SoftClip saturates buf in place.
func SoftClip(buf []float32) {
	for i, x := range buf {
		buf[i] = softClip(x)
	}
}
