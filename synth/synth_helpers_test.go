package synth

import (
	"math"
	"testing"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/cwbudde/algo-synth/param"
	"github.com/cwbudde/algo-synth/patch"
)

const testRate = 48000

var testTables = NewTables(testRate)

// newTestPart returns a part whose state is the defaults with overrides
// applied as controller values.
func newTestPart(t *testing.T, overrides map[param.ID]int) *Part {
	t.Helper()
	st := patch.NewState()
	for id, cc := range overrides {
		patch.ApplyValue(st, id, cc)
	}
	return NewPart(0, testTables, st)
}

func render(p *Part, frames int) (l, r []float32) {
	l = make([]float32, frames)
	r = make([]float32, frames)
	p.Render(l, r, nil)
	return l, r
}

func rms(x []float32) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, s := range x {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(x)))
}

func assertFinite(t *testing.T, x []float32) {
	t.Helper()
	for i, s := range x {
		if !isFinite(s) {
			t.Fatalf("non-finite sample at %d: %v", i, s)
		}
	}
}

// peakHz returns the frequency of the strongest bin of a Hann-windowed FFT
// over the first fftSize samples of x.
func peakHz(t *testing.T, x []float32, rate float64) float64 {
	t.Helper()
	const fftSize = 8192
	if len(x) < fftSize {
		t.Fatalf("need %d samples, have %d", fftSize, len(x))
	}
	plan, err := algofft.NewPlanReal64(fftSize)
	if err != nil {
		t.Fatalf("fft plan: %v", err)
	}
	buf := make([]float64, fftSize)
	for i := range buf {
		w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(fftSize-1))
		buf[i] = float64(x[i]) * w
	}
	spec := make([]complex128, fftSize/2+1)
	plan.Forward(spec, buf)

	best, bestMag := 0, 0.0
	for k := 1; k < len(spec); k++ {
		re, im := real(spec[k]), imag(spec[k])
		if mag := re*re + im*im; mag > bestMag {
			best, bestMag = k, mag
		}
	}
	return float64(best) * rate / fftSize
}
