// Package irsynth generates the built-in room impulse response used when no
// response file is configured.
package irsynth

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

// Room controls the generated response.
type Room struct {
	SampleRate int
	// Decay is the time in seconds the low band takes to fall by 60 dB.
	// The response is cut after Decay.
	Decay float64
	// HighDecay is the same for the air band.
	HighDecay float64
	// Reflections is the number of early reflections within the first 50 ms.
	Reflections int
	Width       float64 // stereo spread in [0, 1]
	Brightness  float64 // air band level relative to the body band
	Seed        int64
	Peak        float64 // peak level after normalization
}

// DefaultRoom returns a medium room for rate.
func DefaultRoom(rate int) Room {
	return Room{
		SampleRate:  rate,
		Decay:       1.2,
		HighDecay:   0.25,
		Reflections: 24,
		Width:       0.6,
		Brightness:  0.5,
		Seed:        1,
		Peak:        0.5,
	}
}

func (r *Room) Validate() error {
	if r.SampleRate < 8000 {
		return fmt.Errorf("sample rate too low: %d", r.SampleRate)
	}
	if r.Decay <= 0 || r.HighDecay <= 0 {
		return fmt.Errorf("decay times must be > 0")
	}
	if r.Reflections < 0 {
		return fmt.Errorf("reflections must be >= 0")
	}
	if r.Width < 0 || r.Width > 1 {
		return fmt.Errorf("width must be in [0,1]")
	}
	if r.Brightness < 0 {
		return fmt.Errorf("brightness must be >= 0")
	}
	if r.Peak <= 0 {
		return fmt.Errorf("peak must be > 0")
	}
	return nil
}

// Generate returns the left and right responses: early reflections followed
// by a two-band exponentially decaying noise tail.
func Generate(r Room) ([]float32, []float32, error) {
	if err := r.Validate(); err != nil {
		return nil, nil, err
	}
	rate := float64(r.SampleRate)
	n := max(1, int(math.Round(r.Decay*rate)))
	left := make([]float32, n)
	right := make([]float32, n)
	rng := rand.New(rand.NewSource(r.Seed))

	for range r.Reflections {
		t := 0.001 + 0.049*rng.Float64()
		i := int(t * rate)
		if i >= n {
			continue
		}
		amp := (0.1 + 0.35*rng.Float64()) * math.Exp(-20*t)
		pan := (2*rng.Float64() - 1) * r.Width
		left[i] += float32(amp * (1 - 0.5*pan))
		right[i] += float32(amp * (1 + 0.5*pan))
	}

	// -60 dB after the decay time
	lowK := math.Log(0.001) / (r.Decay * rate)
	highK := math.Log(0.001) / (r.HighDecay * rate)
	type bands struct{ body, air *biquad.Section }
	var ch [2]bands
	for c := range ch {
		ch[c] = bands{
			body: biquad.NewSection(design.Lowpass(min(2500, 0.2*rate), 0.707, rate)),
			air:  biquad.NewSection(design.Highpass(min(5000, 0.4*rate), 0.707, rate)),
		}
	}
	const late = 0.08
	for i := range n {
		lowEnv := math.Exp(lowK * float64(i))
		highEnv := math.Exp(highK * float64(i))
		for c, out := range [2][]float32{left, right} {
			x := rng.NormFloat64()
			body := ch[c].body.ProcessSample(x)
			air := ch[c].air.ProcessSample(x)
			out[i] += float32(late * (lowEnv*body + r.Brightness*highEnv*air))
		}
	}

	fadeOut(left, rate*0.01)
	fadeOut(right, rate*0.01)
	peak := max(peakAbs(left), peakAbs(right), 1e-12)
	g := float32(r.Peak / peak)
	for i := range left {
		left[i] *= g
		right[i] *= g
	}
	return left, right, nil
}

// fadeOut applies a raised-cosine fade over the last frames samples.
func fadeOut(buf []float32, frames float64) {
	m := min(len(buf), int(frames))
	start := len(buf) - m
	for i := range m {
		buf[start+i] *= float32(0.5 * (1 + math.Cos(math.Pi*float64(i)/float64(m))))
	}
}

func peakAbs(x []float32) float64 {
	var m float64
	for _, v := range x {
		m = max(m, math.Abs(float64(v)))
	}
	return m
}
