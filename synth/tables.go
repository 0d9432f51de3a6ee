package synth

import (
	"math"

	"github.com/cwbudde/algo-synth/param"
	"github.com/cwbudde/algo-synth/patch"
)

const (
	waveTableBits = 12
	waveTableSize = 1 << waveTableBits

	// killTime is how long a stolen or silenced voice takes to fade out.
	killTime = 0.005
)

// Tables holds every lookup table that depends on the sample rate. It is
// rebuilt as a whole on restart and treated as read-only while rendering.
type Tables struct {
	Rate float64

	// Wave holds one cycle of every periodic waveform, plus a guard sample.
	Wave [param.NumWaves][waveTableSize + 1]float32

	// Cutoff maps the filter cutoff controller to the SVF coefficient
	// g = tan(pi*fc/rate).
	Cutoff [129]float32
	// CutoffHz is the frequency behind Cutoff.
	CutoffHz [129]float32

	// EnvLinear is the per-sample increment of a full-scale linear stage.
	EnvLinear [128]float32
	// EnvExp is the per-sample coefficient of an exponential stage.
	EnvExp [128]float32
	// Kill is the exponential coefficient used to silence a stolen voice.
	Kill float32
}

// NewTables builds the tables for rate.
func NewTables(rate float64) *Tables {
	t := &Tables{Rate: rate}
	t.buildWaves()
	for cc := 0; cc <= 128; cc++ {
		// 16 Hz at 0, one octave every 12 steps up to 0.45 * rate
		hz := 16.0 * math.Pow(2, float64(cc)*10.5/128)
		if hz > 0.45*rate {
			hz = 0.45 * rate
		}
		t.CutoffHz[cc] = float32(hz)
		t.Cutoff[cc] = float32(math.Tan(math.Pi * hz / rate))
	}
	for cc := 0; cc < 128; cc++ {
		sec := patch.EnvTime(cc)
		t.EnvLinear[cc] = float32(1 / (sec * rate))
		// Exponential stages reach -60 dB after sec seconds.
		t.EnvExp[cc] = float32(math.Exp(math.Log(0.001) / (sec * rate)))
	}
	t.Kill = float32(math.Exp(math.Log(0.001) / (killTime * rate)))
	return t
}

func (t *Tables) buildWaves() {
	const n = waveTableSize
	for i := 0; i <= n; i++ {
		ph := float64(i%n) / n
		t.Wave[param.WaveSine][i] = float32(math.Sin(2 * math.Pi * ph))
		tri := 4*ph - 1
		if ph >= 0.5 {
			tri = 3 - 4*ph
		}
		t.Wave[param.WaveTriangle][i] = float32(tri)
		t.Wave[param.WaveSaw][i] = float32(2*ph - 1)
		t.Wave[param.WaveRevSaw][i] = float32(1 - 2*ph)
		sq := 1.0
		if ph >= 0.5 {
			sq = -1
		}
		t.Wave[param.WaveSquare][i] = float32(sq)
		pulse := 1.0
		if ph >= 0.25 {
			pulse = -1
		}
		t.Wave[param.WavePulse][i] = float32(pulse)
		t.Wave[param.WaveStair][i] = float32(math.Floor(ph*4)/1.5 - 1)
	}
	// The noise table is a fixed random cycle. Modulators read it like any
	// other wave; audio oscillators use a running generator instead.
	var seed uint32 = 0x9e3779b9
	for i := 0; i < n; i++ {
		seed = xorshift(seed)
		t.Wave[param.WaveNoise][i] = noiseSample(seed)
	}
	t.Wave[param.WaveNoise][n] = t.Wave[param.WaveNoise][0]
}

func xorshift(x uint32) uint32 {
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	return x
}

// noiseSample maps a generator state to [-1, 1).
func noiseSample(x uint32) float32 {
	return float32(x)/float32(1<<31) - 1
}

// CutoffCoef interpolates the SVF coefficient for a fractional cutoff
// controller value.
func (t *Tables) CutoffCoef(cc float32) float32 {
	cc = clampf(cc, 0, 128)
	i := int(cc)
	if i >= 128 {
		return t.Cutoff[128]
	}
	frac := cc - float32(i)
	return t.Cutoff[i] + frac*(t.Cutoff[i+1]-t.Cutoff[i])
}

// lookup reads wave w at phase in [0, 1).
func (t *Tables) lookup(w int, phase float64) float32 {
	pos := phase * waveTableSize
	i := int(pos)
	frac := float32(pos - float64(i))
	tab := &t.Wave[w]
	return tab[i] + frac*(tab[i+1]-tab[i])
}
