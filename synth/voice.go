package synth

import (
	"github.com/cwbudde/algo-synth/dsp"
	"github.com/cwbudde/algo-synth/param"
)

// voice is one sounding note: four oscillators, four LFOs, the amp and
// filter envelopes and a two-stage filter.
type voice struct {
	note      int
	velocity  float32
	age       uint64
	gate      bool // key held
	sustained bool // released while the pedal was down

	key    [param.NumOscs]float32 // current (gliding) key per oscillator
	target [param.NumOscs]float32

	oscPhase [param.NumOscs]float64
	oscOut   [param.NumOscs]float32

	lfoPhase [param.NumLFOs]float64
	lfoHold  [param.NumLFOs]float32

	amp  envelope
	fenv envelope
	filt [2]dsp.SVF
}

func (v *voice) active() bool { return v.amp.active() }

// releasing reports whether the voice no longer holds a key.
func (v *voice) releasing() bool { return !v.gate && !v.sustained }

func (v *voice) setTarget(key float32, glide bool) {
	for n := range v.target {
		v.target[n] = key
		if !glide {
			v.key[n] = key
		}
	}
}

// wrap returns the fractional part of a phase in cycles.
func wrap(ph float64) float64 {
	ph -= float64(int64(ph))
	if ph < 0 {
		ph++
	}
	return ph
}
