package patch

import (
	"math"

	"github.com/cwbudde/algo-synth/param"
)

// update recomputes the State fields fed by one parameter. Callbacks are pure
// functions of the value: re-applying an unchanged value leaves State as is.
type update func(s *State, v param.Value)

var dispatch [param.NumParams]update

// UpdateState applies the current value of p to s.
func UpdateState(s *State, p *param.Param) {
	apply(s, p.Info.ID, p.Value)
}

// ApplyValue applies a controller-domain value of id to s. The value is
// clamped into the parameter's range. It does not allocate and is safe to
// call from the render goroutine on its own State.
func ApplyValue(s *State, id param.ID, cc int) {
	if id < 0 || int(id) >= param.NumParams {
		return
	}
	info := param.Lookup(id)
	cc = info.Clamp(cc)
	apply(s, id, param.Value{CCPrev: s.Raw[id], CCVal: cc, IntVal: cc + info.CCOffset})
}

func apply(s *State, id param.ID, v param.Value) {
	s.Raw[id] = v.CCVal
	if f := dispatch[id]; f != nil {
		f(s, v)
	}
}

// EnvTime maps a controller value to an envelope stage time in seconds,
// exponentially from 0.5 ms at 0 to 10 s at 127.
func EnvTime(cc int) float64 {
	return 0.0005 * math.Pow(20000, float64(cc)/127)
}

func unit(v param.Value) float64    { return float64(v.CCVal) / 127 }
func bipolar(v param.Value) float64 { return float64(v.IntVal) / 64 }

func init() {
	d := &dispatch

	d[param.MidiChannel] = func(s *State, v param.Value) { s.MidiChannel = v.CCVal }
	d[param.BPM] = func(s *State, v param.Value) { s.BPM = float64(v.IntVal) }
	d[param.MasterTune] = func(s *State, v param.Value) { s.MasterTune = bipolar(v) }
	d[param.Portamento] = func(s *State, v param.Value) {
		if v.CCVal == 0 {
			s.Portamento = 0
			return
		}
		s.Portamento = EnvTime(v.CCVal)
	}
	d[param.Keymode] = func(s *State, v param.Value) { s.Keymode = v.CCVal }
	d[param.KeyfollowVol] = func(s *State, v param.Value) { s.KeyfollowVol = bipolar(v) }
	d[param.Transpose] = func(s *State, v param.Value) { s.Transpose = v.IntVal }
	d[param.Volume] = func(s *State, v param.Value) { u := unit(v); s.Volume = u * u }
	d[param.Pan] = func(s *State, v param.Value) { s.Pan = math.Max(-1, math.Min(1, bipolar(v))) }
	d[param.StereoWidth] = func(s *State, v param.Value) { s.StereoWidth = unit(v) }
	d[param.AmpVelocity] = func(s *State, v param.Value) { s.AmpVelocity = unit(v) }

	envelope(param.AmpAttack, func(s *State) *Envelope { return &s.AmpEnv })
	envelope(param.FilterAttack, func(s *State) *Envelope { return &s.FilterEnv })

	d[param.ChorusMix] = func(s *State, v param.Value) { s.Chorus.Mix = unit(v) }
	d[param.ChorusAmount] = func(s *State, v param.Value) { s.Chorus.Amount = unit(v) }
	d[param.ChorusTime] = func(s *State, v param.Value) { s.Chorus.TimeMs = 1 + 49*unit(v) }
	d[param.ChorusFeed] = func(s *State, v param.Value) { s.Chorus.Feed = 0.95 * unit(v) }
	d[param.ChorusCrossover] = func(s *State, v param.Value) { s.Chorus.Crossover = unit(v) }
	d[param.ChorusLFOWave] = func(s *State, v param.Value) { s.Chorus.LFOWave = v.CCVal }
	d[param.ChorusLFORate] = func(s *State, v param.Value) { s.Chorus.LFORate = v.CCVal }
	d[param.ChorusPhaseRate] = func(s *State, v param.Value) { s.Chorus.PhaseRate = v.CCVal }
	d[param.ChorusPhaseAmount] = func(s *State, v param.Value) { s.Chorus.PhaseAmount = unit(v) }

	d[param.DelayMix] = func(s *State, v param.Value) { s.Delay.Mix = unit(v) }
	d[param.DelayFeed] = func(s *State, v param.Value) { s.Delay.Feed = 0.95 * unit(v) }
	d[param.DelayCrossover] = func(s *State, v param.Value) { s.Delay.Crossover = unit(v) }
	d[param.DelayTime] = func(s *State, v param.Value) { s.Delay.Time = v.CCVal }
	d[param.DelayLFO] = func(s *State, v param.Value) { s.Delay.LFO = v.CCVal }

	d[param.FilterCutoff] = func(s *State, v param.Value) { s.Filter.Cutoff = float64(v.CCVal) }
	d[param.FilterResonance] = func(s *State, v param.Value) { s.Filter.Resonance = unit(v) }
	d[param.FilterSmoothing] = func(s *State, v param.Value) { s.Filter.Smoothing = unit(v) }
	d[param.FilterKeyfollow] = func(s *State, v param.Value) { s.Filter.Keyfollow = v.CCVal }
	d[param.FilterMode] = func(s *State, v param.Value) { s.Filter.Mode = v.CCVal }
	d[param.FilterType] = func(s *State, v param.Value) { s.Filter.Type = v.CCVal }
	d[param.FilterGain] = func(s *State, v param.Value) { s.Filter.Gain = float64(v.CCVal) / 64 }
	d[param.FilterEnvAmount] = func(s *State, v param.Value) { s.Filter.EnvAmount = bipolar(v) }
	d[param.FilterEnvSource] = func(s *State, v param.Value) { s.Filter.EnvSource = v.CCVal }
	d[param.FilterLFO] = func(s *State, v param.Value) { s.Filter.LFO = v.CCVal }
	d[param.FilterLFOCutoff] = func(s *State, v param.Value) { s.Filter.LFOCutoff = bipolar(v) }
	d[param.FilterLFOResonance] = func(s *State, v param.Value) { s.Filter.LFOResonance = bipolar(v) }

	for n := 0; n < param.NumOscs; n++ {
		osc := func(off param.ID, f func(o *Osc, v param.Value)) {
			d[param.Osc(n, off)] = func(s *State, v param.Value) { f(&s.Osc[n], v) }
		}
		osc(param.OscModulation, func(o *Osc, v param.Value) { o.Modulation = v.CCVal })
		osc(param.OscPolarity, func(o *Osc, v param.Value) { o.Polarity = v.CCVal })
		osc(param.OscFreqBase, func(o *Osc, v param.Value) { o.FreqBase = v.CCVal })
		osc(param.OscWave, func(o *Osc, v param.Value) { o.Wave = v.CCVal })
		osc(param.OscRate, func(o *Osc, v param.Value) { o.Rate = v.CCVal })
		osc(param.OscInitPhase, func(o *Osc, v param.Value) { o.InitPhase = float64(v.CCVal) / 128 })
		osc(param.OscTranspose, func(o *Osc, v param.Value) { o.Transpose = v.IntVal })
		osc(param.OscFineTune, func(o *Osc, v param.Value) { o.FineTune = float64(v.IntVal) / 128 })
		osc(param.OscPitchbend, func(o *Osc, v param.Value) { o.Pitchbend = v.IntVal })
		osc(param.OscAMLFO, func(o *Osc, v param.Value) { o.AMLFO = v.CCVal })
		osc(param.OscAMLFOAmount, func(o *Osc, v param.Value) { o.AMLFOAmount = bipolar(v) })
		osc(param.OscFreqLFO, func(o *Osc, v param.Value) { o.FreqLFO = v.CCVal })
		osc(param.OscFreqLFOAmount, func(o *Osc, v param.Value) { o.FreqLFOAmount = 12 * bipolar(v) })
		osc(param.OscFreqLFOFine, func(o *Osc, v param.Value) { o.FreqLFOFine = bipolar(v) })
		osc(param.OscPhaseLFO, func(o *Osc, v param.Value) { o.PhaseLFO = v.CCVal })
		osc(param.OscPhaseLFOAmount, func(o *Osc, v param.Value) { o.PhaseLFOAmount = bipolar(v) })
		osc(param.OscWaveLFO, func(o *Osc, v param.Value) { o.WaveLFO = v.CCVal })
		osc(param.OscWaveLFOAmount, func(o *Osc, v param.Value) { o.WaveLFOAmount = bipolar(v) })
	}

	for n := 0; n < param.NumLFOs; n++ {
		lfo := func(off param.ID, f func(l *LFO, v param.Value)) {
			d[param.LFO(n, off)] = func(s *State, v param.Value) { f(&s.LFO[n], v) }
		}
		lfo(param.LFOWave, func(l *LFO, v param.Value) { l.Wave = v.CCVal })
		lfo(param.LFOFreqBase, func(l *LFO, v param.Value) { l.FreqBase = v.CCVal })
		lfo(param.LFORate, func(l *LFO, v param.Value) { l.Rate = v.CCVal })
		lfo(param.LFOPolarity, func(l *LFO, v param.Value) { l.Polarity = v.CCVal })
		lfo(param.LFOInitPhase, func(l *LFO, v param.Value) { l.InitPhase = float64(v.CCVal) / 128 })
		lfo(param.LFOTranspose, func(l *LFO, v param.Value) { l.Transpose = v.IntVal })
		lfo(param.LFOPitchbend, func(l *LFO, v param.Value) { l.Pitchbend = v.IntVal })
		lfo(param.LFOVoiceAM, func(l *LFO, v param.Value) { l.VoiceAM = unit(v) })
	}
}

// envelope registers the four ADSR callbacks starting at attack.
func envelope(attack param.ID, env func(s *State) *Envelope) {
	dispatch[attack] = func(s *State, v param.Value) { env(s).Attack = EnvTime(v.CCVal) }
	dispatch[attack+1] = func(s *State, v param.Value) { env(s).Decay = EnvTime(v.CCVal) }
	dispatch[attack+2] = func(s *State, v param.Value) { env(s).Sustain = unit(v) }
	dispatch[attack+3] = func(s *State, v param.Value) { env(s).Release = EnvTime(v.CCVal) }
}
