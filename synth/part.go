package synth

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"

	"github.com/cwbudde/algo-synth/dsp"
	"github.com/cwbudde/algo-synth/midi"
	"github.com/cwbudde/algo-synth/param"
	"github.com/cwbudde/algo-synth/patch"
)

const (
	// MaxVoices is the polyphony of one part.
	MaxVoices = 16
	// MaxBlock is the largest segment rendered in one pass; longer
	// requests are split.
	MaxBlock = 1024

	oscGain = 0.5
	// cutoff controller steps per semitone of keyfollow
	cutoffPerSemitone = 128.0 / (10.5 * 12)
)

// Part renders one synthesizer part. It owns a working copy of the patch
// state and is driven by a single goroutine: events are applied with
// HandleEvent between calls to Render.
type Part struct {
	index  int
	tables *Tables
	state  patch.State

	voices  [MaxVoices]voice
	keys    keyTracker
	sustain bool
	bend    float32 // -1..1
	clock   uint64  // voice age counter
	noise   uint32

	// free-running tempo phases, shared by voices with the tempo base and
	// read by the delay LFO
	freeOsc [param.NumOscs]float64
	freeLFO [param.NumLFOs]float64

	cutoff dsp.OnePole
	chorus *chorus
	delay  *delay
	dc     [2]*biquad.Section

	ctl    control
	buf    [MaxBlock]float32
	cutBuf [MaxBlock]float32
}

// control holds values derived from the state once per rendered segment.
type control struct {
	oscPitch [param.NumOscs]float32 // semitone offset shared by all voices
	oscTempo [param.NumOscs]float32 // tempo base frequency in Hz
	lfoPitch [param.NumLFOs]float32
	lfoTempo [param.NumLFOs]float32

	amp, filter envTimes
	glide       float32
	resonance   float32
	chorus      chorusParams
	delay       delayParams
	panL, panR  float32
	width       float32
	volume      float32
}

// NewPart returns a silent part rendering with t. st is copied; nil means
// the table defaults.
func NewPart(index int, t *Tables, st *patch.State) *Part {
	p := &Part{index: index, noise: uint32(index)*0x51ed27 + 1}
	if st == nil {
		st = patch.NewState()
	}
	p.state = *st
	p.SetTables(t)
	return p
}

// Index returns the part number.
func (p *Part) Index() int { return p.index }

// State returns the working state. It must only be read by the goroutine
// driving the part.
func (p *Part) State() *patch.State { return &p.state }

// SetTables switches to tables for a new sample rate. It allocates the
// effect buffers and silences the part, so it must only be called while
// the part is not rendering.
func (p *Part) SetTables(t *Tables) {
	p.tables = t
	p.chorus = newChorus(t.Rate)
	p.delay = newDelay(t.Rate)
	p.dc[0] = dsp.NewDCBlocker(t.Rate)
	p.dc[1] = dsp.NewDCBlocker(t.Rate)
	p.cutoff.Set(float32(p.state.Filter.Cutoff))
	p.AllSoundOff()
}

// LoadState replaces the working state, as when a patch is loaded.
// Sounding voices continue with the new parameters.
func (p *Part) LoadState(st *patch.State) {
	p.state = *st
}

// HandleEvent applies one event to the part.
func (p *Part) HandleEvent(ev midi.Event) {
	switch ev.Type {
	case midi.NoteOn:
		if ev.Velocity == 0 {
			p.NoteOff(ev.Note)
			return
		}
		p.NoteOn(ev.Note, ev.Velocity)
	case midi.NoteOff:
		p.NoteOff(ev.Note)
	case midi.Controller:
		p.Controller(ev.Controller, ev.Value)
	case midi.PitchBend:
		p.PitchBend(ev.Bend)
	case midi.Param:
		patch.ApplyValue(&p.state, ev.Param, ev.Value)
	case midi.State:
		if ev.State != nil {
			p.LoadState(ev.State)
		}
	}
}

// Controller handles the channel-mode controllers. Parameter controllers
// arrive as Param events instead.
func (p *Part) Controller(cc, value int) {
	switch cc {
	case midi.CCSustain:
		p.SetSustain(value >= 64)
	case midi.CCAllSoundOff:
		p.AllSoundOff()
	case midi.CCAllNotesOff:
		p.AllNotesOff()
	}
}

// PitchBend sets the bend from a signed 14-bit value.
func (p *Part) PitchBend(bend int) {
	p.bend = clampf(float32(bend)/8192, -1, 1)
}

// SetSustain sets the sustain pedal. Lifting it releases the voices whose
// keys are no longer held.
func (p *Part) SetSustain(down bool) {
	p.sustain = down
	if down {
		return
	}
	for i := range p.voices {
		v := &p.voices[i]
		if v.sustained {
			v.sustained = false
			if !v.gate {
				v.amp.release()
				v.fenv.release()
			}
		}
	}
}

// AllNotesOff releases every voice and forgets held keys and the pedal.
func (p *Part) AllNotesOff() {
	p.keys.Clear()
	p.sustain = false
	for i := range p.voices {
		v := &p.voices[i]
		v.gate, v.sustained = false, false
		v.amp.release()
		v.fenv.release()
	}
}

// AllSoundOff silences the part immediately, effects included.
func (p *Part) AllSoundOff() {
	p.keys.Clear()
	p.sustain = false
	for i := range p.voices {
		p.voices[i] = voice{}
	}
	p.chorus.reset()
	p.delay.reset()
	p.dc[0].Reset()
	p.dc[1].Reset()
}

// ActiveVoices returns the number of sounding voices.
func (p *Part) ActiveVoices() int {
	n := 0
	for i := range p.voices {
		if p.voices[i].active() {
			n++
		}
	}
	return n
}

func (p *Part) mono() bool { return p.state.Keymode != param.KeymodePoly }

// NoteOn starts a note according to the key mode.
func (p *Part) NoteOn(note, velocity int) {
	if note < 0 || note > 127 {
		return
	}
	p.keys.NoteOn(note, velocity)
	if !p.mono() {
		p.trigger(p.allocate(note), note, velocity, false)
		return
	}
	v := &p.voices[0]
	legato := p.state.Keymode == param.KeymodeMonoSmooth && v.active() && (v.gate || v.sustained)
	if p.state.Keymode == param.KeymodeMonoMultikey {
		legato = v.active() && (v.gate || v.sustained) && p.keys.Held() > 1
	}
	p.trigger(v, note, velocity, legato)
	if p.state.Keymode == param.KeymodeMonoMultikey {
		p.spreadKeys(v, true)
	}
}

// NoteOff releases a note. Mono modes fall back to the newest key still
// held.
func (p *Part) NoteOff(note int) {
	if note < 0 || note > 127 {
		return
	}
	p.keys.NoteOff(note)
	if p.mono() {
		v := &p.voices[0]
		if !v.active() || !v.gate {
			return
		}
		if key, ok := p.keys.Newest(0); ok {
			v.note = key
			if p.state.Keymode == param.KeymodeMonoMultikey {
				p.spreadKeys(v, true)
			} else {
				v.setTarget(float32(key), p.state.Portamento > 0)
			}
			return
		}
		if v.note == note || p.state.Keymode == param.KeymodeMonoMultikey {
			p.releaseVoice(v)
		}
		return
	}
	for i := range p.voices {
		v := &p.voices[i]
		if v.active() && v.gate && v.note == note {
			p.releaseVoice(v)
		}
	}
}

func (p *Part) releaseVoice(v *voice) {
	v.gate = false
	if p.sustain {
		v.sustained = true
		return
	}
	v.amp.release()
	v.fenv.release()
}

// allocate returns the voice for a new poly note: a voice already playing
// the note, an idle voice, the oldest released voice, or the oldest voice.
func (p *Part) allocate(note int) *voice {
	var idle, released, oldest *voice
	for i := range p.voices {
		v := &p.voices[i]
		if !v.active() {
			if idle == nil {
				idle = v
			}
			continue
		}
		if v.note == note {
			return v
		}
		if v.releasing() && (released == nil || v.age < released.age) {
			released = v
		}
		if oldest == nil || v.age < oldest.age {
			oldest = v
		}
	}
	switch {
	case idle != nil:
		return idle
	case released != nil:
		return released
	}
	return oldest
}

// trigger starts v on note. A legato trigger glides to the note without
// restarting envelopes or phases.
func (p *Part) trigger(v *voice, note, velocity int, legato bool) {
	p.clock++
	wasActive := v.active()
	v.note = note
	v.velocity = float32(velocity) / 127
	v.age = p.clock
	v.gate = true
	v.sustained = false

	glide := p.state.Portamento > 0 && wasActive
	if p.state.Keymode == param.KeymodeMonoSmooth && !legato {
		glide = false
	}
	v.setTarget(float32(note), glide)
	if legato {
		return
	}

	st := &p.state
	for n := range st.Osc {
		o := &st.Osc[n]
		switch o.FreqBase {
		case param.OscBaseTempo:
			v.oscPhase[n] = wrap(p.freeOsc[n] + o.InitPhase)
		case param.OscBaseInput:
		default:
			v.oscPhase[n] = o.InitPhase
		}
	}
	for n := range st.LFO {
		l := &st.LFO[n]
		if l.FreqBase == param.LFOBaseTempo {
			v.lfoPhase[n] = wrap(p.freeLFO[n] + l.InitPhase)
		} else {
			v.lfoPhase[n] = l.InitPhase
		}
		p.noise = xorshift(p.noise)
		v.lfoHold[n] = noiseSample(p.noise)
	}
	if !wasActive {
		v.filt[0].Reset()
		v.filt[1].Reset()
	}
	v.amp.trigger()
	v.fenv.trigger()
}

// spreadKeys assigns the held keys to the oscillators, newest first,
// wrapping when fewer keys than oscillators are held.
func (p *Part) spreadKeys(v *voice, glide bool) {
	held := p.keys.Held()
	if held == 0 {
		return
	}
	glide = glide && p.state.Portamento > 0
	for n := range v.target {
		key, _ := p.keys.Newest(n % held)
		v.target[n] = float32(key)
		if !glide {
			v.key[n] = float32(key)
		}
	}
}

// prepare derives the per-segment control values from the state.
func (p *Part) prepare() {
	st := &p.state
	c := &p.ctl
	rate := p.tables.Rate
	common := float32(st.MasterTune) + float32(st.Transpose)
	for n := range st.Osc {
		o := &st.Osc[n]
		c.oscPitch[n] = common + float32(o.Transpose) + float32(o.FineTune) + p.bend*float32(o.Pitchbend)
		c.oscTempo[n] = float32(param.RateHz(o.Rate, st.BPM))
	}
	for n := range st.LFO {
		l := &st.LFO[n]
		c.lfoPitch[n] = float32(l.Transpose) + p.bend*float32(l.Pitchbend)
		c.lfoTempo[n] = float32(param.RateHz(l.Rate, st.BPM))
	}
	c.amp = envTimes{
		attack:  st.Raw[param.AmpAttack],
		decay:   st.Raw[param.AmpDecay],
		release: st.Raw[param.AmpRelease],
		sustain: float32(st.AmpEnv.Sustain),
	}
	c.filter = envTimes{
		attack:  st.Raw[param.FilterAttack],
		decay:   st.Raw[param.FilterDecay],
		release: st.Raw[param.FilterRelease],
		sustain: float32(st.FilterEnv.Sustain),
	}
	c.glide = onePoleCoef(st.Portamento, rate)
	c.resonance = float32(st.Filter.Resonance)
	p.cutoff.Coef = onePoleCoef(0.001+0.1*st.Filter.Smoothing, rate)
	c.chorus.prepare(st, rate)
	c.delay.prepare(st, rate)

	angle := (st.Pan + 1) * math.Pi / 4
	c.panL = float32(math.Cos(angle) * math.Sqrt2)
	c.panR = float32(math.Sin(angle) * math.Sqrt2)
	c.width = float32(st.StereoWidth)
	c.volume = float32(st.Volume)
}

// Render writes len(outL) frames. in is the mono audio input for
// oscillators with the input frequency base; it may be nil or shorter than
// the output, in which case silence is used.
func (p *Part) Render(outL, outR, in []float32) {
	p.prepare()
	for off := 0; off < len(outL); off += MaxBlock {
		end := min(off+MaxBlock, len(outL))
		var seg []float32
		if off < len(in) {
			seg = in[off:min(end, len(in))]
		}
		p.renderBlock(outL[off:end], outR[off:end], seg)
	}
}

func (p *Part) renderBlock(outL, outR, in []float32) {
	n := len(outL)
	mono := p.buf[:n]
	clear(mono)
	target := float32(p.state.Filter.Cutoff)
	for i := range n {
		p.cutBuf[i] = p.cutoff.Process(target)
	}

	keyfollow := p.keyfollowKey()
	for i := range p.voices {
		v := &p.voices[i]
		if v.active() {
			p.renderVoice(v, mono, in, keyfollow)
		}
	}

	t := p.tables
	c := &p.ctl
	st := &p.state
	rate := t.Rate
	for i := 0; i < n; i++ {
		// free-running tempo phases and the part LFOs used by the delay
		for k := range p.freeOsc {
			p.freeOsc[k] = wrap(p.freeOsc[k] + float64(c.oscTempo[k])/rate)
		}
		for k := range p.freeLFO {
			p.freeLFO[k] = wrap(p.freeLFO[k] + float64(c.lfoTempo[k])/rate)
		}

		x := mono[i]
		l, r := x, x
		if c.chorus.mix > 0 {
			l, r = p.chorus.process(t, &c.chorus, x)
		}
		if c.delay.mix > 0 {
			var mod float32
			if c.delay.lfo > 0 {
				k := c.delay.lfo - 1
				mod = lfoValue(t, st.LFO[k].Wave, st.LFO[k].Polarity, p.freeLFO[k], 0)
			}
			l, r = p.delay.process(&c.delay, l, r, mod)
		}
		m := 0.5 * (l + r)
		s := 0.5 * (l - r) * c.width
		l, r = m+s, m-s
		outL[i] = c.volume * c.panL * l
		outR[i] = c.volume * c.panR * r
	}
	dsp.ProcessBlock(p.dc[0], outL)
	dsp.ProcessBlock(p.dc[1], outR)
}

// keyfollowKey returns the key driving the filter keyfollow, or -1 to use
// each voice's own note.
func (p *Part) keyfollowKey() int {
	var key int
	var ok bool
	switch p.state.Filter.Keyfollow {
	case param.KeyfollowNewest:
		key, ok = p.keys.Newest(0)
	case param.KeyfollowHighest:
		key, ok = p.keys.Highest()
	case param.KeyfollowLowest:
		key, ok = p.keys.Lowest()
	default:
		return 64
	}
	if !ok {
		return -1
	}
	return key
}

func lfoValue(t *Tables, wave, polarity int, phase float64, hold float32) float32 {
	var x float32
	if wave == param.WaveNoise && hold != 0 {
		x = hold
	} else {
		x = t.lookup(wave, phase)
	}
	if polarity == param.PolarityUnipolar {
		x = 0.5 * (x + 1)
	}
	return x
}

// renderVoice adds one voice to out.
func (p *Part) renderVoice(v *voice, out, in []float32, keyfollow int) {
	t := p.tables
	st := &p.state
	c := &p.ctl
	rate := float32(t.Rate)

	velGain := 1 - float32(st.AmpVelocity)*(1-v.velocity)
	kv := clampf(1+float32(st.KeyfollowVol)*float32(v.note-64)/64, 0, 2)
	ampGain := velGain * kv * oscGain

	fkey := keyfollow
	if fkey < 0 {
		fkey = v.note
	}
	baseCutoff := float32(0)
	if st.Filter.Keyfollow != param.KeyfollowOff {
		baseCutoff = float32(fkey-64) * cutoffPerSemitone
	}
	var src [param.NumSelectors]float32

	for i := range out {
		for n := range v.key {
			v.key[n] += c.glide * (v.target[n] - v.key[n])
		}

		// LFOs
		voiceAM := float32(1)
		for n := range st.LFO {
			l := &st.LFO[n]
			var hz float32
			switch l.FreqBase {
			case param.LFOBaseMidiKey:
				hz = keyToFreq(v.key[0] + c.lfoPitch[n])
			case param.LFOBaseTempoKey:
				hz = c.lfoTempo[n] * semitonesToRatio(v.key[0]-60+c.lfoPitch[n])
			default:
				hz = c.lfoTempo[n] * semitonesToRatio(c.lfoPitch[n])
			}
			x := lfoValue(t, l.Wave, l.Polarity, v.lfoPhase[n], v.lfoHold[n])
			src[param.SourceLFO1+n] = x
			if l.VoiceAM > 0 {
				u := x
				if l.Polarity == param.PolarityBipolar {
					u = 0.5 * (x + 1)
				}
				voiceAM *= 1 - float32(l.VoiceAM)*(1-u)
			}
			ph := v.lfoPhase[n] + float64(hz/rate)
			if ph >= 1 && l.Wave == param.WaveNoise {
				p.noise = xorshift(p.noise)
				v.lfoHold[n] = noiseSample(p.noise)
			}
			v.lfoPhase[n] = wrap(ph)
		}
		for n := range v.oscOut {
			src[param.SourceOsc1+n] = v.oscOut[n]
		}

		// oscillators
		var mix float32
		var input float32
		if i < len(in) {
			input = in[i]
		}
		for n := range st.Osc {
			o := &st.Osc[n]
			if o.Modulation == param.ModOff {
				v.oscOut[n] = 0
				continue
			}
			var x float32
			if o.FreqBase == param.OscBaseInput {
				x = input
			} else {
				pitch := c.oscPitch[n]
				if o.FreqLFO != param.SourceOff {
					pitch += src[o.FreqLFO] * float32(o.FreqLFOAmount+o.FreqLFOFine)
				}
				var hz float32
				switch o.FreqBase {
				case param.OscBaseMidiKey:
					hz = keyToFreq(v.key[n] + pitch)
				case param.OscBaseTempoKey:
					hz = c.oscTempo[n] * semitonesToRatio(v.key[n]-60+pitch)
				default:
					hz = c.oscTempo[n] * semitonesToRatio(pitch)
				}
				ph := v.oscPhase[n]
				if o.PhaseLFO != param.SourceOff {
					ph = wrap(ph + float64(src[o.PhaseLFO]*float32(o.PhaseLFOAmount)*0.5))
				}
				x = p.oscWave(o, ph, &src)
				v.oscPhase[n] = wrap(v.oscPhase[n] + float64(hz/rate))
			}
			if o.Polarity == param.PolarityUnipolar {
				x = 0.5 * (x + 1)
			}
			if o.AMLFO != param.SourceOff {
				x *= 1 + float32(o.AMLFOAmount)*src[o.AMLFO]
			}
			switch o.Modulation {
			case param.ModMix:
				mix += x
			case param.ModAM:
				mix *= x
			}
			v.oscOut[n] = x
		}

		// filter
		fenv := v.fenv.next(t, &c.filter)
		if st.Filter.EnvSource == param.EnvSourceVelocity {
			fenv = v.velocity
		}
		lfo, lfoRes := float32(0), float32(0)
		if st.Filter.LFO != param.SourceOff {
			x := src[st.Filter.LFO]
			lfo = x * float32(st.Filter.LFOCutoff) * 64
			lfoRes = x * float32(st.Filter.LFOResonance) * 0.5
		}
		cut := p.cutBuf[i] + baseCutoff + float32(st.Filter.EnvAmount)*fenv*127 + lfo
		res := clampf(c.resonance+lfoRes, 0, 1)
		coefs := dsp.NewSVFCoefs(t.CutoffCoef(cut), 2-1.96*res)
		y := filterSample(&v.filt[0], &coefs, st.Filter.Mode, mix)
		if st.Filter.Type == param.Filter24dB {
			y = filterSample(&v.filt[1], &coefs, st.Filter.Mode, y)
		}
		y *= float32(st.Filter.Gain)

		amp := v.amp.next(t, &c.amp)
		out[i] += y * amp * ampGain * voiceAM
		if !v.amp.active() {
			break
		}
	}
	v.filt[0].Flush()
	v.filt[1].Flush()
	if !v.amp.active() {
		*v = voice{}
	}
}

func filterSample(f *dsp.SVF, c *dsp.SVFCoefs, mode int, x float32) float32 {
	lp, bp, hp := f.Process(c, x)
	switch mode {
	case param.FilterHighpass:
		return hp
	case param.FilterBandpass:
		return bp
	case param.FilterNotch:
		return lp + hp
	}
	return lp
}

// oscWave reads the oscillator waveform, morphing across the wave list
// when a wave LFO is set.
func (p *Part) oscWave(o *patch.Osc, phase float64, src *[param.NumSelectors]float32) float32 {
	t := p.tables
	if o.WaveLFO != param.SourceOff && o.WaveLFOAmount != 0 {
		pos := clampf(float32(o.Wave)+src[o.WaveLFO]*float32(o.WaveLFOAmount)*param.WaveStair, 0, param.NumWaves-1)
		w := int(pos)
		if w >= param.NumWaves-1 {
			return t.lookup(param.NumWaves-1, phase)
		}
		a := t.lookup(w, phase)
		return a + (pos-float32(w))*(t.lookup(w+1, phase)-a)
	}
	if o.Wave == param.WaveNoise {
		p.noise = xorshift(p.noise)
		return noiseSample(p.noise)
	}
	return t.lookup(o.Wave, phase)
}
