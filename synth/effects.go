package synth

import (
	dspdelay "github.com/cwbudde/algo-dsp/dsp/delay"

	"github.com/cwbudde/algo-synth/dsp"
	"github.com/cwbudde/algo-synth/param"
	"github.com/cwbudde/algo-synth/patch"
)

const (
	// maxChorusTime covers the longest chorus time plus full modulation depth.
	maxChorusTime = 0.1
	// maxDelayTime bounds the tempo delay; longer note values are clamped.
	maxDelayTime = 4.0
)

// chorus is a stereo modulated delay. The right channel reads the chorus LFO
// a quarter cycle later, with the offset itself swept by the phase LFO.
type chorus struct {
	lines    [2]*dspdelay.Line
	fb       [2]float32
	lfoPhase float64
	phPhase  float64
}

func newChorus(rate float64) *chorus {
	n := int(maxChorusTime*rate) + 4
	return &chorus{lines: [2]*dspdelay.Line{dsp.NewDelayLine(n), dsp.NewDelayLine(n)}}
}

// chorusParams are derived once per rendered segment.
type chorusParams struct {
	mix, feed, cross float32
	base, depth      float32 // samples
	wave             int
	lfoInc, phInc    float64
	phAmount         float32
}

func (c *chorusParams) prepare(st *patch.State, rate float64) {
	ch := &st.Chorus
	c.mix = float32(ch.Mix)
	c.feed = float32(ch.Feed)
	c.cross = float32(ch.Crossover)
	c.base = float32(ch.TimeMs * rate / 1000)
	c.depth = float32(ch.Amount) * c.base * 0.5
	c.wave = ch.LFOWave
	c.lfoInc = param.RateHz(ch.LFORate, st.BPM) / rate
	c.phInc = param.RateHz(ch.PhaseRate, st.BPM) / rate
	c.phAmount = float32(ch.PhaseAmount)
}

func (c *chorus) process(t *Tables, cp *chorusParams, in float32) (float32, float32) {
	offset := 0.25 + 0.25*float64(cp.phAmount*t.lookup(param.WaveSine, c.phPhase))
	modL := t.lookup(cp.wave, c.lfoPhase)
	modR := t.lookup(cp.wave, wrap(c.lfoPhase+offset))
	c.lfoPhase = wrap(c.lfoPhase + cp.lfoInc)
	c.phPhase = wrap(c.phPhase + cp.phInc)

	wetL := dsp.ReadDelay(c.lines[0], cp.base+cp.depth*modL)
	wetR := dsp.ReadDelay(c.lines[1], cp.base+cp.depth*modR)
	c.lines[0].Write(float64(in + c.fb[0]))
	c.lines[1].Write(float64(in + c.fb[1]))
	c.fb[0] = cp.feed * ((1-cp.cross)*wetL + cp.cross*wetR)
	c.fb[1] = cp.feed * ((1-cp.cross)*wetR + cp.cross*wetL)

	dry := (1 - cp.mix) * in
	return dry + cp.mix*wetL, dry + cp.mix*wetR
}

func (c *chorus) reset() {
	c.lines[0].Reset()
	c.lines[1].Reset()
	c.fb = [2]float32{}
}

// delay is a stereo tempo delay with cross feedback.
type delay struct {
	lines [2]*dspdelay.Line
	time  dsp.OnePole // smoothed delay in samples
}

func newDelay(rate float64) *delay {
	n := int(maxDelayTime*rate) + 4
	d := &delay{lines: [2]*dspdelay.Line{dsp.NewDelayLine(n), dsp.NewDelayLine(n)}}
	d.time.Coef = onePoleCoef(0.05, rate)
	return d
}

type delayParams struct {
	mix, feed, cross float32
	samples          float32
	lfo              int
}

func (d *delayParams) prepare(st *patch.State, rate float64) {
	dl := &st.Delay
	d.mix = float32(dl.Mix)
	d.feed = float32(dl.Feed)
	d.cross = float32(dl.Crossover)
	sec := 0.0
	if st.BPM > 0 {
		sec = param.RateBeats(dl.Time) * 60 / st.BPM
	}
	if sec > maxDelayTime {
		sec = maxDelayTime
	}
	d.samples = float32(sec * rate)
	d.lfo = dl.LFO
}

// process mixes the echoes into l and r. mod is the selected part LFO, or
// 0 when the delay is not modulated.
func (d *delay) process(dp *delayParams, l, r, mod float32) (float32, float32) {
	if d.time.Value() == 0 {
		d.time.Set(dp.samples)
	}
	t := d.time.Process(dp.samples * (1 + 0.01*mod))
	wetL := dsp.ReadDelay(d.lines[0], t)
	wetR := dsp.ReadDelay(d.lines[1], t)
	d.lines[0].Write(float64(l + dp.feed*((1-dp.cross)*wetL+dp.cross*wetR)))
	d.lines[1].Write(float64(r + dp.feed*((1-dp.cross)*wetR+dp.cross*wetL)))
	return l + dp.mix*wetL, r + dp.mix*wetR
}

func (d *delay) reset() {
	d.lines[0].Reset()
	d.lines[1].Reset()
	d.time.Set(0)
}
