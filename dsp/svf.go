package dsp

// SVF is a trapezoidal state variable filter. One Process call yields the
// lowpass, bandpass and highpass outputs of the same state; notch is
// lowpass + highpass.
type SVF struct {
	ic1, ic2 float32
}

// SVFCoefs are the per-sample coefficients for a cutoff coefficient
// g = tan(pi*fc/fs) and damping k = 1/Q.
type SVFCoefs struct {
	K, A1, A2, A3 float32
}

// NewSVFCoefs computes the coefficients for g and k.
func NewSVFCoefs(g, k float32) SVFCoefs {
	a1 := 1 / (1 + g*(g+k))
	a2 := g * a1
	return SVFCoefs{K: k, A1: a1, A2: a2, A3: g * a2}
}

// Process runs one sample and returns lowpass, bandpass and highpass.
func (f *SVF) Process(c *SVFCoefs, x float32) (lp, bp, hp float32) {
	v3 := x - f.ic2
	v1 := c.A1*f.ic1 + c.A2*v3
	v2 := f.ic2 + c.A2*f.ic1 + c.A3*v3
	f.ic1 = 2*v1 - f.ic1
	f.ic2 = 2*v2 - f.ic2
	lp, bp = v2, v1
	hp = x - c.K*bp - lp
	return lp, bp, hp
}

// Flush zeroes denormal state. Call once per block.
func (f *SVF) Flush() {
	f.ic1 = Flush(f.ic1)
	f.ic2 = Flush(f.ic2)
}

// Reset clears the state.
func (f *SVF) Reset() { f.ic1, f.ic2 = 0, 0 }

// OnePole is a one-pole lowpass y += a*(x-y), used for parameter smoothing
// and effect crossovers.
type OnePole struct {
	Coef float32
	y    float32
}

// Process filters one sample.
func (p *OnePole) Process(x float32) float32 {
	p.y += p.Coef * (x - p.y)
	return p.y
}

// Value returns the last output.
func (p *OnePole) Value() float32 { return p.y }

// Set jumps the output to y.
func (p *OnePole) Set(y float32) { p.y = y }
