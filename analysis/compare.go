// Package analysis measures how far a render is from a reference render.
package analysis

import (
	"math"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"
)

const (
	envFrame   = 256
	envHop     = 128
	fftSize    = 4096
	lagWindow  = 1 << 16
	silenceLvl = 1e-6
)

// Metrics compares a candidate render with a reference.
type Metrics struct {
	SampleRate int `json:"sample_rate"`

	ReferenceFrames int `json:"reference_frames"`
	CandidateFrames int `json:"candidate_frames"`
	AlignedFrames   int `json:"aligned_frames"`
	LagSamples      int `json:"lag_samples"`

	TimeRMSE       float64 `json:"time_rmse"`
	EnvelopeRMSEDB float64 `json:"envelope_rmse_db"`
	SpectralRMSEDB float64 `json:"spectral_rmse_db"`
	LevelDiffDB    float64 `json:"level_diff_db"`

	// Score is 0 for identical signals and grows to 1.
	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
}

// Mono mixes a stereo pair down to one channel.
func Mono(left, right []float32) []float32 {
	n := min(len(left), len(right))
	out := make([]float32, n)
	for i := range out {
		out[i] = 0.5 * (left[i] + right[i])
	}
	return out
}

// Compare aligns candidate to reference and measures their distance. Both
// are level-normalized first; the level difference is reported separately.
func Compare(reference, candidate []float32, rate int) Metrics {
	m := Metrics{
		SampleRate:      rate,
		ReferenceFrames: len(reference),
		CandidateFrames: len(candidate),
		Score:           1,
	}
	ref := trimSilence(reference)
	cand := trimSilence(candidate)
	if rate <= 0 || len(ref) < envFrame || len(cand) < envFrame {
		return m
	}
	refRMS, candRMS := rms(ref), rms(cand)
	m.LevelDiffDB = toDB(candRMS) - toDB(refRMS)
	ref = scaled(ref, 0.1/refRMS)
	cand = scaled(cand, 0.1/candRMS)

	maxLag := min(rate/2, len(ref)-1, len(cand)-1)
	m.LagSamples = estimateLag(ref, cand, maxLag)
	ref, cand = align(ref, cand, m.LagSamples)
	n := min(len(ref), len(cand), 12*rate)
	if n < envFrame {
		return m
	}
	ref, cand = ref[:n], cand[:n]
	m.AlignedFrames = n

	var sum float64
	for i := range ref {
		d := float64(ref[i] - cand[i])
		sum += d * d
	}
	m.TimeRMSE = math.Sqrt(sum / float64(n))
	m.EnvelopeRMSEDB = envelopeDistance(ref, cand)
	m.SpectralRMSEDB = spectralDistance(ref, cand)

	m.Score = clamp01(0.35*clamp01(m.TimeRMSE/0.25) +
		0.30*clamp01(m.EnvelopeRMSEDB/30) +
		0.35*clamp01(m.SpectralRMSEDB/30))
	m.Similarity = math.Exp(-4 * m.Score)
	return m
}

func trimSilence(x []float32) []float32 {
	for i, v := range x {
		if math.Abs(float64(v)) > silenceLvl {
			return x[i:]
		}
	}
	return nil
}

func scaled(x []float32, g float64) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32(float64(v) * g)
	}
	return out
}

// estimateLag returns the shift of reference relative to candidate that
// maximizes their cross-correlation over the first lagWindow samples.
func estimateLag(ref, cand []float32, maxLag int) int {
	ref = ref[:min(len(ref), lagWindow)]
	cand = cand[:min(len(cand), lagWindow)]
	if len(ref) == 0 || len(cand) == 0 || maxLag <= 0 {
		return 0
	}
	rev := make([]float32, len(cand))
	for i, v := range cand {
		rev[len(cand)-1-i] = v
	}
	xc := make([]float32, len(ref)+len(cand)-1)
	if err := algofft.ConvolveReal(xc, ref, rev); err != nil {
		return 0
	}
	zero := len(cand) - 1
	best, bestLag := float32(math.Inf(-1)), 0
	for lag := -maxLag; lag <= maxLag; lag++ {
		k := zero + lag
		if k < 0 || k >= len(xc) {
			continue
		}
		if xc[k] > best {
			best, bestLag = xc[k], lag
		}
	}
	return bestLag
}

func align(ref, cand []float32, lag int) ([]float32, []float32) {
	if lag >= 0 {
		return ref[min(lag, len(ref)):], cand
	}
	return ref, cand[min(-lag, len(cand)):]
}

func envelopeDistance(a, b []float32) float64 {
	frames := (len(a)-envFrame)/envHop + 1
	var sum float64
	for f := range frames {
		s := f * envHop
		d := toDB(rms(a[s:s+envFrame])) - toDB(rms(b[s:s+envFrame]))
		sum += d * d
	}
	return math.Sqrt(sum / float64(frames))
}

// spectralDistance compares the Hann-windowed average magnitude spectra of
// a and b in dB.
func spectralDistance(a, b []float32) float64 {
	size := fftSize
	for size > len(a) {
		size /= 2
	}
	if size < 512 {
		return 0
	}
	plan, err := algofft.NewPlanReal64(size)
	if err != nil {
		return 0
	}
	bins := size/2 + 1
	win := make([]float64, size)
	for i := range win {
		win[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size-1))
	}
	buf := make([]float64, size)
	spec := make([]complex128, bins)
	avgA := make([]float64, bins)
	avgB := make([]float64, bins)
	accumulate := func(x []float32, pos int, avg []float64) {
		for i := range buf {
			buf[i] = float64(x[pos+i]) * win[i]
		}
		plan.Forward(spec, buf)
		for k := range avg {
			avg[k] += cmplx.Abs(spec[k])
		}
	}
	for pos := 0; pos+size <= len(a); pos += size / 2 {
		accumulate(a, pos, avgA)
		accumulate(b, pos, avgB)
	}
	var sum float64
	for k := 1; k < bins; k++ {
		d := toDB(avgA[k]) - toDB(avgB[k])
		sum += d * d
	}
	return math.Sqrt(sum / float64(bins-1))
}

func rms(x []float32) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(x)))
}

func toDB(x float64) float64 { return 20 * math.Log10(max(x, 1e-12)) }

func clamp01(x float64) float64 { return max(0, min(x, 1)) }
