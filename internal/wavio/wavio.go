// Package wavio reads and writes the WAV files used for impulse responses,
// audio input and offline rendering.
package wavio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

// Clip is a decoded stereo signal. Mono files are duplicated to both
// channels.
type Clip struct {
	Left  []float32
	Right []float32
	Rate  int
}

// Frames returns the clip length.
func (c *Clip) Frames() int { return len(c.Left) }

// Read decodes path.
func Read(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, fmt.Errorf("invalid wav buffer: %s", path)
	}
	if buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid wav sample-rate: %d", buf.Format.SampleRate)
	}
	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	if frames == 0 {
		return nil, fmt.Errorf("empty wav data: %s", path)
	}
	c := &Clip{
		Left:  make([]float32, frames),
		Right: make([]float32, frames),
		Rate:  buf.Format.SampleRate,
	}
	for i := range frames {
		c.Left[i] = buf.Data[i*ch]
		if ch > 1 {
			c.Right[i] = buf.Data[i*ch+1]
		} else {
			c.Right[i] = c.Left[i]
		}
	}
	return c, nil
}

// Resample converts the clip to rate in place.
func (c *Clip) Resample(rate int) error {
	if c.Rate == rate {
		return nil
	}
	l, err := Resample(c.Left, c.Rate, rate)
	if err != nil {
		return err
	}
	r, err := Resample(c.Right, c.Rate, rate)
	if err != nil {
		return err
	}
	c.Left, c.Right, c.Rate = l, r, rate
	return nil
}

// Resample converts one channel between sample rates.
func Resample(in []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate == toRate {
		return in, nil
	}
	r, err := dspresample.NewForRates(
		float64(fromRate),
		float64(toRate),
		dspresample.WithQuality(dspresample.QualityBest),
	)
	if err != nil {
		return nil, err
	}
	in64 := make([]float64, len(in))
	for i, v := range in {
		in64[i] = float64(v)
	}
	out64 := r.Process(in64)
	out := make([]float32, len(out64))
	for i, v := range out64 {
		out[i] = float32(v)
	}
	return out, nil
}

// Writer streams stereo frames to a 16-bit WAV file. The header is
// completed by Close.
type Writer struct {
	f    *os.File
	enc  *wav.Encoder
	rate int
	data []float32
}

// Create opens path for writing, creating parent directories.
func Create(path string, rate int) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Writer{f: f, enc: wav.NewEncoder(f, rate, 16, 2, 1), rate: rate}, nil
}

// Write appends one block of frames.
func (w *Writer) Write(left, right []float32) error {
	if len(left) != len(right) {
		return fmt.Errorf("left/right length mismatch")
	}
	w.data = w.data[:0]
	for i := range left {
		w.data = append(w.data, left[i], right[i])
	}
	return w.enc.Write(&audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  w.rate,
			NumChannels: 2,
		},
		Data:           w.data,
		SourceBitDepth: 16,
	})
}

// Close finalizes the header and closes the file.
func (w *Writer) Close() error {
	return errors.Join(w.enc.Close(), w.f.Close())
}

// WriteStereo writes a whole file at once.
func WriteStereo(path string, left, right []float32, rate int) error {
	w, err := Create(path, rate)
	if err != nil {
		return err
	}
	if err := w.Write(left, right); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
