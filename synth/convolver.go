package synth

import (
	dspconv "github.com/cwbudde/algo-dsp/dsp/conv"

	"github.com/cwbudde/algo-synth/internal/wavio"
)

// RoomConvolver applies a stereo room impulse response to the master
// output with partitioned convolution. Blocks must be a multiple of the
// partition size; a trailing remainder passes through dry.
type RoomConvolver struct {
	rate     int
	partSize int
	mix      float32

	leftOLA  *dspconv.StreamingOverlapAddT[float32, complex64]
	rightOLA *dspconv.StreamingOverlapAddT[float32, complex64]

	leftOut  []float32
	rightOut []float32
}

// NewRoomConvolver returns a convolver with an identity response.
func NewRoomConvolver(rate, partSize int) *RoomConvolver {
	if partSize <= 0 {
		partSize = 128
	}
	c := &RoomConvolver{
		rate:     rate,
		partSize: partSize,
		mix:      1,
		leftOut:  make([]float32, partSize),
		rightOut: make([]float32, partSize),
	}
	if err := c.SetIR([]float32{1}, []float32{1}); err != nil {
		panic(err)
	}
	return c
}

// SetMix sets the wet share in [0, 1].
func (c *RoomConvolver) SetMix(mix float32) { c.mix = clampf(mix, 0, 1) }

// SetIR installs left/right impulse responses sampled at the convolver rate.
func (c *RoomConvolver) SetIR(left, right []float32) error {
	if len(left) == 0 {
		left = []float32{1}
	}
	if len(right) == 0 {
		right = left
	}
	l, err := dspconv.NewStreamingOverlapAdd32(left, c.partSize)
	if err != nil {
		return err
	}
	r, err := dspconv.NewStreamingOverlapAdd32(right, c.partSize)
	if err != nil {
		return err
	}
	c.leftOLA, c.rightOLA = l, r
	return nil
}

// SetIRFromWAV loads a mono or stereo response, resampling it to the
// convolver rate.
func (c *RoomConvolver) SetIRFromWAV(path string) error {
	clip, err := wavio.Read(path)
	if err != nil {
		return err
	}
	if err := clip.Resample(c.rate); err != nil {
		return err
	}
	return c.SetIR(clip.Left, clip.Right)
}

// Process convolves l and r in place.
func (c *RoomConvolver) Process(l, r []float32) {
	for off := 0; off+c.partSize <= len(l); off += c.partSize {
		bl := l[off : off+c.partSize]
		br := r[off : off+c.partSize]
		if c.leftOLA.ProcessBlockTo(c.leftOut, bl) != nil || c.rightOLA.ProcessBlockTo(c.rightOut, br) != nil {
			continue
		}
		for i := range bl {
			bl[i] += c.mix * (c.leftOut[i] - bl[i])
			br[i] += c.mix * (c.rightOut[i] - br[i])
		}
	}
}

// Reset clears the convolution tails.
func (c *RoomConvolver) Reset() {
	c.leftOLA.Reset()
	c.rightOLA.Reset()
}
