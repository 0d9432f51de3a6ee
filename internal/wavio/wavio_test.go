package wavio

import (
	"math"
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "clip.wav")
	left := []float32{0, 0.5, -0.5, 0.25}
	right := []float32{0.1, -0.1, 0.2, -0.2}

	w, err := Create(path, 48000)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(left[:2], right[:2]); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(left[2:], right[2:]); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	c, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if c.Rate != 48000 || c.Frames() != len(left) {
		t.Fatalf("rate %d frames %d", c.Rate, c.Frames())
	}
	for i := range left {
		if math.Abs(float64(c.Left[i]-left[i])) > 1e-3 || math.Abs(float64(c.Right[i]-right[i])) > 1e-3 {
			t.Fatalf("frame %d = %v/%v, want %v/%v", i, c.Left[i], c.Right[i], left[i], right[i])
		}
	}
}

func TestWriteRejectsMismatchedChannels(t *testing.T) {
	err := WriteStereo(filepath.Join(t.TempDir(), "x.wav"), []float32{1}, []float32{1, 2}, 44100)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "none.wav")); err == nil {
		t.Fatal("expected error")
	}
}

func TestResampleSameRateIsIdentity(t *testing.T) {
	in := []float32{1, 2, 3}
	out, err := Resample(in, 48000, 48000)
	if err != nil || &out[0] != &in[0] {
		t.Fatalf("same-rate resample copied or failed: %v", err)
	}
}
