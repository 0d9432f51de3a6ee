package engine

import (
	"math"
	"testing"
)

func TestParseMultiplier(t *testing.T) {
	for _, m := range []Multiplier{RateNormal, RateOversample, RateUndersample} {
		got, err := ParseMultiplier(m.String())
		if err != nil || got != m {
			t.Fatalf("ParseMultiplier(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseMultiplier("double"); err == nil {
		t.Fatal("unknown mode accepted")
	}
}

func TestMultiplierInternal(t *testing.T) {
	if RateOversample.Internal(256) != 512 || RateUndersample.Internal(256) != 128 || RateNormal.Internal(256) != 256 {
		t.Fatal("wrong internal period")
	}
}

func TestConverterSameRateCopies(t *testing.T) {
	c, err := newConverter(48000, 48000)
	if err != nil {
		t.Fatal(err)
	}
	src := []float32{1, 2, 3}
	dst := make([]float32, 4)
	dst[3] = 9
	c.convert(dst, src)
	if dst[0] != 1 || dst[2] != 3 || dst[3] != 0 {
		t.Fatalf("dst = %v", dst)
	}
}

func TestConverterStreamsSteadyTone(t *testing.T) {
	c, err := newConverter(96000, 48000)
	if err != nil {
		t.Fatal(err)
	}
	const period = 128
	src := make([]float32, 2*period)
	dst := make([]float32, period)
	var phase float64
	var tail float64
	for block := 0; block < 40; block++ {
		for i := range src {
			src[i] = float32(0.5 * math.Sin(phase))
			phase += 2 * math.Pi * 1000 / 96000
		}
		c.convert(dst, src)
		if block >= 30 {
			for _, s := range dst {
				tail = math.Max(tail, math.Abs(float64(s)))
			}
		}
	}
	if tail < 0.4 || tail > 0.6 {
		t.Fatalf("steady-state peak %.3f, want about 0.5", tail)
	}
}
