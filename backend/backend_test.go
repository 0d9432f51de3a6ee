package backend

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/algo-synth/internal/wavio"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		cfg Config
		ok  bool
	}{
		{Config{Rate: 48000, Period: 256}, true},
		{Config{Rate: 100, Period: 256}, false},
		{Config{Rate: 48000, Period: 4}, false},
		{Config{Rate: 48000, Period: 1 << 20}, false},
	}
	for _, tt := range tests {
		if err := tt.cfg.Validate(); (err == nil) != tt.ok {
			t.Fatalf("Validate(%+v) = %v", tt.cfg, err)
		}
	}
}

func TestFileStopsAfterFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f := &File{Path: path, Frames: 300}
	if _, err := f.Open(Config{Rate: 48000, Period: 128}); err != nil {
		t.Fatal(err)
	}
	l := make([]float32, 128)
	r := make([]float32, 128)
	periods := 0
	for {
		err := f.WaitPeriod(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if err := f.WritePeriod(l, r); err != nil {
			t.Fatal(err)
		}
		periods++
	}
	if periods != 3 || f.Written() != 300 {
		t.Fatalf("periods %d written %d", periods, f.Written())
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	clip, err := wavio.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if clip.Frames() != 300 {
		t.Fatalf("file has %d frames", clip.Frames())
	}
}

func TestFileReadsInput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	if err := wavio.WriteStereo(in, []float32{0.5, 0.25, 0.125}, []float32{-0.5, -0.25, -0.125}, 48000); err != nil {
		t.Fatal(err)
	}
	f := &File{Path: filepath.Join(dir, "out.wav"), InputPath: in}
	if _, err := f.Open(Config{Rate: 48000, Period: 16}); err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	l := make([]float32, 16)
	r := make([]float32, 16)
	if err := f.ReadPeriod(l, r); err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(l[1]-0.25)) > 1e-3 || math.Abs(float64(r[0]+0.5)) > 1e-3 || l[5] != 0 {
		t.Fatalf("input = %v / %v", l[:4], r[:4])
	}
	if err := f.WritePeriod(l, r); err != nil {
		t.Fatal(err)
	}
	if err := f.WaitPeriod(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected end of input, got %v", err)
	}
}

func TestFileNeedsLength(t *testing.T) {
	f := &File{Path: filepath.Join(t.TempDir(), "x.wav")}
	if _, err := f.Open(Config{Rate: 48000, Period: 64}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNullHonoursContext(t *testing.T) {
	n := NewNull()
	if _, err := n.Open(Config{Rate: 8000, Period: 8000}); err != nil {
		t.Fatal(err)
	}
	defer n.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := n.WaitPeriod(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestOtoRing(t *testing.T) {
	o := NewOto(nil)
	o.cfg = Config{Rate: 48000, Period: 4}
	o.ring = make([]float32, ringPeriods*4*2)

	if err := o.WritePeriod([]float32{1, 2, 3, 4}, []float32{-1, -2, -3, -4}); err != nil {
		t.Fatal(err)
	}
	if err := o.WaitPeriod(context.Background()); err != nil {
		t.Fatalf("ring has room: %v", err)
	}
	buf := make([]byte, 4*10)
	if n, _ := o.Read(buf); n != len(buf) {
		t.Fatalf("Read = %d", n)
	}
	at := func(i int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])) }
	if at(0) != 1 || at(1) != -1 || at(7) != -4 || at(8) != 0 {
		t.Fatalf("samples %v %v %v %v", at(0), at(1), at(7), at(8))
	}
	if o.Underruns() != 1 {
		t.Fatalf("underruns = %d", o.Underruns())
	}

	for i := 0; i < ringPeriods; i++ {
		if err := o.WritePeriod(make([]float32, 4), make([]float32, 4)); err != nil {
			t.Fatal(err)
		}
	}
	if err := o.WritePeriod(make([]float32, 4), make([]float32, 4)); err == nil {
		t.Fatal("overflow not reported")
	}
}
