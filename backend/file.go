package backend

import (
	"context"
	"errors"
	"io"

	"github.com/cwbudde/algo-synth/internal/wavio"
)

// File renders to a WAV file as fast as the engine can produce audio. An
// optional input WAV feeds oscillators with the input frequency base. The
// stream ends after Frames frames, or when the input is exhausted if Frames
// is 0.
type File struct {
	Path      string
	InputPath string
	Frames    int64

	cfg     Config
	out     *wavio.Writer
	in      *wavio.Clip
	written int64
	readPos int
}

func (f *File) Name() string { return "file" }

func (f *File) Open(cfg Config) (Config, error) {
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if f.Frames <= 0 && f.InputPath == "" {
		return cfg, errors.New("file backend needs a frame count or an input file")
	}
	if f.InputPath != "" {
		clip, err := wavio.Read(f.InputPath)
		if err != nil {
			return cfg, err
		}
		if err := clip.Resample(cfg.Rate); err != nil {
			return cfg, err
		}
		f.in = clip
	}
	out, err := wavio.Create(f.Path, cfg.Rate)
	if err != nil {
		return cfg, err
	}
	f.cfg, f.out = cfg, out
	f.written, f.readPos = 0, 0
	return cfg, nil
}

func (f *File) limit() int64 {
	if f.Frames > 0 {
		return f.Frames
	}
	return int64(f.in.Frames())
}

func (f *File) WaitPeriod(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.written >= f.limit() {
		return io.EOF
	}
	return nil
}

func (f *File) WritePeriod(left, right []float32) error {
	n := min(int64(len(left)), f.limit()-f.written)
	if n <= 0 {
		return nil
	}
	f.written += n
	return f.out.Write(left[:n], right[:n])
}

func (f *File) ReadPeriod(left, right []float32) error {
	clear(left)
	clear(right)
	if f.in == nil || f.readPos >= f.in.Frames() {
		return nil
	}
	n := copy(left, f.in.Left[f.readPos:])
	copy(right, f.in.Right[f.readPos:])
	f.readPos += n
	return nil
}

// Written returns the number of frames written so far.
func (f *File) Written() int64 { return f.written }

func (f *File) Close() error {
	if f.out == nil {
		return nil
	}
	err := f.out.Close()
	f.out = nil
	return err
}
