package backend

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

// ringPeriods is the number of periods buffered between the engine and
// the device callback.
const ringPeriods = 3

// The process can hold only one oto context; its rate is fixed by the
// first Open.
var device struct {
	once  sync.Once
	ctx   *oto.Context
	rate  int
	err   error
	ready chan struct{}
}

func openDevice(cfg Config) (*oto.Context, int, error) {
	device.once.Do(func() {
		device.ctx, device.ready, device.err = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   cfg.Rate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
			BufferSize:   time.Duration(cfg.Period) * time.Second / time.Duration(cfg.Rate),
		})
		device.rate = cfg.Rate
		if device.err == nil {
			<-device.ready
		}
	})
	return device.ctx, device.rate, device.err
}

// Oto plays audio through the system device. The engine writes whole
// periods into a ring that the device goroutine drains through Read.
type Oto struct {
	log *slog.Logger

	mu    sync.Mutex
	ring  []float32 // interleaved stereo
	r, n  int       // read position and fill, in samples
	space chan struct{}

	cfg       Config
	player    *oto.Player
	underruns atomic.Uint64
}

func NewOto(log *slog.Logger) *Oto {
	if log == nil {
		log = slog.Default()
	}
	return &Oto{log: log, space: make(chan struct{}, 1)}
}

func (o *Oto) Name() string { return "oto" }

func (o *Oto) Open(cfg Config) (Config, error) {
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	ctx, rate, err := openDevice(cfg)
	if err != nil {
		return cfg, fmt.Errorf("open audio device: %w", err)
	}
	if rate != cfg.Rate {
		o.log.Warn("audio device rate is fixed for the process", "requested", cfg.Rate, "rate", rate)
		cfg.Rate = rate
	}
	o.mu.Lock()
	o.ring = make([]float32, ringPeriods*cfg.Period*2)
	o.r, o.n = 0, 0
	o.mu.Unlock()
	o.cfg = cfg

	o.player = ctx.NewPlayer(o)
	o.player.SetBufferSize(cfg.Period * 2 * 4)
	o.player.Play()
	o.log.Info("audio device opened", "rate", cfg.Rate, "period", cfg.Period)
	return cfg, nil
}

// Read implements io.Reader for the oto player. Missing samples are played
// as silence and counted as underruns.
func (o *Oto) Read(p []byte) (int, error) {
	samples := len(p) / 4
	o.mu.Lock()
	short := false
	for i := 0; i < samples; i++ {
		var s float32
		if o.n > 0 {
			s = o.ring[o.r]
			o.r++
			if o.r == len(o.ring) {
				o.r = 0
			}
			o.n--
		} else {
			short = true
		}
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	o.mu.Unlock()
	if short {
		o.underruns.Add(1)
	}
	select {
	case o.space <- struct{}{}:
	default:
	}
	return samples * 4, nil
}

// Underruns returns how many device reads found the ring short.
func (o *Oto) Underruns() uint64 { return o.underruns.Load() }

func (o *Oto) free() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.ring) - o.n
}

func (o *Oto) WaitPeriod(ctx context.Context) error {
	need := o.cfg.Period * 2
	stall := time.NewTimer(time.Second + 10*time.Duration(o.cfg.Period)*time.Second/time.Duration(o.cfg.Rate))
	defer stall.Stop()
	for o.free() < need {
		select {
		case <-o.space:
		case <-ctx.Done():
			return ctx.Err()
		case <-stall.C:
			if err := device.ctx.Err(); err != nil {
				return fmt.Errorf("audio device: %w", err)
			}
			return ErrStalled
		}
	}
	return nil
}

func (o *Oto) WritePeriod(left, right []float32) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	w := o.r + o.n
	for i := range left {
		if o.n+2 > len(o.ring) {
			return fmt.Errorf("audio ring overflow")
		}
		for _, s := range [2]float32{left[i], right[i]} {
			if w >= len(o.ring) {
				w -= len(o.ring)
			}
			o.ring[w] = s
			w++
			o.n++
		}
	}
	return nil
}

func (o *Oto) Close() error {
	if o.player == nil {
		return nil
	}
	err := o.player.Close()
	o.player = nil
	return err
}
