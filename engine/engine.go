// Package engine runs the synthesizer: one render goroutine per part, a
// driver goroutine pacing them against the audio backend, and the MIDI
// router feeding their event queues.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/algo-synth/backend"
	"github.com/cwbudde/algo-synth/irsynth"
	"github.com/cwbudde/algo-synth/midi"
	"github.com/cwbudde/algo-synth/studio"
	"github.com/cwbudde/algo-synth/synth"
)

// ErrNotRunning is returned when events are queued to an engine that is
// shutting down.
var ErrNotRunning = errors.New("engine: not running")

// State is the engine lifecycle state.
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Restarting
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Restarting:
		return "restarting"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Options configures an Engine.
type Options struct {
	SampleRate int
	Period     int
	Multiplier Multiplier
	QueueSize  int

	// RoomIR is an optional impulse response WAV applied to the master
	// output with RoomMix wet share. Without a file, RoomDecay > 0 selects
	// a generated room of that decay time in seconds.
	RoomIR    string
	RoomDecay float64
	RoomMix   float64

	// RestartDelay is the pause before reopening a failed backend.
	RestartDelay time.Duration
	// FailFast returns backend errors from Run instead of restarting.
	FailFast bool

	Log *slog.Logger
}

// DefaultOptions returns the standard real-time settings.
func DefaultOptions() Options {
	return Options{
		SampleRate:   48000,
		Period:       256,
		Multiplier:   RateNormal,
		QueueSize:    midi.DefaultQueueSize,
		RoomMix:      0.3,
		RestartDelay: 500 * time.Millisecond,
	}
}

func (o Options) internalRate(rate int) float64 {
	switch o.Multiplier {
	case RateOversample:
		return float64(rate) * 2
	case RateUndersample:
		return float64(rate) / 2
	}
	return float64(rate)
}

// Engine owns the part renderers and their queues.
type Engine struct {
	opts    Options
	log     *slog.Logger
	studio  *studio.Studio
	backend backend.Backend

	clock  *midi.Clock
	queues [studio.MaxParts]*midi.Queue
	parts  [studio.MaxParts]*synth.Part

	// rateMu guards everything that depends on the sample rate. Render
	// goroutines hold the read side; restart takes the write side.
	rateMu sync.RWMutex
	tables *synth.Tables
	cfg    backend.Config
	room   *synth.RoomConvolver
	convL  *converter
	convR  *converter
	convIn *converter

	partL, partR [studio.MaxParts][]float32
	mixL, mixR   []float32
	inMono       []float32
	outL, outR   []float32
	devL, devR   []float32

	start [studio.MaxParts]chan uint64
	done  chan struct{}

	state           atomic.Int32
	pendingShutdown atomic.Bool
	restart         atomic.Bool
	periods         atomic.Uint64

	// mu guards the requested format and the cancel functions.
	mu        sync.Mutex
	want      backend.Config
	cancel    context.CancelFunc
	runCancel context.CancelFunc
}

// New returns a stopped engine playing the studio's active patches through
// be.
func New(opts Options, st *studio.Studio, be backend.Backend) *Engine {
	def := DefaultOptions()
	if opts.SampleRate <= 0 {
		opts.SampleRate = def.SampleRate
	}
	if opts.Period <= 0 {
		opts.Period = def.Period
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = def.RestartDelay
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	e := &Engine{
		opts:    opts,
		log:     opts.Log,
		studio:  st,
		backend: be,
		clock:   midi.NewClock(nil),
		tables:  synth.NewTables(opts.internalRate(opts.SampleRate)),
		want:    backend.Config{Rate: opts.SampleRate, Period: opts.Period},
	}
	for part := range e.parts {
		e.queues[part] = midi.NewQueue(e.clock, opts.QueueSize)
		state := st.SetActivePatch(part, st.ActiveRef(part))
		e.parts[part] = synth.NewPart(part, e.tables, state)
	}
	return e
}

// State returns the lifecycle state.
func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) {
	if old := State(e.state.Swap(int32(s))); old != s {
		e.log.Debug("engine state", "from", old.String(), "to", s.String())
	}
}

// Clock returns the shared sample clock.
func (e *Engine) Clock() *midi.Clock { return e.clock }

// Config returns the backend format in effect.
func (e *Engine) Config() backend.Config {
	e.rateMu.RLock()
	defer e.rateMu.RUnlock()
	return e.cfg
}

// Periods returns the number of periods written since New.
func (e *Engine) Periods() uint64 { return e.periods.Load() }

// Part returns the renderer of part. It must not be touched while the
// engine is running.
func (e *Engine) Part(part int) *synth.Part { return e.parts[studio.ClampPart(part)] }

// Shutdown asks the engine to stop after the current period.
func (e *Engine) Shutdown() {
	e.pendingShutdown.Store(true)
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()
}

// Reconfigure asks for a new stream format. A running engine finishes the
// current period, closes the backend and reopens it with cfg, rebuilding
// the rate-dependent tables before the next period renders. A stopped
// engine uses cfg on its next Run.
func (e *Engine) Reconfigure(cfg backend.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if e.opts.Multiplier == RateUndersample && cfg.Period%2 != 0 {
		return fmt.Errorf("undersampling needs an even period, have %d", cfg.Period)
	}
	if e.pendingShutdown.Load() {
		return ErrNotRunning
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.want = cfg
	e.restart.Store(true)
	if e.runCancel != nil {
		e.runCancel()
	}
	e.log.Info("engine reconfiguring", "rate", cfg.Rate, "period", cfg.Period)
	return nil
}

func (e *Engine) requested() backend.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.want
}

// Run starts the backend and renders until Shutdown, ctx cancellation or
// the end of a finite stream. Backend failures restart the backend unless
// FailFast is set, and Reconfigure restarts it with the new format.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer cancel()

	var runErr error
	next := Starting
	for !e.pendingShutdown.Load() && ctx.Err() == nil {
		e.setState(next)
		next = Restarting
		e.restart.Store(false)
		if err := e.open(); err != nil {
			if e.opts.FailFast {
				runErr = err
				break
			}
			e.log.Error("audio backend start failed", "backend", e.backend.Name(), "err", err)
			e.sleep(ctx)
			continue
		}
		e.setState(Running)
		err := e.run(ctx)
		if cerr := e.backend.Close(); cerr != nil {
			e.log.Warn("audio backend close", "backend", e.backend.Name(), "err", cerr)
		}
		if err == nil {
			if e.restart.Load() {
				continue
			}
			break
		}
		if e.opts.FailFast {
			runErr = err
			break
		}
		e.log.Error("audio backend failed, restarting", "backend", e.backend.Name(), "err", err)
		e.sleep(ctx)
	}
	e.setState(Stopping)
	e.pendingShutdown.Store(true)
	e.setState(Stopped)
	return runErr
}

func (e *Engine) sleep(ctx context.Context) {
	t := time.NewTimer(e.opts.RestartDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// open starts the backend and rebuilds the rate-dependent state under the
// exclusive sample-rate lock.
func (e *Engine) open() error {
	cfg, err := e.backend.Open(e.requested())
	if err != nil {
		return err
	}
	if e.opts.Multiplier == RateUndersample && cfg.Period%2 != 0 {
		_ = e.backend.Close()
		return fmt.Errorf("undersampling needs an even period, have %d", cfg.Period)
	}

	e.rateMu.Lock()
	defer e.rateMu.Unlock()

	rate := e.opts.internalRate(cfg.Rate)
	if e.tables.Rate != rate {
		e.tables = synth.NewTables(rate)
		for _, p := range e.parts {
			p.SetTables(e.tables)
		}
	}
	n := e.opts.Multiplier.Internal(cfg.Period)
	if e.convL, err = newConverter(int(rate), cfg.Rate); err != nil {
		return err
	}
	if e.convR, err = newConverter(int(rate), cfg.Rate); err != nil {
		return err
	}
	if e.convIn, err = newConverter(cfg.Rate, int(rate)); err != nil {
		return err
	}
	e.room = e.openRoom(int(rate), n)
	for part := range e.parts {
		e.partL[part] = make([]float32, n)
		e.partR[part] = make([]float32, n)
	}
	e.mixL, e.mixR = make([]float32, n), make([]float32, n)
	e.inMono = make([]float32, n)
	e.outL, e.outR = make([]float32, cfg.Period), make([]float32, cfg.Period)
	e.devL, e.devR = make([]float32, cfg.Period), make([]float32, cfg.Period)
	e.cfg = cfg
	e.clock.Reset(cfg.Rate, cfg.Period)
	e.log.Info("engine started", "backend", e.backend.Name(), "rate", cfg.Rate,
		"period", cfg.Period, "mode", e.opts.Multiplier.String())
	return nil
}

// openRoom builds the master room convolver, or returns nil when no room is
// configured or the response cannot be loaded.
func (e *Engine) openRoom(rate, block int) *synth.RoomConvolver {
	room := synth.NewRoomConvolver(rate, block)
	switch {
	case e.opts.RoomIR != "":
		if err := room.SetIRFromWAV(e.opts.RoomIR); err != nil {
			e.log.Warn("room impulse response not loaded", "path", e.opts.RoomIR, "err", err)
			return nil
		}
	case e.opts.RoomDecay > 0:
		cfg := irsynth.DefaultRoom(rate)
		cfg.Decay = e.opts.RoomDecay
		cfg.HighDecay = min(cfg.HighDecay, cfg.Decay)
		left, right, err := irsynth.Generate(cfg)
		if err == nil {
			err = room.SetIR(left, right)
		}
		if err != nil {
			e.log.Warn("room not generated", "decay", e.opts.RoomDecay, "err", err)
			return nil
		}
	default:
		return nil
	}
	room.SetMix(float32(e.opts.RoomMix))
	return room
}

// run renders until the driver stops. A nil result means a clean stop.
func (e *Engine) run(ctx context.Context) error {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	e.mu.Lock()
	e.runCancel = stop
	if e.restart.Load() {
		stop()
	}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.runCancel = nil
		e.mu.Unlock()
	}()
	g, gctx := errgroup.WithContext(runCtx)
	e.done = make(chan struct{}, len(e.parts))
	for part := range e.parts {
		e.start[part] = make(chan uint64, 1)
		g.Go(func() error { return e.partLoop(gctx, part) })
	}
	g.Go(func() error {
		defer stop()
		return e.drive(gctx)
	})
	return g.Wait()
}

// partLoop is the render goroutine of one part. It blocks only on the
// period signal.
func (e *Engine) partLoop(ctx context.Context, part int) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	for {
		select {
		case <-ctx.Done():
			return nil
		case idx := <-e.start[part]:
			if !e.pendingShutdown.Load() {
				e.rateMu.RLock()
				e.renderPart(part, idx)
				e.rateMu.RUnlock()
			}
			e.done <- struct{}{}
		}
	}
}

// renderPart renders period idx of part, applying due events at their
// frames. Events stamped before the period apply at its start.
func (e *Engine) renderPart(part int, idx uint64) {
	q := e.queues[part]
	p := e.parts[part]
	l, r, in := e.partL[part], e.partR[part], e.inMono
	n := len(l)

	q.Pull()
	start := e.clock.FrameOf(idx)
	end := start + int64(e.cfg.Period)
	pos := 0
	for {
		frame, ok := q.NextFrame()
		if !ok || frame >= end {
			break
		}
		off := 0
		if frame > start {
			off = min(e.opts.Multiplier.Internal(int(frame-start)), n)
		}
		if off > pos {
			p.Render(l[pos:off], r[pos:off], in[pos:off])
			pos = off
		}
		ev, _ := q.Due(frame)
		p.HandleEvent(ev)
	}
	if pos < n {
		p.Render(l[pos:], r[pos:], in[pos:])
	}
}

// drive paces the parts against the backend.
func (e *Engine) drive(ctx context.Context) error {
	input, hasInput := e.backend.(backend.Input)
	for {
		if e.pendingShutdown.Load() {
			return nil
		}
		err := e.backend.WaitPeriod(ctx)
		switch {
		case errors.Is(err, io.EOF):
			e.pendingShutdown.Store(true)
			return nil
		case ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		}
		if e.pendingShutdown.Load() {
			return nil
		}

		idx := e.clock.Advance()
		if hasInput {
			if err := input.ReadPeriod(e.devL, e.devR); err != nil {
				return err
			}
			for i := range e.devL {
				e.devL[i] = 0.5 * (e.devL[i] + e.devR[i])
			}
			e.convIn.convert(e.inMono, e.devL)
		}

		for part := range e.parts {
			e.start[part] <- idx
		}
		for range e.parts {
			select {
			case <-e.done:
			case <-ctx.Done():
				return nil
			}
		}

		e.mix()
		if err := e.backend.WritePeriod(e.outL, e.outR); err != nil {
			return err
		}
		e.periods.Add(1)
	}
}

func (e *Engine) mix() {
	clear(e.mixL)
	clear(e.mixR)
	for part := range e.parts {
		l, r := e.partL[part], e.partR[part]
		for i := range e.mixL {
			e.mixL[i] += l[i]
			e.mixR[i] += r[i]
		}
	}
	if e.room != nil {
		e.room.Process(e.mixL, e.mixR)
	}
	synth.SoftClip(e.mixL)
	synth.SoftClip(e.mixR)
	e.convL.convert(e.outL, e.mixL)
	e.convR.convert(e.outR, e.mixR)
}
