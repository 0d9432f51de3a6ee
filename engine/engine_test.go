package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/algo-synth/backend"
	"github.com/cwbudde/algo-synth/midi"
	"github.com/cwbudde/algo-synth/param"
	"github.com/cwbudde/algo-synth/studio"
)

// fakeBackend plays a fixed number of periods per Open and records what was
// written. failWrite makes the nth write overall fail once. onWrite runs
// after every successful write with the write count.
type fakeBackend struct {
	mu        sync.Mutex
	periods   int
	failWrite int
	onWrite   func(n int)

	opens, writes int
	opened        []backend.Config
	remaining     int
	left, right   []float32
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Open(cfg backend.Config) (backend.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	f.opened = append(f.opened, cfg)
	f.remaining = f.periods
	return cfg, cfg.Validate()
}

func (f *fakeBackend) WaitPeriod(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remaining == 0 {
		return io.EOF
	}
	f.remaining--
	return nil
}

func (f *fakeBackend) WritePeriod(l, r []float32) error {
	f.mu.Lock()
	f.writes++
	n := f.writes
	if n == f.failWrite {
		f.mu.Unlock()
		return errors.New("device lost")
	}
	f.left = append(f.left, l...)
	f.right = append(f.right, r...)
	f.mu.Unlock()
	if f.onWrite != nil {
		f.onWrite(n)
	}
	return nil
}

func (f *fakeBackend) Close() error { return nil }

func newTestEngine(t *testing.T, be backend.Backend, opts Options) (*Engine, *studio.Studio) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	st := studio.New(studio.Options{Dirs: studio.Dirs{User: t.TempDir()}, Log: log})
	if opts.SampleRate == 0 {
		opts.SampleRate = 48000
	}
	if opts.Period == 0 {
		opts.Period = 128
	}
	opts.RestartDelay = time.Millisecond
	opts.Log = log
	return New(opts, st, be), st
}

func runEngine(t *testing.T, e *Engine) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := e.Run(ctx)
	if ctx.Err() != nil {
		t.Fatal("engine did not stop on end of stream")
	}
	return err
}

func firstNonZero(x []float32) int {
	for i, s := range x {
		if s != 0 {
			return i
		}
	}
	return -1
}

func TestScheduledNoteStartsAtItsFrame(t *testing.T) {
	be := &fakeBackend{periods: 16}
	e, _ := newTestEngine(t, be, Options{})
	if err := e.Schedule(0, midi.Event{Type: midi.NoteOn, Note: 69, Velocity: 100}, 300); err != nil {
		t.Fatal(err)
	}
	if err := runEngine(t, e); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(be.left) != 16*128 {
		t.Fatalf("wrote %d frames, want %d", len(be.left), 16*128)
	}
	at := firstNonZero(be.left)
	if at < 300 || at >= 300+2*128 {
		t.Fatalf("first sound at frame %d, want shortly after 300", at)
	}
	if e.State() != Stopped {
		t.Fatalf("state = %v, want stopped", e.State())
	}
	if e.Periods() != 16 {
		t.Fatalf("periods = %d", e.Periods())
	}
}

func TestLateEventAppliesAtPeriodStart(t *testing.T) {
	be := &fakeBackend{periods: 4}
	e, _ := newTestEngine(t, be, Options{})
	if err := e.Schedule(0, midi.Event{Type: midi.NoteOn, Note: 60, Velocity: 100}, -500); err != nil {
		t.Fatal(err)
	}
	if err := runEngine(t, e); err != nil {
		t.Fatal(err)
	}
	if at := firstNonZero(be.left); at < 0 || at >= 64 {
		t.Fatalf("late note sounded at %d, want at the start of the first period", at)
	}
}

func TestOversampledRenderKeepsPeriodLength(t *testing.T) {
	for _, m := range []Multiplier{RateOversample, RateUndersample} {
		t.Run(m.String(), func(t *testing.T) {
			be := &fakeBackend{periods: 12}
			e, _ := newTestEngine(t, be, Options{Multiplier: m})
			if err := e.Schedule(0, midi.Event{Type: midi.NoteOn, Note: 57, Velocity: 110}, 0); err != nil {
				t.Fatal(err)
			}
			if err := runEngine(t, e); err != nil {
				t.Fatal(err)
			}
			if len(be.left) != 12*128 {
				t.Fatalf("wrote %d frames", len(be.left))
			}
			if e.tables.Rate != e.opts.internalRate(48000) {
				t.Fatalf("tables built for %v Hz", e.tables.Rate)
			}
			var energy float64
			for i, s := range be.left {
				if s != s {
					t.Fatalf("NaN at %d", i)
				}
				energy += float64(s * s)
			}
			if energy == 0 {
				t.Fatal("no sound")
			}
		})
	}
}

func TestUndersampleNeedsEvenPeriod(t *testing.T) {
	e, _ := newTestEngine(t, &fakeBackend{periods: 1}, Options{Period: 127, Multiplier: RateUndersample, FailFast: true})
	if err := runEngine(t, e); err == nil {
		t.Fatal("odd period accepted for undersampling")
	}
}

func TestRestartAfterWriteError(t *testing.T) {
	be := &fakeBackend{periods: 4, failWrite: 2}
	e, _ := newTestEngine(t, be, Options{})
	if err := runEngine(t, e); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if be.opens != 2 {
		t.Fatalf("backend opened %d times, want 2", be.opens)
	}
	if len(be.left) != 5*128 {
		t.Fatalf("wrote %d frames, want %d", len(be.left), 5*128)
	}
}

func TestFailFastReturnsBackendError(t *testing.T) {
	be := &fakeBackend{periods: 4, failWrite: 1}
	e, _ := newTestEngine(t, be, Options{FailFast: true})
	if err := runEngine(t, e); err == nil || err.Error() != "device lost" {
		t.Fatalf("Run = %v, want device lost", err)
	}
	if be.opens != 1 {
		t.Fatalf("backend opened %d times", be.opens)
	}
}

func TestShutdownStopsRealtimeBackend(t *testing.T) {
	e, _ := newTestEngine(t, backend.NewNull(), Options{Period: 64})
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	deadline := time.Now().Add(5 * time.Second)
	for e.Periods() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("engine did not render")
		}
		time.Sleep(time.Millisecond)
	}
	if e.State() != Running {
		t.Fatalf("state = %v, want running", e.State())
	}
	e.Shutdown()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not stop the engine")
	}
	if err := e.QueueMidiEvent(0, midi.Event{Type: midi.NoteOn}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("QueueMidiEvent after shutdown = %v", err)
	}
}

func pending(e *Engine, part int) []midi.Event {
	q := e.queues[part]
	q.Pull()
	var evs []midi.Event
	for {
		ev, ok := q.Due(1 << 62)
		if !ok {
			return evs
		}
		evs = append(evs, ev)
	}
}

func TestHandleMIDIRoutesByChannel(t *testing.T) {
	e, st := newTestEngine(t, &fakeBackend{}, Options{})
	st.Locks().SetChannel(3, 0)
	e.HandleMIDI(midi.Event{Type: midi.NoteOn, Channel: 0, Note: 60, Velocity: 90})

	for _, part := range []int{0, 3} {
		evs := pending(e, part)
		if len(evs) != 1 || evs[0].Type != midi.NoteOn || evs[0].Note != 60 {
			t.Fatalf("part %d got %v", part, evs)
		}
	}
	if evs := pending(e, 1); len(evs) != 0 {
		t.Fatalf("part 1 got %v", evs)
	}
}

func TestHandleMIDIControllerBecomesParam(t *testing.T) {
	e, st := newTestEngine(t, &fakeBackend{}, Options{})
	var id param.ID = -1
	var cc int
	for _, info := range param.All() {
		if info.CC >= 0 && info.CC < 128 && info.CC != midi.CCSustain && info.CC != midi.CCAllSoundOff && info.CC != midi.CCAllNotesOff &&
			!st.Locks().Locked(info.ID) {
			id, cc = info.ID, info.CC
			break
		}
	}
	if id < 0 {
		t.Skip("no parameter has a default controller")
	}
	info := param.Lookup(id)
	value := info.Clamp(info.Default + 1)
	if value == info.Default {
		value = info.Clamp(info.Default - 1)
	}
	for _, other := range st.Locks().Params(cc) {
		if other != id {
			st.Locks().SetLocked(other, true)
		}
	}

	e.HandleMIDI(midi.Event{Type: midi.Controller, Channel: 0, Controller: cc, Value: value})
	evs := pending(e, 0)
	if len(evs) != 1 || evs[0].Type != midi.Param || evs[0].Param != id || evs[0].Value != value {
		t.Fatalf("got %v, want one %s param event", evs, info.Name)
	}
	if got := st.GetActivePatch(0).Get(id).CCVal; got != value {
		t.Fatalf("patch value = %d, want %d", got, value)
	}
}

func TestHandleMIDISustainGoesToVoices(t *testing.T) {
	e, _ := newTestEngine(t, &fakeBackend{}, Options{})
	e.HandleMIDI(midi.Event{Type: midi.Controller, Channel: 2, Controller: midi.CCSustain, Value: 127})
	evs := pending(e, 2)
	if len(evs) != 1 || evs[0].Type != midi.Controller {
		t.Fatalf("got %v", evs)
	}
}

func TestHandleMIDIProgramChange(t *testing.T) {
	e, st := newTestEngine(t, &fakeBackend{}, Options{})
	e.HandleMIDI(midi.Event{Type: midi.ProgramChange, Channel: 1, Value: 5})
	if ref := st.ActiveRef(1); ref != studio.BankRef(5) {
		t.Fatalf("active = %v, want program 5", ref)
	}
	evs := pending(e, 1)
	if len(evs) != 1 || evs[0].Type != midi.State || evs[0].State == nil {
		t.Fatalf("got %v", evs)
	}
	if st.CheckSession() != 0 {
		t.Fatal("session out of sync after program change")
	}
}

func TestSetParamQueuesStoredValue(t *testing.T) {
	e, _ := newTestEngine(t, &fakeBackend{}, Options{})
	info := param.Lookup(param.Volume)
	stored, err := e.SetParam(0, param.Volume, info.CCLimit+50)
	if err != nil {
		t.Fatal(err)
	}
	if stored != info.CCLimit {
		t.Fatalf("stored %d, want clamped %d", stored, info.CCLimit)
	}
	evs := pending(e, 0)
	if len(evs) != 1 || evs[0].Value != stored {
		t.Fatalf("got %v", evs)
	}
}

func TestStateString(t *testing.T) {
	if Restarting.String() != "restarting" || State(42).String() != "State(42)" {
		t.Fatal("unexpected state names")
	}
}

func TestGeneratedRoom(t *testing.T) {
	be := &fakeBackend{periods: 8}
	e, _ := newTestEngine(t, be, Options{RoomDecay: 0.2, RoomMix: 0.5})
	if err := e.Schedule(0, midi.Event{Type: midi.NoteOn, Note: 64, Velocity: 100}, 0); err != nil {
		t.Fatal(err)
	}
	if err := runEngine(t, e); err != nil {
		t.Fatal(err)
	}
	if e.room == nil {
		t.Fatal("room not built")
	}
	var energy float64
	for i, s := range be.left {
		if s != s || s > 1 || s < -1 {
			t.Fatalf("bad sample %v at %d", s, i)
		}
		energy += float64(s * s)
	}
	if energy == 0 {
		t.Fatal("no sound through the room")
	}
}

func TestMissingRoomFileRendersDry(t *testing.T) {
	be := &fakeBackend{periods: 2}
	e, _ := newTestEngine(t, be, Options{RoomIR: t.TempDir() + "/missing.wav"})
	if err := runEngine(t, e); err != nil {
		t.Fatal(err)
	}
	if e.room != nil {
		t.Fatal("room built from a missing file")
	}
}

func TestReconfigureRebuildsTablesBeforeNextPeriod(t *testing.T) {
	be := &fakeBackend{periods: 6}
	e, _ := newTestEngine(t, be, Options{Multiplier: RateOversample})
	if err := e.Schedule(0, midi.Event{Type: midi.NoteOn, Note: 60, Velocity: 100}, 0); err != nil {
		t.Fatal(err)
	}

	type period struct {
		frames int
		rate   float64
		conv   *converter
	}
	var got []period
	be.onWrite = func(n int) {
		// The driver calls WritePeriod with every part idle.
		got = append(got, period{frames: e.cfg.Period, rate: e.tables.Rate, conv: e.convL})
		if n == 3 {
			if err := e.Reconfigure(backend.Config{Rate: 44100, Period: 256}); err != nil {
				t.Errorf("Reconfigure: %v", err)
			}
		}
	}
	if err := runEngine(t, e); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(be.opened) != 2 || be.opened[1] != (backend.Config{Rate: 44100, Period: 256}) {
		t.Fatalf("opened %v, want a second open at 44100/256", be.opened)
	}
	if len(got) != 3+6 {
		t.Fatalf("wrote %d periods, want 9", len(got))
	}
	for i, p := range got {
		want := period{frames: 128, rate: 96000}
		if i >= 3 {
			want = period{frames: 256, rate: 88200}
		}
		if p.frames != want.frames || p.rate != want.rate {
			t.Fatalf("period %d: %d frames at table rate %v, want %d at %v", i, p.frames, p.rate, want.frames, want.rate)
		}
		if i >= 3 && p.conv == got[0].conv {
			t.Fatalf("period %d still uses the old converter", i)
		}
	}
	if len(be.left) != 3*128+6*256 {
		t.Fatalf("wrote %d frames", len(be.left))
	}
	if e.Part(0).ActiveVoices() != 0 {
		t.Fatal("voices survived the rate change")
	}
}

func TestReconfigureValidates(t *testing.T) {
	e, _ := newTestEngine(t, &fakeBackend{}, Options{Multiplier: RateUndersample})
	if err := e.Reconfigure(backend.Config{Rate: 1000, Period: 256}); err == nil {
		t.Fatal("accepted rate 1000")
	}
	if err := e.Reconfigure(backend.Config{Rate: 48000, Period: 129}); err == nil {
		t.Fatal("accepted odd period while undersampling")
	}
	if err := e.Reconfigure(backend.Config{Rate: 44100, Period: 128}); err != nil {
		t.Fatal(err)
	}
	if e.requested().Rate != 44100 {
		t.Fatal("request not stored")
	}
	e.Shutdown()
	if err := e.Reconfigure(backend.Config{Rate: 48000, Period: 128}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}
}
