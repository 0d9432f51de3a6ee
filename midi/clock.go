package midi

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/cpu"
)

// epoch fixes the mapping from buffer index to absolute frame. It only
// changes when the engine (re)starts.
type epoch struct {
	baseIndex uint64
	baseFrame int64
	period    int
	rate      int
	started   bool
}

// Clock is the shared sample clock. Only the engine driver advances it; the
// MIDI and control goroutines read it to timestamp events.
type Clock struct {
	_           cpu.CacheLinePad
	bufferIndex atomic.Uint64
	_           cpu.CacheLinePad
	cycleStart  atomic.Int64 // monotonic nanoseconds at which bufferIndex began
	_           cpu.CacheLinePad
	midiIndex   atomic.Uint64
	_           cpu.CacheLinePad

	epoch atomic.Pointer[epoch]
	now   func() time.Duration
}

// NewClock returns a clock reading time from now, or from the process
// monotonic clock when now is nil.
func NewClock(now func() time.Duration) *Clock {
	if now == nil {
		start := time.Now()
		now = func() time.Duration { return time.Since(start) }
	}
	c := &Clock{now: now}
	c.epoch.Store(&epoch{period: 1, rate: 1})
	return c
}

// Reset starts a new epoch with the next period: frame numbering continues
// where the previous epoch left off, period and rate change. The first Reset
// makes that next period begin at frame 0.
func (c *Clock) Reset(rate, period int) {
	if period < 1 {
		period = 1
	}
	next := c.bufferIndex.Load() + 1
	var frame int64
	if old := c.epoch.Load(); old.started {
		frame = c.FrameOf(next)
	}
	c.epoch.Store(&epoch{baseIndex: next, baseFrame: frame, period: period, rate: rate, started: true})
	c.cycleStart.Store(int64(c.now()))
}

// Advance moves to the next period. The cycle start is published before the
// index so a reader that sees the new index also sees its start time.
func (c *Clock) Advance() uint64 {
	c.cycleStart.Store(int64(c.now()))
	return c.bufferIndex.Add(1)
}

// BufferIndex is the index of the period currently being rendered.
func (c *Clock) BufferIndex() uint64 { return c.bufferIndex.Load() }

// Period returns the frames per period of the current epoch.
func (c *Clock) Period() int { return c.epoch.Load().period }

// Rate returns the sample rate of the current epoch.
func (c *Clock) Rate() int { return c.epoch.Load().rate }

// FrameOf returns the absolute frame at which buffer index begins.
func (c *Clock) FrameOf(index uint64) int64 {
	e := c.epoch.Load()
	return e.baseFrame + int64(index-e.baseIndex)*int64(e.period)
}

// IncMidiIndex advances and returns the MIDI index.
func (c *Clock) IncMidiIndex() uint64 { return c.midiIndex.Add(1) }

// MidiIndex returns the current MIDI index.
func (c *Clock) MidiIndex() uint64 { return c.midiIndex.Load() }

// Stamp samples the buffer index and the frame offset of now inside that
// period. When the monotonic delta is negative time went backwards relative
// to the cycle start: the offset is 0 and the MIDI index is left alone. The
// offset is clamped to the period.
func (c *Clock) Stamp() (cycleFrame int, bufferIndex uint64) {
	bufferIndex = c.bufferIndex.Load()
	delta := int64(c.now()) - c.cycleStart.Load()
	e := c.epoch.Load()
	if delta >= 0 {
		c.IncMidiIndex()
		cycleFrame = int(delta * int64(e.rate) / int64(time.Second))
	}
	if cycleFrame < 0 {
		cycleFrame = 0
	}
	if cycleFrame > e.period-1 {
		cycleFrame = e.period - 1
	}
	return cycleFrame, bufferIndex
}
