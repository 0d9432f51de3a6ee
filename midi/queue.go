package midi

import "errors"

// ErrQueueFull is returned when a part's queue has no room; the event is
// dropped rather than blocking the producer.
var ErrQueueFull = errors.New("midi: event queue full")

// DefaultQueueSize is the per-part queue capacity.
const DefaultQueueSize = 512

// Queue carries events from any number of producers to one render goroutine.
// Producers never block; the consumer keeps received events ordered by frame,
// preserving arrival order among equal frames. The pending list never grows
// past the queue size, so the consumer does not allocate.
type Queue struct {
	clock   *Clock
	ch      chan Event
	pending []Event
}

// NewQueue returns a queue of the given capacity stamped against clock.
func NewQueue(clock *Clock, size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		clock:   clock,
		ch:      make(chan Event, size),
		pending: make([]Event, 0, size),
	}
}

// Enqueue tags ev with the frame it takes effect at and queues it. cycleFrame
// and bufferIndex come from Clock.Stamp. If the engine has moved to another
// period since the stamp was taken, the stale offset is discarded and the
// event is placed at the start of the current period. Events take effect one
// period after the period they were stamped in.
func (q *Queue) Enqueue(ev Event, cycleFrame int, bufferIndex uint64) error {
	if cur := q.clock.BufferIndex(); cur != bufferIndex {
		cycleFrame = 0
		bufferIndex = cur
	}
	ev.CycleFrame = cycleFrame
	ev.BufferIndex = bufferIndex
	ev.MidiIndex = q.clock.MidiIndex()
	ev.Frame = q.clock.FrameOf(bufferIndex) + int64(q.clock.Period()) + int64(cycleFrame)
	return q.push(ev)
}

// EnqueueAt queues ev at an absolute frame, for offline rendering.
func (q *Queue) EnqueueAt(ev Event, frame int64) error {
	ev.Frame = frame
	ev.MidiIndex = q.clock.MidiIndex()
	return q.push(ev)
}

func (q *Queue) push(ev Event) error {
	select {
	case q.ch <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pull moves queued events into the pending list until it is full. Events
// that do not fit stay in the channel for a later Pull. Consumer only.
func (q *Queue) Pull() {
	for len(q.pending) < cap(q.pending) {
		select {
		case ev := <-q.ch:
			q.insert(ev)
		default:
			return
		}
	}
}

// insert places ev after every pending event with a frame <= ev.Frame.
func (q *Queue) insert(ev Event) {
	i := len(q.pending)
	for i > 0 && q.pending[i-1].Frame > ev.Frame {
		i--
	}
	q.pending = append(q.pending, Event{})
	copy(q.pending[i+1:], q.pending[i:])
	q.pending[i] = ev
}

// Due pops the earliest pending event whose frame is at or before frame.
// Consumer only.
func (q *Queue) Due(frame int64) (Event, bool) {
	if len(q.pending) == 0 || q.pending[0].Frame > frame {
		return Event{}, false
	}
	ev := q.pending[0]
	copy(q.pending, q.pending[1:])
	q.pending[len(q.pending)-1] = Event{}
	q.pending = q.pending[:len(q.pending)-1]
	return ev, true
}

// NextFrame returns the frame of the earliest pending event. Consumer only.
func (q *Queue) NextFrame() (int64, bool) {
	if len(q.pending) == 0 {
		return 0, false
	}
	return q.pending[0].Frame, true
}

// Pending returns the number of pulled events not yet due. Consumer only.
func (q *Queue) Pending() int { return len(q.pending) }

// Flush drops every queued and pending event. Consumer only.
func (q *Queue) Flush() {
	for {
		select {
		case <-q.ch:
		default:
			clear(q.pending)
			q.pending = q.pending[:0]
			return
		}
	}
}
