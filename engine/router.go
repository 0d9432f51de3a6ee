package engine

import (
	"fmt"

	"github.com/cwbudde/algo-synth/midi"
	"github.com/cwbudde/algo-synth/param"
	"github.com/cwbudde/algo-synth/patch"
	"github.com/cwbudde/algo-synth/studio"
)

// HandleMIDI routes one incoming message to the parts listening on its
// channel. It is called from the MIDI input goroutine and never blocks;
// events that do not fit a queue are dropped and logged.
func (e *Engine) HandleMIDI(ev midi.Event) {
	if e.pendingShutdown.Load() {
		return
	}
	cycleFrame, idx := e.clock.Stamp()
	enqueue := func(part int, ev midi.Event) {
		if err := e.queues[part].Enqueue(ev, cycleFrame, idx); err != nil {
			e.log.Warn("MIDI event dropped", "part", part+1, "event", ev.String(), "err", err)
		}
	}
	parts := e.studio.Locks().PartsOn(ev.Channel)

	switch ev.Type {
	case midi.NoteOn, midi.NoteOff, midi.PitchBend:
		for _, part := range parts {
			enqueue(part, ev)
		}
	case midi.Controller:
		switch ev.Controller {
		case midi.CCSustain, midi.CCAllSoundOff, midi.CCAllNotesOff:
			for _, part := range parts {
				enqueue(part, ev)
			}
			return
		}
		e.studio.ApplyController(ev.Channel, ev.Controller, ev.Value, func(part int, id param.ID, cc int) {
			enqueue(part, midi.Event{Type: midi.Param, Channel: ev.Channel, Param: id, Value: cc})
		})
	case midi.ProgramChange:
		for _, part := range parts {
			st := e.studio.SelectProgram(part, ev.Value)
			enqueue(part, midi.Event{Type: midi.State, Channel: ev.Channel, State: st})
		}
	}
}

// QueueMidiEvent stamps ev against the clock and queues it for part. It
// takes effect one period after the current one.
func (e *Engine) QueueMidiEvent(part int, ev midi.Event) error {
	if part < 0 || part >= studio.MaxParts {
		return fmt.Errorf("part %d out of range", part+1)
	}
	if e.pendingShutdown.Load() {
		return ErrNotRunning
	}
	cycleFrame, idx := e.clock.Stamp()
	return e.queues[part].Enqueue(ev, cycleFrame, idx)
}

// Schedule queues ev for part at an absolute output frame, counted from the
// first rendered sample. Frames already rendered apply at the start of the
// next period.
func (e *Engine) Schedule(part int, ev midi.Event, frame int64) error {
	if part < 0 || part >= studio.MaxParts {
		return fmt.Errorf("part %d out of range", part+1)
	}
	if e.pendingShutdown.Load() {
		return ErrNotRunning
	}
	return e.queues[part].EnqueueAt(ev, frame)
}

// SetParam edits a parameter of part's active patch on behalf of the user
// and forwards the stored value to the renderer.
func (e *Engine) SetParam(part int, id param.ID, cc int) (int, error) {
	stored, changed, err := e.studio.SetParam(part, id, cc, param.SourceUser)
	if err != nil {
		return stored, err
	}
	if !changed {
		return stored, nil
	}
	return stored, e.QueueMidiEvent(studio.ClampPart(part), midi.Event{Type: midi.Param, Param: id, Value: stored})
}

// PushState replaces the working State of part.
func (e *Engine) PushState(part int, st *patch.State) error {
	return e.QueueMidiEvent(studio.ClampPart(part), midi.Event{Type: midi.State, State: st})
}

// SelectProgram switches part to prog and reloads its renderer.
func (e *Engine) SelectProgram(part, prog int) error {
	return e.PushState(part, e.studio.SelectProgram(part, prog))
}

// SelectSession switches every part to session n.
func (e *Engine) SelectSession(n int) error {
	states, err := e.studio.SelectSession(n)
	for part, st := range states {
		if qerr := e.PushState(part, st); qerr != nil && err == nil {
			err = qerr
		}
	}
	return err
}
