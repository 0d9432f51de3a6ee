// Package midi timestamps incoming MIDI messages against the engine's sample
// clock and queues them per part for the render goroutines.
package midi

import (
	"fmt"

	"github.com/cwbudde/algo-synth/param"
	"github.com/cwbudde/algo-synth/patch"
)

// Type is the kind of an Event.
type Type uint8

const (
	NoteOn Type = iota + 1
	NoteOff
	Controller
	ProgramChange
	PitchBend
	// Param carries one parameter value to a part's working State.
	Param
	// State replaces a part's working State with a snapshot.
	State
)

func (t Type) String() string {
	switch t {
	case NoteOn:
		return "note_on"
	case NoteOff:
		return "note_off"
	case Controller:
		return "controller"
	case ProgramChange:
		return "program_change"
	case PitchBend:
		return "pitch_bend"
	case Param:
		return "param"
	case State:
		return "state"
	}
	return "unknown"
}

// Controller numbers handled by the voice engine rather than the param map.
const (
	CCSustain     = 64
	CCAllSoundOff = 120
	CCAllNotesOff = 123
)

// Event is one timestamped message for a part.
type Event struct {
	Type    Type
	Channel int

	Note     int
	Velocity int

	Controller int
	Value      int

	// Bend is the pitch bend amount in [-8192, 8191].
	Bend int

	Param param.ID
	State *patch.State

	// Queue tags.
	Frame       int64 // absolute sample frame the event takes effect at
	CycleFrame  int
	BufferIndex uint64
	MidiIndex   uint64
}

func (e Event) String() string {
	switch e.Type {
	case NoteOn, NoteOff:
		return fmt.Sprintf("%s ch=%d note=%d vel=%d @%d", e.Type, e.Channel+1, e.Note, e.Velocity, e.Frame)
	case Controller:
		return fmt.Sprintf("%s ch=%d cc=%d val=%d @%d", e.Type, e.Channel+1, e.Controller, e.Value, e.Frame)
	case ProgramChange:
		return fmt.Sprintf("%s ch=%d prog=%d @%d", e.Type, e.Channel+1, e.Value, e.Frame)
	case PitchBend:
		return fmt.Sprintf("%s ch=%d bend=%d @%d", e.Type, e.Channel+1, e.Bend, e.Frame)
	case Param:
		return fmt.Sprintf("%s %s=%d @%d", e.Type, param.Lookup(e.Param).Name, e.Value, e.Frame)
	}
	return fmt.Sprintf("%s @%d", e.Type, e.Frame)
}
