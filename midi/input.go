package midi

import (
	"fmt"
	"log/slog"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Decode converts a raw MIDI message. ok is false for messages the engine
// does not handle (clock, sysex, aftertouch). Note-on with velocity 0 is a
// note-off.
func Decode(msg gomidi.Message) (ev Event, ok bool) {
	var ch, key, vel, cc, val, prog uint8
	var rel int16
	var abs uint16
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return Event{Type: NoteOn, Channel: int(ch), Note: int(key), Velocity: int(vel)}, true
	case msg.GetNoteEnd(&ch, &key):
		return Event{Type: NoteOff, Channel: int(ch), Note: int(key)}, true
	case msg.GetControlChange(&ch, &cc, &val):
		return Event{Type: Controller, Channel: int(ch), Controller: int(cc), Value: int(val)}, true
	case msg.GetProgramChange(&ch, &prog):
		return Event{Type: ProgramChange, Channel: int(ch), Value: int(prog)}, true
	case msg.GetPitchBend(&ch, &rel, &abs):
		return Event{Type: PitchBend, Channel: int(ch), Bend: int(rel)}, true
	}
	return Event{}, false
}

// Encode is the inverse of Decode for the MIDI event types.
func Encode(ev Event) (gomidi.Message, bool) {
	ch := uint8(ev.Channel & 0x0f)
	switch ev.Type {
	case NoteOn:
		return gomidi.NoteOn(ch, uint8(ev.Note&0x7f), uint8(ev.Velocity&0x7f)), true
	case NoteOff:
		return gomidi.NoteOff(ch, uint8(ev.Note&0x7f)), true
	case Controller:
		return gomidi.ControlChange(ch, uint8(ev.Controller&0x7f), uint8(ev.Value&0x7f)), true
	case ProgramChange:
		return gomidi.ProgramChange(ch, uint8(ev.Value&0x7f)), true
	case PitchBend:
		return gomidi.Pitchbend(ch, int16(ev.Bend)), true
	}
	return nil, false
}

// Ports lists the available MIDI input ports.
func Ports() []string {
	var names []string
	for _, in := range gomidi.GetInPorts() {
		names = append(names, in.String())
	}
	return names
}

// Input is an open MIDI input port delivering decoded events to a handler
// on the driver's listener goroutine.
type Input struct {
	port drivers.In
	stop func()
	log  *slog.Logger
}

// Open listens on the named port, or the first port when name is empty.
// Listener errors are logged; the caller's watchdog decides whether to
// reopen.
func Open(name string, handle func(Event), log *slog.Logger) (*Input, error) {
	if log == nil {
		log = slog.Default()
	}
	var (
		port drivers.In
		err  error
	)
	if name == "" {
		port, err = gomidi.InPort(0)
	} else {
		port, err = gomidi.FindInPort(name)
	}
	if err != nil {
		return nil, fmt.Errorf("midi input %q: %w", name, err)
	}
	in := &Input{port: port, log: log}
	stop, err := gomidi.ListenTo(port, func(msg gomidi.Message, timestampms int32) {
		if ev, ok := Decode(msg); ok {
			handle(ev)
			return
		}
		log.Debug("unhandled MIDI message", "msg", msg.String())
	}, gomidi.HandleError(func(listenErr error) {
		log.Warn("MIDI listener error", "port", port.String(), "err", listenErr)
	}))
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", port.String(), err)
	}
	in.stop = stop
	log.Info("MIDI input connected", "port", port.String())
	return in, nil
}

// Name returns the port name.
func (in *Input) Name() string { return in.port.String() }

// Close stops listening and closes the port.
func (in *Input) Close() error {
	if in.stop != nil {
		in.stop()
		in.stop = nil
	}
	return in.port.Close()
}
