// Package param defines the synthesizer parameter model: the immutable
// per-parameter descriptors, the controller/engine value pair every patch
// carries for each parameter, the sensitivity rule table and the live MIDI
// controller map.
package param

import (
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
)

// ID identifies a parameter. IDs are positions in the parameter table and are
// never serialized; names are the stable wire format.
type ID int

// Type is the value domain of a parameter.
type Type int

const (
	TypeInt Type = iota
	TypeReal
	TypeBool
	TypeChoice
	TypeRate
	TypeDetent
)

func (t Type) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeReal:
		return "real"
	case TypeBool:
		return "bool"
	case TypeChoice:
		return "choice"
	case TypeRate:
		return "rate"
	case TypeDetent:
		return "detent"
	}
	return "unknown"
}

// Source names the writer of a parameter value.
type Source int

const (
	// SourceInit is used while building defaults.
	SourceInit Source = iota
	// SourceUser is an explicit edit; it is the only writer locked
	// parameters accept besides SourceLive.
	SourceUser
	// SourceLive copies the live value into a freshly loaded patch.
	SourceLive
	// SourcePatch is a value read from a patch file.
	SourcePatch
	// SourceMIDI is a controller change received from MIDI.
	SourceMIDI
)

func (s Source) String() string {
	switch s {
	case SourceInit:
		return "init"
	case SourceUser:
		return "user"
	case SourceLive:
		return "live"
	case SourcePatch:
		return "patch"
	case SourceMIDI:
		return "midi"
	}
	return "unknown"
}

// ErrLocked is returned when a patch or MIDI write targets a locked parameter.
var ErrLocked = errors.New("param: parameter is locked")

// ErrUnknown is returned when a parameter name is not in the table.
var ErrUnknown = errors.New("param: unknown parameter")

// Info is the immutable descriptor of one parameter.
type Info struct {
	ID       ID
	Name     string
	Label    string
	Section  string
	Type     Type
	CC       int // default MIDI controller, -1 for none
	CCLimit  int
	CCOffset int
	Default  int // controller domain
	Locked   bool
	Strings  []string
	// NoSave marks bookkeeping parameters that are not written to patch files.
	NoSave bool
}

// Clamp limits a controller-domain value to [0, CCLimit].
func (i *Info) Clamp(cc int) int {
	if cc < 0 {
		return 0
	}
	if cc > i.CCLimit {
		return i.CCLimit
	}
	return cc
}

// Format returns the serialized form of a controller-domain value: its name
// from the string table when the parameter has one, else the decimal value.
func (i *Info) Format(cc int) string {
	cc = i.Clamp(cc)
	if len(i.Strings) > cc {
		return i.Strings[cc]
	}
	return strconv.Itoa(cc)
}

// Parse converts a serialized value to the controller domain. Values found in
// the string table map to their index; anything else must be an integer.
// The result is not clamped.
func (i *Info) Parse(s string) (int, error) {
	for idx, name := range i.Strings {
		if name == s {
			return idx, nil
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid value %q", i.Name, s)
	}
	return v, nil
}

// Value is the controller/engine value pair of one parameter instance.
// IntVal == CCVal + Info.CCOffset holds after every write.
type Value struct {
	CCPrev int
	CCVal  int
	IntVal int
}

var generation atomic.Uint64

// Param binds a Value to its Info and the lock table of the owning patch.
type Param struct {
	Info  *Info
	Value Value
	locks *ControllerMap
	gen   uint64
}

// NewParam returns a parameter holding its default value.
func NewParam(id ID, locks *ControllerMap) Param {
	info := Lookup(id)
	p := Param{Info: info, locks: locks}
	p.Value = Value{CCPrev: info.Default, CCVal: info.Default, IntVal: info.Default + info.CCOffset}
	p.gen = generation.Add(1)
	return p
}

// ID returns the parameter id.
func (p *Param) ID() ID { return p.Info.ID }

// Locked reports whether the parameter currently ignores patch and MIDI writes.
func (p *Param) Locked() bool {
	if p.locks != nil {
		return p.locks.Locked(p.Info.ID)
	}
	return p.Info.Locked
}

// SetLocks rebinds the lock table, used when a patch is adopted by a studio.
func (p *Param) SetLocks(locks *ControllerMap) { p.locks = locks }

// Generation is a process-wide monotonic version of the last change to this
// parameter. Observers compare it against the last generation they saw.
func (p *Param) Generation() uint64 { return p.gen }

// Set writes a controller-domain value. Out-of-range values are clamped to
// [0, CCLimit]. Patch and MIDI writes to locked parameters return ErrLocked
// and leave the value untouched. changed reports whether CCVal moved.
func (p *Param) Set(cc int, src Source) (changed bool, err error) {
	if (src == SourcePatch || src == SourceMIDI) && p.Locked() {
		return false, ErrLocked
	}
	cc = p.Info.Clamp(cc)
	old := p.Value.CCVal
	p.Value.CCPrev = old
	p.Value.CCVal = cc
	p.Value.IntVal = cc + p.Info.CCOffset
	if cc != old {
		p.gen = generation.Add(1)
		return true, nil
	}
	return false, nil
}

// String returns the serialized form of the current value.
func (p *Param) String() string { return p.Info.Format(p.Value.CCVal) }

// Observer tracks which parameters changed since it last looked.
type Observer struct {
	seen [NumParams]uint64
}

// Changed reports whether p changed since the previous call for the same id
// and records its current generation.
func (o *Observer) Changed(p *Param) bool {
	id := p.Info.ID
	g := p.Generation()
	if o.seen[id] == g {
		return false
	}
	o.seen[id] = g
	return true
}
