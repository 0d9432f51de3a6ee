// Package patch holds the control-plane form of a sound (Patch), its
// engine-ready numeric form (State), the callbacks that translate one into
// the other and the patch file format.
package patch

import (
	"github.com/cwbudde/algo-synth/param"
)

// Patch is one addressable voice program.
type Patch struct {
	Name      string
	Filename  string
	Directory string

	Session int
	Part    int
	ProgNum int

	Modified bool

	Params [param.NumParams]param.Param
	State  *State

	locks *param.ControllerMap
}

// New returns a default patch for part. locks may be nil, in which case the
// table lock flags apply and the part listens on its own channel.
func New(part int, locks *param.ControllerMap) *Patch {
	p := &Patch{Part: part, locks: locks, State: &State{}}
	for i := range p.Params {
		p.Params[i] = param.NewParam(param.ID(i), locks)
	}
	p.Reset()
	return p
}

// Locks returns the controller map the patch resolves locks against.
func (p *Patch) Locks() *param.ControllerMap { return p.locks }

// SetLocks rebinds the patch to a controller map.
func (p *Patch) SetLocks(locks *param.ControllerMap) {
	p.locks = locks
	for i := range p.Params {
		p.Params[i].SetLocks(locks)
	}
}

// Channel is the MIDI channel of the owning part.
func (p *Patch) Channel() int {
	if p.locks == nil {
		return p.Part % 16
	}
	return p.locks.Channel(p.Part)
}

// Reset returns every parameter to its default, forces the part channel
// and rebuilds State.
func (p *Patch) Reset() {
	for i := range p.Params {
		prm := &p.Params[i]
		prm.Set(prm.Info.Default, param.SourceInit)
		prm.Value.CCPrev = prm.Value.CCVal
	}
	p.Params[param.MidiChannel].Set(p.Channel(), param.SourceInit)
	InitState(p)
}

// InitState rebuilds the whole State from the parameters.
func InitState(p *Patch) {
	if p.State == nil {
		p.State = &State{}
	}
	for i := range p.Params {
		UpdateState(p.State, &p.Params[i])
	}
}

// Set writes one parameter and updates State. Only user and MIDI edits mark
// the patch modified.
func (p *Patch) Set(id param.ID, cc int, src param.Source) (bool, error) {
	prm := &p.Params[id]
	changed, err := prm.Set(cc, src)
	if err != nil {
		return false, err
	}
	UpdateState(p.State, prm)
	if changed && (src == param.SourceUser || src == param.SourceMIDI) {
		p.Modified = true
	}
	return changed, nil
}

// Get returns the current value of id.
func (p *Patch) Get(id param.ID) param.Value { return p.Params[id].Value }

// Snapshot returns an independent copy of State for publication to a
// render goroutine.
func (p *Patch) Snapshot() *State { return p.State.Clone() }

// Sensitive reports whether id currently has an audible effect.
func (p *Patch) Sensitive(id param.ID) bool {
	return param.Sensitive(p.Get, id)
}

// CopyFrom copies every parameter value and the identity strings of src.
// Indices and the lock table are kept.
func (p *Patch) CopyFrom(src *Patch) {
	p.Name = src.Name
	p.Filename = src.Filename
	p.Directory = src.Directory
	p.Modified = src.Modified
	for i := range p.Params {
		p.Params[i].Set(src.Params[i].Value.CCVal, param.SourceInit)
	}
	p.Params[param.MidiChannel].Set(p.Channel(), param.SourceInit)
	InitState(p)
}
