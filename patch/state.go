package patch

import (
	"golang.org/x/sys/cpu"

	"github.com/cwbudde/algo-synth/param"
)

// Envelope holds ADSR stage times in seconds and the sustain level.
type Envelope struct {
	Attack  float64
	Decay   float64
	Sustain float64
	Release float64
}

// Chorus is the engine form of the chorus section.
type Chorus struct {
	Mix         float64
	Amount      float64
	TimeMs      float64
	Feed        float64
	Crossover   float64
	LFOWave     int
	LFORate     int // rate table index
	PhaseRate   int // rate table index
	PhaseAmount float64
}

// Delay is the engine form of the delay section.
type Delay struct {
	Mix       float64
	Feed      float64
	Crossover float64
	Time      int // rate table index
	LFO       int // 0 off, 1..4 LFO
}

// Filter is the engine form of the filter section. Cutoff stays in the
// controller domain and is mapped to a frequency by the sample-rate
// dependent tables.
type Filter struct {
	Cutoff       float64
	Resonance    float64
	Smoothing    float64
	Keyfollow    int
	Mode         int
	Type         int
	Gain         float64
	EnvAmount    float64
	EnvSource    int
	LFO          int
	LFOCutoff    float64
	LFOResonance float64
}

// Osc is the engine form of one oscillator block.
type Osc struct {
	Modulation     int
	Polarity       int
	FreqBase       int
	Wave           int
	Rate           int
	InitPhase      float64 // cycles, [0, 1)
	Transpose      int     // semitones
	FineTune       float64 // semitones
	Pitchbend      int     // bend range in semitones
	AMLFO          int
	AMLFOAmount    float64
	FreqLFO        int
	FreqLFOAmount  float64 // semitones
	FreqLFOFine    float64 // semitones
	PhaseLFO       int
	PhaseLFOAmount float64
	WaveLFO        int
	WaveLFOAmount  float64
}

// LFO is the engine form of one LFO block.
type LFO struct {
	Wave      int
	FreqBase  int
	Rate      int
	Polarity  int
	InitPhase float64
	Transpose int
	Pitchbend int
	VoiceAM   float64
}

// State is the engine-ready form of a patch. Render code reads only State.
// It is plain data: copying a State yields an independent snapshot.
type State struct {
	_ cpu.CacheLinePad

	// Raw controller values, kept for parameters the engine needs in both
	// domains and for snapshot comparison.
	Raw [param.NumParams]int

	MidiChannel  int
	BPM          float64
	MasterTune   float64 // semitones
	Portamento   float64 // seconds
	Keymode      int
	KeyfollowVol float64
	Transpose    int
	Volume       float64
	Pan          float64 // -1 left, +1 right
	StereoWidth  float64
	AmpVelocity  float64
	AmpEnv       Envelope

	Chorus    Chorus
	Delay     Delay
	Filter    Filter
	FilterEnv Envelope

	Osc [param.NumOscs]Osc
	LFO [param.NumLFOs]LFO

	_ cpu.CacheLinePad
}

// NewState returns a State holding the table defaults.
func NewState() *State {
	s := &State{}
	for _, info := range param.All() {
		ApplyValue(s, info.ID, info.Default)
	}
	return s
}

// Clone returns an independent copy of s.
func (s *State) Clone() *State {
	c := *s
	return &c
}

// Value returns the controller/engine pair of id as last applied to s.
func (s *State) Value(id param.ID) param.Value {
	cc := s.Raw[id]
	return param.Value{CCPrev: cc, CCVal: cc, IntVal: cc + param.Lookup(id).CCOffset}
}

// Sensitive reports whether id currently has an audible effect.
func (s *State) Sensitive(id param.ID) bool {
	return param.Sensitive(s.Value, id)
}
