package param

import (
	"fmt"
	"strconv"
)

// Global and effect parameters. The numeric order is load-bearing for the
// sensitivity rules and the oscillator/LFO block arithmetic below.
const (
	MidiChannel ID = iota
	BPM
	MasterTune
	Portamento
	Keymode
	KeyfollowVol
	Transpose
	Volume
	Pan
	StereoWidth
	AmpVelocity
	AmpAttack
	AmpDecay
	AmpSustain
	AmpRelease

	ChorusMix
	ChorusAmount
	ChorusTime
	ChorusFeed
	ChorusCrossover
	ChorusLFOWave
	ChorusLFORate
	ChorusPhaseRate
	ChorusPhaseAmount

	DelayMix
	DelayFeed
	DelayCrossover
	DelayTime
	DelayLFO

	FilterCutoff
	FilterResonance
	FilterSmoothing
	FilterKeyfollow
	FilterMode
	FilterType
	FilterGain
	FilterEnvAmount
	FilterEnvSource
	FilterLFO
	FilterLFOCutoff
	FilterLFOResonance
	FilterAttack
	FilterDecay
	FilterSustain
	FilterRelease

	Osc1Base
)

// Offsets inside one oscillator block. Wave sits one id after FreqBase and
// three ids after Modulation.
const (
	OscModulation ID = iota
	OscPolarity
	OscFreqBase
	OscWave
	OscRate
	OscInitPhase
	OscTranspose
	OscFineTune
	OscPitchbend
	OscAMLFO
	OscAMLFOAmount
	OscFreqLFO
	OscFreqLFOAmount
	OscFreqLFOFine
	OscPhaseLFO
	OscPhaseLFOAmount
	OscWaveLFO
	OscWaveLFOAmount
	OscParamCount
)

// Offsets inside one LFO block.
const (
	LFOWave ID = iota
	LFOFreqBase
	LFORate
	LFOPolarity
	LFOInitPhase
	LFOTranspose
	LFOPitchbend
	LFOVoiceAM
	LFOParamCount
)

const (
	NumOscs = 4
	NumLFOs = 4

	LFO1Base  = Osc1Base + NumOscs*OscParamCount
	NumParams = int(LFO1Base + NumLFOs*LFOParamCount)
)

// Osc returns the id of a parameter of oscillator n (0-based).
func Osc(n int, offset ID) ID { return Osc1Base + ID(n)*OscParamCount + offset }

// LFO returns the id of a parameter of LFO n (0-based).
func LFO(n int, offset ID) ID { return LFO1Base + ID(n)*LFOParamCount + offset }

// Choice indices shared with the engine.
const (
	KeymodeMonoSmooth = iota
	KeymodeMonoRetrig
	KeymodeMonoMultikey
	KeymodePoly
)

const (
	ModOff = iota
	ModMix
	ModAM
	ModMod
)

const (
	PolarityBipolar = iota
	PolarityUnipolar
)

const (
	OscBaseMidiKey = iota
	OscBaseInput
	OscBaseTempo
	OscBaseTempoKey
	OscBaseTempoTrig
)

const (
	LFOBaseMidiKey = iota
	LFOBaseTempo
	LFOBaseTempoKey
	LFOBaseTempoTrig
)

const (
	WaveSine = iota
	WaveTriangle
	WaveSaw
	WaveRevSaw
	WaveSquare
	WavePulse
	WaveStair
	WaveNoise
	NumWaves
)

const (
	FilterLowpass = iota
	FilterHighpass
	FilterBandpass
	FilterNotch
)

const (
	Filter12dB = iota
	Filter24dB
)

const (
	KeyfollowOff = iota
	KeyfollowNewest
	KeyfollowHighest
	KeyfollowLowest
)

const (
	EnvSourceEnvelope = iota
	EnvSourceVelocity
)

// Modulation source selectors: 0 is off, 1..4 are LFOs, 5..8 are oscillators.
const (
	SourceOff    = 0
	SourceLFO1   = 1
	SourceOsc1   = 1 + NumLFOs
	NumSelectors = 1 + NumLFOs + NumOscs
)

var (
	keymodeNames     = []string{"mono_smooth", "mono_retrig", "mono_multikey", "poly"}
	modulationNames  = []string{"off", "mix", "am", "mod"}
	polarityNames    = []string{"bipolar", "unipolar"}
	oscFreqBaseNames = []string{"midi_key", "input", "tempo", "tempo_key", "tempo_trig"}
	lfoFreqBaseNames = []string{"midi_key", "tempo", "tempo_key", "tempo_trig"}
	WaveNames        = []string{"sine", "triangle", "saw", "rev_saw", "square", "pulse", "stair", "noise"}
	filterModeNames  = []string{"lowpass", "highpass", "bandpass", "notch"}
	filterTypeNames  = []string{"12db", "24db"}
	keyfollowNames   = []string{"off", "newest", "highest", "lowest"}
	envSourceNames   = []string{"envelope", "velocity"}
	lfoSelectNames   = []string{"off", "lfo_1", "lfo_2", "lfo_3", "lfo_4"}
	modSourceNames   = []string{"off", "lfo_1", "lfo_2", "lfo_3", "lfo_4", "osc_1", "osc_2", "osc_3", "osc_4"}
	channelNames     = []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12", "13", "14", "15", "16", "omni"}
)

// OmniChannel is the controller value of midi_channel that listens to all channels.
const OmniChannel = 16

var (
	table  [NumParams]Info
	byName = make(map[string]ID, NumParams)
)

// Lookup returns the descriptor of id. It panics on ids outside the table.
func Lookup(id ID) *Info { return &table[id] }

// ByName resolves a parameter name.
func ByName(name string) (ID, bool) {
	id, ok := byName[name]
	return id, ok
}

// All returns the descriptors in id order.
func All() []*Info {
	out := make([]*Info, NumParams)
	for i := range table {
		out[i] = &table[i]
	}
	return out
}

func define(id ID, name, label, section string, typ Type, cc, limit, offset, def int, strs []string) {
	if limit < 0 && len(strs) > 0 {
		limit = len(strs) - 1
	}
	table[id] = Info{
		ID:       id,
		Name:     name,
		Label:    label,
		Section:  section,
		Type:     typ,
		CC:       cc,
		CCLimit:  limit,
		CCOffset: offset,
		Default:  def,
		Strings:  strs,
	}
	if _, dup := byName[name]; dup {
		panic(fmt.Sprintf("param: duplicate name %q", name))
	}
	byName[name] = id
}

func continuous(id ID, name, label, section string, cc, def int) {
	define(id, name, label, section, TypeReal, cc, 127, 0, def, nil)
}

func detent(id ID, name, label, section string, cc, def int) {
	define(id, name, label, section, TypeDetent, cc, 127, -64, def, nil)
}

func choice(id ID, name, label, section string, cc int, strs []string, def int) {
	define(id, name, label, section, TypeChoice, cc, -1, 0, def, strs)
}

func rate(id ID, name, label, section string, def string) {
	define(id, name, label, section, TypeRate, -1, -1, 0, RateIndex(def), RateNames)
}

func init() {
	const general, amp, chorus, delay, filter = "general", "amp", "chorus", "delay", "filter"

	choice(MidiChannel, "midi_channel", "MIDI Channel", general, -1, channelNames, 0)
	table[MidiChannel].NoSave = true
	define(BPM, "bpm", "BPM", general, TypeInt, -1, 127, 64, 56, nil)
	detent(MasterTune, "master_tune", "Master Tune", general, -1, 64)
	continuous(Portamento, "portamento", "Portamento", general, 5, 0)
	choice(Keymode, "keymode", "Keymode", general, -1, keymodeNames, KeymodePoly)
	detent(KeyfollowVol, "keyfollow_vol", "Keyfollow Volume", general, -1, 64)
	detent(Transpose, "transpose", "Transpose", general, -1, 64)
	continuous(Volume, "volume", "Volume", general, 7, 100)
	detent(Pan, "pan", "Pan", general, 10, 64)
	continuous(StereoWidth, "stereo_width", "Stereo Width", general, -1, 127)

	continuous(AmpVelocity, "amp_velocity", "Amp Velocity", amp, -1, 64)
	continuous(AmpAttack, "amp_attack", "Amp Attack", amp, 73, 0)
	continuous(AmpDecay, "amp_decay", "Amp Decay", amp, -1, 64)
	continuous(AmpSustain, "amp_sustain", "Amp Sustain", amp, -1, 127)
	continuous(AmpRelease, "amp_release", "Amp Release", amp, 72, 20)

	continuous(ChorusMix, "chorus_mix", "Chorus Mix", chorus, 93, 0)
	continuous(ChorusAmount, "chorus_amount", "Chorus Amount", chorus, -1, 48)
	continuous(ChorusTime, "chorus_time", "Chorus Time", chorus, -1, 64)
	continuous(ChorusFeed, "chorus_feed", "Chorus Feedback", chorus, -1, 0)
	continuous(ChorusCrossover, "chorus_crossover", "Chorus Crossover", chorus, -1, 0)
	choice(ChorusLFOWave, "chorus_lfo_wave", "Chorus LFO Wave", chorus, -1, WaveNames, WaveSine)
	rate(ChorusLFORate, "chorus_lfo_rate", "Chorus LFO Rate", chorus, "4")
	rate(ChorusPhaseRate, "chorus_phase_rate", "Chorus Phase Rate", chorus, "8")
	continuous(ChorusPhaseAmount, "chorus_phase_amount", "Chorus Phase Amount", chorus, -1, 64)

	continuous(DelayMix, "delay_mix", "Delay Mix", delay, 94, 0)
	continuous(DelayFeed, "delay_feed", "Delay Feedback", delay, -1, 64)
	continuous(DelayCrossover, "delay_crossover", "Delay Crossover", delay, -1, 0)
	rate(DelayTime, "delay_time", "Delay Time", delay, "1/8d")
	choice(DelayLFO, "delay_lfo", "Delay LFO", delay, -1, lfoSelectNames, SourceOff)

	continuous(FilterCutoff, "filter_cutoff", "Filter Cutoff", filter, 74, 127)
	continuous(FilterResonance, "filter_resonance", "Filter Resonance", filter, 71, 0)
	continuous(FilterSmoothing, "filter_smoothing", "Filter Smoothing", filter, -1, 32)
	choice(FilterKeyfollow, "filter_keyfollow", "Filter Keyfollow", filter, -1, keyfollowNames, KeyfollowOff)
	choice(FilterMode, "filter_mode", "Filter Mode", filter, -1, filterModeNames, FilterLowpass)
	choice(FilterType, "filter_type", "Filter Type", filter, -1, filterTypeNames, Filter12dB)
	continuous(FilterGain, "filter_gain", "Filter Gain", filter, -1, 64)
	detent(FilterEnvAmount, "filter_env_amount", "Filter Env Amount", filter, -1, 64)
	choice(FilterEnvSource, "filter_env_source", "Filter Env Source", filter, -1, envSourceNames, EnvSourceEnvelope)
	choice(FilterLFO, "filter_lfo", "Filter LFO", filter, -1, lfoSelectNames, SourceOff)
	detent(FilterLFOCutoff, "filter_lfo_cutoff", "Filter LFO Cutoff", filter, -1, 64)
	detent(FilterLFOResonance, "filter_lfo_resonance", "Filter LFO Resonance", filter, -1, 64)
	continuous(FilterAttack, "filter_attack", "Filter Attack", filter, -1, 0)
	continuous(FilterDecay, "filter_decay", "Filter Decay", filter, -1, 64)
	continuous(FilterSustain, "filter_sustain", "Filter Sustain", filter, -1, 127)
	continuous(FilterRelease, "filter_release", "Filter Release", filter, -1, 20)

	for n := 0; n < NumOscs; n++ {
		num := strconv.Itoa(n + 1)
		name := func(s string) string { return "osc" + num + "_" + s }
		label := func(s string) string { return "Osc " + num + " " + s }
		section := "osc" + num

		mod, wave := ModOff, WaveSine
		if n == 0 {
			mod, wave = ModMix, WaveSaw
		}
		choice(Osc(n, OscModulation), name("modulation"), label("Modulation"), section, -1, modulationNames, mod)
		choice(Osc(n, OscPolarity), name("polarity"), label("Polarity"), section, -1, polarityNames, PolarityBipolar)
		choice(Osc(n, OscFreqBase), name("freq_base"), label("Frequency Base"), section, -1, oscFreqBaseNames, OscBaseMidiKey)
		choice(Osc(n, OscWave), name("wave"), label("Wave"), section, -1, WaveNames, wave)
		rate(Osc(n, OscRate), name("rate"), label("Rate"), section, "1/4")
		continuous(Osc(n, OscInitPhase), name("init_phase"), label("Initial Phase"), section, -1, 0)
		detent(Osc(n, OscTranspose), name("transpose"), label("Transpose"), section, -1, 64)
		detent(Osc(n, OscFineTune), name("fine_tune"), label("Fine Tune"), section, -1, 64)
		detent(Osc(n, OscPitchbend), name("pitchbend"), label("Pitchbend"), section, -1, 66)
		choice(Osc(n, OscAMLFO), name("am_lfo"), label("AM LFO"), section, -1, modSourceNames, SourceOff)
		detent(Osc(n, OscAMLFOAmount), name("am_lfo_amount"), label("AM LFO Amount"), section, -1, 64)
		choice(Osc(n, OscFreqLFO), name("freq_lfo"), label("Frequency LFO"), section, -1, lfoSelectNames, SourceOff)
		detent(Osc(n, OscFreqLFOAmount), name("freq_lfo_amount"), label("Frequency LFO Amount"), section, -1, 64)
		detent(Osc(n, OscFreqLFOFine), name("freq_lfo_fine"), label("Frequency LFO Fine"), section, -1, 64)
		choice(Osc(n, OscPhaseLFO), name("phase_lfo"), label("Phase LFO"), section, -1, modSourceNames, SourceOff)
		detent(Osc(n, OscPhaseLFOAmount), name("phase_lfo_amount"), label("Phase LFO Amount"), section, -1, 64)
		choice(Osc(n, OscWaveLFO), name("wave_lfo"), label("Wave LFO"), section, -1, lfoSelectNames, SourceOff)
		detent(Osc(n, OscWaveLFOAmount), name("wave_lfo_amount"), label("Wave LFO Amount"), section, -1, 64)
	}

	for n := 0; n < NumLFOs; n++ {
		num := strconv.Itoa(n + 1)
		name := func(s string) string { return "lfo" + num + "_" + s }
		label := func(s string) string { return "LFO " + num + " " + s }
		section := "lfo" + num

		choice(LFO(n, LFOWave), name("wave"), label("Wave"), section, -1, WaveNames, WaveSine)
		choice(LFO(n, LFOFreqBase), name("freq_base"), label("Frequency Base"), section, -1, lfoFreqBaseNames, LFOBaseTempo)
		rate(LFO(n, LFORate), name("rate"), label("Rate"), section, "1/4")
		choice(LFO(n, LFOPolarity), name("polarity"), label("Polarity"), section, -1, polarityNames, PolarityBipolar)
		continuous(LFO(n, LFOInitPhase), name("init_phase"), label("Initial Phase"), section, -1, 0)
		detent(LFO(n, LFOTranspose), name("transpose"), label("Transpose"), section, -1, 64)
		detent(LFO(n, LFOPitchbend), name("pitchbend"), label("Pitchbend"), section, -1, 64)
		continuous(LFO(n, LFOVoiceAM), name("voice_am"), label("Voice AM"), section, -1, 0)
	}

	for i := range table {
		if table[i].Name == "" {
			panic(fmt.Sprintf("param: id %d has no definition", i))
		}
	}
	initRules()
}
