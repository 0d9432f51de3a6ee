package synth

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-synth/midi"
	"github.com/cwbudde/algo-synth/param"
)

var sineOsc = map[param.ID]int{param.Osc(0, param.OscWave): param.WaveSine}

func TestNoteProducesPitch(t *testing.T) {
	p := newTestPart(t, sineOsc)
	p.NoteOn(69, 127)
	render(p, 4800)
	l, _ := render(p, 8192)
	if got := peakHz(t, l, testRate); math.Abs(got-440) > 6 {
		t.Fatalf("peak at %.1f Hz, want 440", got)
	}
}

func TestPitchBendUsesOscillatorRange(t *testing.T) {
	p := newTestPart(t, sineOsc)
	p.NoteOn(69, 127)
	p.HandleEvent(midi.Event{Type: midi.PitchBend, Bend: 8191})
	render(p, 4800)
	l, _ := render(p, 8192)
	want := 440 * math.Pow(2, 2.0/12)
	if got := peakHz(t, l, testRate); math.Abs(got-want) > 6 {
		t.Fatalf("peak at %.1f Hz, want %.1f", got, want)
	}
}

func TestNoteOffDecaysToSilence(t *testing.T) {
	p := newTestPart(t, nil)
	p.NoteOn(60, 100)
	l, _ := render(p, 2048)
	if rms(l) < 1e-3 {
		t.Fatal("note is silent")
	}
	p.NoteOff(60)
	render(p, testRate)
	if n := p.ActiveVoices(); n != 0 {
		t.Fatalf("%d voices still active after release", n)
	}
	l, _ = render(p, 1024)
	if rms(l) > 1e-4 {
		t.Fatalf("output after release rms=%g", rms(l))
	}
}

func TestPolyStealsOldestVoice(t *testing.T) {
	p := newTestPart(t, nil)
	for n := 0; n <= MaxVoices; n++ {
		p.NoteOn(40+n, 100)
	}
	if got := p.ActiveVoices(); got != MaxVoices {
		t.Fatalf("active = %d, want %d", got, MaxVoices)
	}
	for i := range p.voices {
		if p.voices[i].note == 40 {
			t.Fatal("oldest note was not stolen")
		}
	}
}

func TestPolyPrefersReleasedVoice(t *testing.T) {
	p := newTestPart(t, nil)
	for n := 0; n < MaxVoices; n++ {
		p.NoteOn(40+n, 100)
	}
	p.NoteOff(45)
	p.NoteOn(90, 100)
	for i := range p.voices {
		if p.voices[i].note == 45 {
			t.Fatal("released voice was not reused")
		}
	}
}

func TestSustainPedalHoldsReleasedNotes(t *testing.T) {
	p := newTestPart(t, nil)
	p.NoteOn(60, 100)
	p.HandleEvent(midi.Event{Type: midi.Controller, Controller: midi.CCSustain, Value: 127})
	p.NoteOff(60)
	render(p, testRate/2)
	if p.ActiveVoices() != 1 {
		t.Fatal("pedal did not hold the note")
	}
	p.HandleEvent(midi.Event{Type: midi.Controller, Controller: midi.CCSustain, Value: 0})
	render(p, testRate)
	if p.ActiveVoices() != 0 {
		t.Fatal("lifting the pedal did not release the note")
	}
}

func TestMonoFallsBackToHeldKey(t *testing.T) {
	for _, mode := range []int{param.KeymodeMonoSmooth, param.KeymodeMonoRetrig} {
		p := newTestPart(t, map[param.ID]int{param.Keymode: mode})
		p.NoteOn(60, 100)
		p.NoteOn(64, 100)
		if p.ActiveVoices() != 1 {
			t.Fatalf("mode %d: %d voices", mode, p.ActiveVoices())
		}
		p.NoteOff(64)
		v := &p.voices[0]
		if !v.gate || v.note != 60 || v.target[0] != 60 {
			t.Fatalf("mode %d: voice note %d target %v gate %v", mode, v.note, v.target[0], v.gate)
		}
		p.NoteOff(60)
		if v.gate {
			t.Fatalf("mode %d: voice still gated", mode)
		}
	}
}

func TestMonoSmoothDoesNotRetrigger(t *testing.T) {
	p := newTestPart(t, map[param.ID]int{param.Keymode: param.KeymodeMonoSmooth})
	p.NoteOn(60, 100)
	render(p, 4800)
	p.NoteOn(62, 100)
	if p.voices[0].amp.stage == envAttack {
		t.Fatal("legato note restarted the envelope")
	}

	p = newTestPart(t, map[param.ID]int{param.Keymode: param.KeymodeMonoRetrig})
	p.NoteOn(60, 100)
	render(p, 4800)
	p.NoteOn(62, 100)
	if p.voices[0].amp.stage != envAttack {
		t.Fatal("mono_retrig did not restart the envelope")
	}
}

func TestMultikeySpreadsHeldKeys(t *testing.T) {
	p := newTestPart(t, map[param.ID]int{param.Keymode: param.KeymodeMonoMultikey})
	p.NoteOn(60, 100)
	p.NoteOn(64, 100)
	p.NoteOn(67, 100)
	want := [param.NumOscs]float32{67, 64, 60, 67}
	if got := p.voices[0].target; got != want {
		t.Fatalf("targets = %v, want %v", got, want)
	}
	p.NoteOff(64)
	want = [param.NumOscs]float32{67, 60, 67, 60}
	if got := p.voices[0].target; got != want {
		t.Fatalf("after release targets = %v, want %v", got, want)
	}
}

func TestAllSoundOffSilencesImmediately(t *testing.T) {
	p := newTestPart(t, map[param.ID]int{param.DelayMix: 100})
	p.NoteOn(60, 100)
	p.NoteOn(67, 100)
	render(p, 2048)
	p.HandleEvent(midi.Event{Type: midi.Controller, Controller: midi.CCAllSoundOff})
	if p.ActiveVoices() != 0 {
		t.Fatal("voices survived all-sound-off")
	}
	l, r := render(p, 1024)
	if rms(l)+rms(r) != 0 {
		t.Fatal("delay tail survived all-sound-off")
	}
}

func TestAllNotesOffReleases(t *testing.T) {
	p := newTestPart(t, nil)
	p.NoteOn(60, 100)
	p.SetSustain(true)
	p.HandleEvent(midi.Event{Type: midi.Controller, Controller: midi.CCAllNotesOff})
	render(p, testRate)
	if p.ActiveVoices() != 0 {
		t.Fatal("all-notes-off left voices sounding")
	}
}

func TestParamEventUpdatesWorkingState(t *testing.T) {
	p := newTestPart(t, nil)
	p.HandleEvent(midi.Event{Type: midi.Param, Param: param.Volume, Value: 0})
	if p.State().Volume != 0 {
		t.Fatal("volume not applied")
	}
	p.NoteOn(60, 127)
	l, r := render(p, 2048)
	if rms(l)+rms(r) != 0 {
		t.Fatal("zero volume is not silent")
	}
}

func TestStateEventReplacesState(t *testing.T) {
	p := newTestPart(t, nil)
	other := newTestPart(t, map[param.ID]int{param.Keymode: param.KeymodeMonoRetrig}).State().Clone()
	p.HandleEvent(midi.Event{Type: midi.State, State: other})
	if p.State().Keymode != param.KeymodeMonoRetrig {
		t.Fatal("state event not applied")
	}
	other.Keymode = param.KeymodePoly
	if p.State().Keymode != param.KeymodeMonoRetrig {
		t.Fatal("part shares the event's state")
	}
}

func TestFullPatchStaysFinite(t *testing.T) {
	p := newTestPart(t, map[param.ID]int{
		param.ChorusMix:                         100,
		param.ChorusFeed:                        120,
		param.DelayMix:                          90,
		param.DelayLFO:                          1,
		param.FilterType:                        param.Filter24dB,
		param.FilterResonance:                   127,
		param.FilterEnvAmount:                   127,
		param.FilterLFO:                         2,
		param.FilterKeyfollow:                   param.KeyfollowHighest,
		param.Portamento:                        40,
		param.Osc(1, param.OscModulation):       param.ModAM,
		param.Osc(1, param.OscWave):             param.WaveNoise,
		param.Osc(2, param.OscModulation):       param.ModMod,
		param.Osc(2, param.OscFreqBase):         param.OscBaseTempoKey,
		param.Osc(0, param.OscPhaseLFO):         param.SourceOsc1 + 2,
		param.Osc(0, param.OscPhaseLFOAmount):   100,
		param.Osc(0, param.OscWaveLFO):          1,
		param.Osc(0, param.OscWaveLFOAmount):    127,
		param.Osc(0, param.OscFreqLFO):          3,
		param.Osc(0, param.OscFreqLFOAmount):    80,
		param.LFO(0, param.LFOVoiceAM):          64,
		param.LFO(2, param.LFOFreqBase):         param.LFOBaseMidiKey,
		param.LFO(1, param.LFOWave):             param.WaveNoise,
	})
	for n := 0; n < 6; n++ {
		p.NoteOn(36+7*n, 30+15*n)
	}
	l, r := render(p, 3*MaxBlock+17)
	assertFinite(t, l)
	assertFinite(t, r)
	if rms(l) == 0 {
		t.Fatal("patch is silent")
	}
}

func TestInputFrequencyBasePassesInput(t *testing.T) {
	p := newTestPart(t, map[param.ID]int{param.Osc(0, param.OscFreqBase): param.OscBaseInput})
	p.NoteOn(60, 127)
	in := make([]float32, 8192+4800)
	for i := range in {
		in[i] = float32(0.5 * math.Sin(2*math.Pi*1000*float64(i)/testRate))
	}
	l := make([]float32, len(in))
	r := make([]float32, len(in))
	p.Render(l, r, in)
	if got := peakHz(t, l[4800:], testRate); math.Abs(got-1000) > 6 {
		t.Fatalf("peak at %.1f Hz, want the 1 kHz input", got)
	}
}

func TestRenderHandlesShortInput(t *testing.T) {
	p := newTestPart(t, map[param.ID]int{param.Osc(0, param.OscFreqBase): param.OscBaseInput})
	p.NoteOn(60, 127)
	l := make([]float32, 2*MaxBlock)
	r := make([]float32, 2*MaxBlock)
	p.Render(l, r, make([]float32, 10))
	assertFinite(t, l)
}
