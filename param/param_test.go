package param

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestTableNamesAreUniqueAndResolvable(t *testing.T) {
	if NumParams != 149 {
		t.Fatalf("NumParams = %d, want 149", NumParams)
	}
	for _, info := range All() {
		id, ok := ByName(info.Name)
		if !ok || id != info.ID {
			t.Fatalf("ByName(%q) = %d, %v; want %d", info.Name, id, ok, info.ID)
		}
		if info.Default < 0 || info.Default > info.CCLimit {
			t.Fatalf("%s: default %d outside [0, %d]", info.Name, info.Default, info.CCLimit)
		}
	}
}

func TestValueInvariantHoldsForEveryWriter(t *testing.T) {
	locks := NewControllerMap()
	for _, src := range []Source{SourceInit, SourceUser, SourceLive, SourcePatch, SourceMIDI} {
		for _, info := range All() {
			p := NewParam(info.ID, locks)
			for _, cc := range []int{-5, 0, 1, 63, 64, 127, 200} {
				if _, err := p.Set(cc, src); err != nil {
					t.Fatalf("%s: Set(%d, %s): %v", info.Name, cc, src, err)
				}
				if p.Value.IntVal != p.Value.CCVal+info.CCOffset {
					t.Fatalf("%s: IntVal %d != CCVal %d + offset %d", info.Name, p.Value.IntVal, p.Value.CCVal, info.CCOffset)
				}
			}
		}
	}
}

func TestSetClampsToLimit(t *testing.T) {
	tests := []struct {
		id   ID
		in   int
		want int
	}{
		{FilterCutoff, 200, 127},
		{FilterCutoff, -1, 0},
		{Keymode, 200, KeymodePoly},
		{Osc(0, OscFreqBase), 99, OscBaseTempoTrig},
		{LFO(3, LFORate), 1000, len(RateNames) - 1},
	}
	for _, tt := range tests {
		p := NewParam(tt.id, nil)
		if _, err := p.Set(tt.in, SourceMIDI); err != nil {
			t.Fatalf("%s: %v", p.Info.Name, err)
		}
		if p.Value.CCVal != tt.want {
			t.Fatalf("%s: Set(%d) stored %d, want %d", p.Info.Name, tt.in, p.Value.CCVal, tt.want)
		}
	}
}

func TestLockedRejectsPatchAndMIDI(t *testing.T) {
	locks := NewControllerMap()
	locks.SetLocked(Volume, true)
	p := NewParam(Volume, locks)
	before := p.Value.CCVal

	for _, src := range []Source{SourcePatch, SourceMIDI} {
		changed, err := p.Set(10, src)
		if !errors.Is(err, ErrLocked) || changed {
			t.Fatalf("Set from %s: changed=%v err=%v, want ErrLocked", src, changed, err)
		}
		if p.Value.CCVal != before {
			t.Fatalf("locked value moved to %d on %s write", p.Value.CCVal, src)
		}
	}
	if _, err := p.Set(10, SourceUser); err != nil || p.Value.CCVal != 10 {
		t.Fatalf("user edit: err=%v CCVal=%d", err, p.Value.CCVal)
	}
}

func TestObserverSeesEachChangeOnce(t *testing.T) {
	var obs Observer
	p := NewParam(Pan, nil)
	if !obs.Changed(&p) {
		t.Fatal("fresh parameter should be reported once")
	}
	if obs.Changed(&p) {
		t.Fatal("unchanged parameter reported twice")
	}
	p.Set(p.Value.CCVal, SourceUser)
	if obs.Changed(&p) {
		t.Fatal("write of the same value reported as change")
	}
	p.Set(p.Value.CCVal+1, SourceUser)
	if !obs.Changed(&p) {
		t.Fatal("change not reported")
	}

	var other Observer
	if !other.Changed(&p) {
		t.Fatal("second observer must see the change independently")
	}
}

func TestFormatParseUsesStringTable(t *testing.T) {
	info := Lookup(Osc(1, OscRate))
	idx := RateIndex("1/16")
	if got := info.Format(idx); got != "1/16" {
		t.Fatalf("Format = %q", got)
	}
	if v, err := info.Parse("1/16"); err != nil || v != idx {
		t.Fatalf("Parse = %d, %v", v, err)
	}
	if _, err := Lookup(Volume).Parse("loud"); err == nil {
		t.Fatal("expected error for non-numeric value")
	}
}

func TestRateTable(t *testing.T) {
	if RateNames[RateIndex("1/4")] != "1/4" || RateBeats(RateIndex("1/4")) != 1 {
		t.Fatalf("quarter note is not one beat")
	}
	if RateBeats(RateIndex("1/8d")) != 0.75 {
		t.Fatalf("dotted eighth = %v", RateBeats(RateIndex("1/8d")))
	}
	if hz := RateHz(RateIndex("1/4"), 120); hz != 2 {
		t.Fatalf("quarter at 120 bpm = %v Hz", hz)
	}
}

func TestRuleOffsets(t *testing.T) {
	for n := 0; n < NumOscs; n++ {
		wave := Osc(n, OscWave)
		if Lookup(wave-3).Name != Lookup(Osc(n, OscModulation)).Name {
			t.Fatalf("osc%d wave-3 is %s", n+1, Lookup(wave-3).Name)
		}
		if Lookup(wave-1).Name != Lookup(Osc(n, OscFreqBase)).Name {
			t.Fatalf("osc%d wave-1 is %s", n+1, Lookup(wave-1).Name)
		}
	}
	for n := 0; n < NumLFOs; n++ {
		rate := LFO(n, LFORate)
		if !strings.HasSuffix(Lookup(rate-1).Name, "_freq_base") {
			t.Fatalf("lfo%d rate-1 is %s", n+1, Lookup(rate-1).Name)
		}
	}
	if got := len(Dependents(ChorusMix)); got != 8 {
		t.Fatalf("chorus mix gates %d parameters, want 8", got)
	}
	if got := len(Dependents(DelayMix)); got != 4 {
		t.Fatalf("delay mix gates %d parameters, want 4", got)
	}
}

func TestSensitive(t *testing.T) {
	vals := make(map[ID]Value)
	for _, info := range All() {
		vals[info.ID] = Value{CCVal: info.Default, IntVal: info.Default + info.CCOffset}
	}
	get := func(id ID) Value { return vals[id] }
	set := func(id ID, cc int) {
		vals[id] = Value{CCVal: cc, IntVal: cc + Lookup(id).CCOffset}
	}

	if Sensitive(get, ChorusTime) {
		t.Fatal("chorus time sensitive with chorus mix 0")
	}
	set(ChorusMix, 20)
	if !Sensitive(get, ChorusTime) {
		t.Fatal("chorus time insensitive with chorus mix set")
	}

	// Default filter env amount is the centre detent.
	if Sensitive(get, FilterAttack) {
		t.Fatal("filter attack sensitive with zero env amount")
	}
	set(FilterEnvAmount, 100)
	if !Sensitive(get, FilterAttack) {
		t.Fatal("filter attack insensitive with env amount")
	}

	wave := Osc(1, OscWave)
	if Sensitive(get, wave) {
		t.Fatal("osc2 wave sensitive with modulation off")
	}
	set(Osc(1, OscModulation), ModMix)
	if !Sensitive(get, wave) {
		t.Fatal("osc2 wave insensitive with modulation on")
	}
	set(Osc(1, OscFreqBase), OscBaseInput)
	if Sensitive(get, wave) {
		t.Fatal("osc2 wave sensitive with input frequency base")
	}

	if Sensitive(get, Osc(0, OscRate)) {
		t.Fatal("osc1 rate sensitive with midi_key frequency base")
	}
	set(Osc(0, OscFreqBase), OscBaseTempo)
	if !Sensitive(get, Osc(0, OscRate)) {
		t.Fatal("osc1 rate insensitive with tempo frequency base")
	}

	set(LFO(2, LFOFreqBase), LFOBaseMidiKey)
	if Sensitive(get, LFO(2, LFORate)) {
		t.Fatal("lfo3 rate sensitive with midi_key frequency base")
	}
}

func TestControllerMapRoundTrip(t *testing.T) {
	m := NewControllerMap()
	m.SetCC(FilterCutoff, 20)
	m.SetLocked(Volume, true)
	m.SetChannel(3, OmniChannel)
	m.SetChannel(4, 9)

	var buf bytes.Buffer
	if err := m.WriteMap(&buf); err != nil {
		t.Fatalf("WriteMap: %v", err)
	}
	got := NewControllerMap()
	if err := got.ReadMap(&buf, nil); err != nil {
		t.Fatalf("ReadMap: %v", err)
	}
	if got.CC(FilterCutoff) != 20 || !got.Locked(Volume) || got.Locked(Pan) {
		t.Fatalf("controller assignments lost: cc=%d locked=%v", got.CC(FilterCutoff), got.Locked(Volume))
	}
	if got.Channel(3) != OmniChannel || got.Channel(4) != 9 || got.Channel(5) != 5 {
		t.Fatalf("channels = %d %d %d", got.Channel(3), got.Channel(4), got.Channel(5))
	}
	ids := got.Params(20)
	if len(ids) != 1 || ids[0] != FilterCutoff {
		t.Fatalf("Params(20) = %v", ids)
	}
	if parts := got.PartsOn(9); len(parts) != 3 {
		t.Fatalf("PartsOn(9) = %v, want parts 3, 4 and 9", parts)
	}
}

func TestReadMapSkipsMalformedLines(t *testing.T) {
	in := "nonsense;\nbogus_param = 3;\nvolume = x;\nmidi_channel_99 = 2;\npan = 11,locked;\n"
	m := NewControllerMap()
	if err := m.ReadMap(strings.NewReader(in), nil); err != nil {
		t.Fatalf("ReadMap: %v", err)
	}
	if m.CC(Pan) != 11 || !m.Locked(Pan) {
		t.Fatalf("pan = %d locked=%v", m.CC(Pan), m.Locked(Pan))
	}
	if m.CC(Volume) != 7 {
		t.Fatalf("volume keeps its default controller, got %d", m.CC(Volume))
	}
}
