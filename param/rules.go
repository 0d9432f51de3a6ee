package param

// Rule makes Param insensitive unless the value of Depends satisfies Active.
// Depends is always expressed relative to Param's own id where the two live
// in the same oscillator or LFO block, so renumbering a block keeps the rules
// valid as long as the offsets inside the block are unchanged.
type Rule struct {
	Param   ID
	Depends ID
	Active  func(v Value) bool
}

var (
	// Rules lists every sensitivity rule in id order of the dependent parameter.
	Rules  []Rule
	ruleBy [NumParams][]int
)

func nonZero(v Value) bool    { return v.IntVal != 0 }
func selected(v Value) bool   { return v.CCVal != SourceOff }
func notInput(v Value) bool   { return v.CCVal != OscBaseInput }
func oscTempo(v Value) bool   { return v.CCVal >= OscBaseTempo }
func lfoTempo(v Value) bool   { return v.CCVal >= LFOBaseTempo }
func modEnabled(v Value) bool { return v.CCVal != ModOff }

func rule(p, dep ID, active func(Value) bool) {
	Rules = append(Rules, Rule{Param: p, Depends: dep, Active: active})
}

func initRules() {
	for id := ChorusAmount; id <= ChorusPhaseAmount; id++ {
		rule(id, ChorusMix, nonZero)
	}
	for id := DelayFeed; id <= DelayLFO; id++ {
		rule(id, DelayMix, nonZero)
	}
	rule(FilterEnvSource, FilterEnvAmount, nonZero)
	for id := FilterAttack; id <= FilterRelease; id++ {
		rule(id, FilterEnvAmount, nonZero)
	}
	rule(FilterLFOCutoff, FilterLFO, selected)
	rule(FilterLFOResonance, FilterLFO, selected)

	for n := 0; n < NumOscs; n++ {
		mod := Osc(n, OscModulation)
		for id := mod + 1; id < mod+OscParamCount; id++ {
			rule(id, mod, modEnabled)
		}
		wave := Osc(n, OscWave)
		rule(wave, wave-1, notInput)
		rate := Osc(n, OscRate)
		rule(rate, rate-2, oscTempo)
		rule(Osc(n, OscAMLFOAmount), Osc(n, OscAMLFO), selected)
		rule(Osc(n, OscFreqLFOAmount), Osc(n, OscFreqLFO), selected)
		rule(Osc(n, OscFreqLFOFine), Osc(n, OscFreqLFO), selected)
		rule(Osc(n, OscPhaseLFOAmount), Osc(n, OscPhaseLFO), selected)
		rule(Osc(n, OscWaveLFOAmount), Osc(n, OscWaveLFO), selected)
	}
	for n := 0; n < NumLFOs; n++ {
		rate := LFO(n, LFORate)
		rule(rate, rate-1, lfoTempo)
	}

	for i, r := range Rules {
		ruleBy[r.Param] = append(ruleBy[r.Param], i)
	}
}

// Dependents returns the ids whose sensitivity depends directly on id.
func Dependents(id ID) []ID {
	var out []ID
	for _, r := range Rules {
		if r.Depends == id {
			out = append(out, r.Param)
		}
	}
	return out
}

// Sensitive reports whether id is currently meaningful given the values
// returned by get. A parameter is sensitive when every rule gating it is
// active and the parameters those rules depend on are themselves sensitive.
func Sensitive(get func(ID) Value, id ID) bool {
	for _, i := range ruleBy[id] {
		r := Rules[i]
		if !r.Active(get(r.Depends)) {
			return false
		}
		if r.Depends != id && !Sensitive(get, r.Depends) {
			return false
		}
	}
	return true
}
