package synth

type envStage uint8

const (
	envIdle envStage = iota
	envAttack
	envDecay
	envSustain
	envRelease
	envKill
)

const envFloor = 1e-5

// envTimes are the controller values of one ADSR block as the tables index
// them, plus the sustain level.
type envTimes struct {
	attack, decay, release int
	sustain                float32
}

// envelope is a linear-attack, exponential decay/release ADSR.
type envelope struct {
	stage envStage
	level float32
}

// trigger starts the attack from the current level, so retriggering a
// sounding voice does not click.
func (e *envelope) trigger() { e.stage = envAttack }

func (e *envelope) release() {
	if e.stage != envIdle && e.stage != envKill {
		e.stage = envRelease
	}
}

// kill fades the envelope out quickly regardless of stage.
func (e *envelope) kill() {
	if e.stage != envIdle {
		e.stage = envKill
	}
}

func (e *envelope) active() bool { return e.stage != envIdle }

func (e *envelope) reset() { *e = envelope{} }

// next advances one sample and returns the level.
func (e *envelope) next(t *Tables, et *envTimes) float32 {
	switch e.stage {
	case envAttack:
		e.level += t.EnvLinear[et.attack]
		if e.level >= 1 {
			e.level = 1
			e.stage = envDecay
		}
	case envDecay:
		e.level = et.sustain + (e.level-et.sustain)*t.EnvExp[et.decay]
		if d := e.level - et.sustain; d < envFloor && d > -envFloor {
			e.level = et.sustain
			e.stage = envSustain
		}
	case envSustain:
		// Follows sustain edits while held.
		e.level = et.sustain
		if e.level < envFloor {
			e.stage = envIdle
			e.level = 0
		}
	case envRelease:
		e.level *= t.EnvExp[et.release]
		if e.level < envFloor {
			e.stage = envIdle
			e.level = 0
		}
	case envKill:
		e.level *= t.Kill
		if e.level < envFloor {
			e.stage = envIdle
			e.level = 0
		}
	}
	return e.level
}
