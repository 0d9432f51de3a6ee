package synth

// keyTracker remembers which keys are held and in what order they were
// pressed. Mono key modes fall back to the previous held key on release,
// multikey spreads the newest keys over the oscillators, and the filter
// keyfollow reads the newest, highest or lowest key.
type keyTracker struct {
	keyDown      [128]bool
	lastVelocity [128]int
	order        [128]int8 // press order, oldest first
	held         int
}

func (k *keyTracker) NoteOn(note, velocity int) {
	if note < 0 || note > 127 {
		return
	}
	if k.keyDown[note] {
		k.remove(note)
	}
	k.keyDown[note] = true
	k.lastVelocity[note] = velocity
	k.order[k.held] = int8(note)
	k.held++
}

func (k *keyTracker) NoteOff(note int) {
	if note < 0 || note > 127 || !k.keyDown[note] {
		return
	}
	k.keyDown[note] = false
	k.remove(note)
}

func (k *keyTracker) remove(note int) {
	for i := 0; i < k.held; i++ {
		if int(k.order[i]) == note {
			copy(k.order[i:k.held], k.order[i+1:k.held])
			k.held--
			return
		}
	}
}

func (k *keyTracker) Clear() {
	*k = keyTracker{}
}

// Held returns the number of held keys.
func (k *keyTracker) Held() int { return k.held }

// IsDown reports whether note is held.
func (k *keyTracker) IsDown(note int) bool {
	return note >= 0 && note < 128 && k.keyDown[note]
}

// Velocity returns the last note-on velocity of note.
func (k *keyTracker) Velocity(note int) int {
	if note < 0 || note > 127 {
		return 0
	}
	return k.lastVelocity[note]
}

// Newest returns the n-th most recently pressed held key (0 is the newest).
func (k *keyTracker) Newest(n int) (int, bool) {
	if n < 0 || n >= k.held {
		return 0, false
	}
	return int(k.order[k.held-1-n]), true
}

func (k *keyTracker) Highest() (int, bool) {
	for n := 127; n >= 0; n-- {
		if k.keyDown[n] {
			return n, true
		}
	}
	return 0, false
}

func (k *keyTracker) Lowest() (int, bool) {
	for n := 0; n < 128; n++ {
		if k.keyDown[n] {
			return n, true
		}
	}
	return 0, false
}
