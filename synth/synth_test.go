package synth

import (
	"math"
	"testing"
)

func TestKeyTrackerOrder(t *testing.T) {
	var k keyTracker
	k.NoteOn(60, 10)
	k.NoteOn(72, 20)
	k.NoteOn(48, 30)
	k.NoteOn(60, 40) // re-press moves the key to newest

	if n, _ := k.Newest(0); n != 60 {
		t.Fatalf("newest = %d, want 60", n)
	}
	if n, _ := k.Newest(2); n != 72 {
		t.Fatalf("third newest = %d, want 72", n)
	}
	if _, ok := k.Newest(3); ok {
		t.Fatal("Newest beyond held keys")
	}
	if n, _ := k.Highest(); n != 72 {
		t.Fatalf("highest = %d", n)
	}
	if n, _ := k.Lowest(); n != 48 {
		t.Fatalf("lowest = %d", n)
	}
	if k.Velocity(60) != 40 {
		t.Fatalf("velocity = %d", k.Velocity(60))
	}

	k.NoteOff(60)
	k.NoteOff(60)
	if k.Held() != 2 || k.IsDown(60) {
		t.Fatalf("held = %d after release", k.Held())
	}
	if n, _ := k.Newest(0); n != 48 {
		t.Fatalf("newest after release = %d, want 48", n)
	}
	k.NoteOn(200, 1)
	if k.Held() != 2 {
		t.Fatal("out-of-range key tracked")
	}
}

func TestEnvelopeStages(t *testing.T) {
	tab := NewTables(1000)
	et := envTimes{attack: 60, decay: 60, release: 60, sustain: 0.5}
	var e envelope
	e.trigger()

	steps := 0
	for e.stage == envAttack {
		e.next(tab, &et)
		steps++
	}
	want := int(math.Ceil(1 / float64(tab.EnvLinear[60])))
	if steps < want-1 || steps > want+1 {
		t.Fatalf("attack took %d steps, want about %d", steps, want)
	}
	for i := 0; i < 100000 && e.stage == envDecay; i++ {
		e.next(tab, &et)
	}
	if e.stage != envSustain || e.level != 0.5 {
		t.Fatalf("stage %d level %v, want sustain at 0.5", e.stage, e.level)
	}
	e.release()
	for i := 0; i < 100000 && e.active(); i++ {
		e.next(tab, &et)
	}
	if e.active() || e.level != 0 {
		t.Fatal("release did not finish")
	}
}

func TestEnvelopeKillIsFast(t *testing.T) {
	var e envelope
	e.trigger()
	et := envTimes{attack: 0, decay: 127, release: 127, sustain: 1}
	for i := 0; i < 100; i++ {
		e.next(testTables, &et)
	}
	e.kill()
	for i := 0; i < int(killTime*testRate*2); i++ {
		e.next(testTables, &et)
	}
	if e.active() {
		t.Fatalf("killed envelope still at %v", e.level)
	}
}

func TestTablesWaves(t *testing.T) {
	for w := range testTables.Wave {
		tab := &testTables.Wave[w]
		if tab[0] != tab[waveTableSize] {
			t.Fatalf("wave %d guard sample differs", w)
		}
		for i, s := range tab {
			if s < -1.0001 || s > 1.0001 {
				t.Fatalf("wave %d sample %d out of range: %v", w, i, s)
			}
		}
	}
	if got := testTables.lookup(0, 0.25); math.Abs(float64(got)-1) > 1e-4 {
		t.Fatalf("sine peak = %v", got)
	}
}

func TestCutoffTableMonotonic(t *testing.T) {
	for cc := 1; cc <= 128; cc++ {
		if testTables.Cutoff[cc] < testTables.Cutoff[cc-1] {
			t.Fatalf("cutoff coefficient decreases at %d", cc)
		}
	}
	if hz := testTables.CutoffHz[128]; hz > 0.45*testRate+1 {
		t.Fatalf("cutoff above limit: %v", hz)
	}
	if testTables.CutoffCoef(500) != testTables.Cutoff[128] || testTables.CutoffCoef(-3) != testTables.Cutoff[0] {
		t.Fatal("CutoffCoef does not clamp")
	}
}

func TestRoomConvolverMatchesDirect(t *testing.T) {
	c := NewRoomConvolver(testRate, 64)
	leftIR := []float32{1, 0.3, -0.2, 0.1, 0.05}
	rightIR := []float32{0.8, -0.1, 0.05}
	if err := c.SetIR(leftIR, rightIR); err != nil {
		t.Fatal(err)
	}
	in := make([]float32, 512)
	for i := range in {
		in[i] = float32(math.Sin(float64(i)*0.07)) * 0.8
	}
	l := append([]float32(nil), in...)
	r := append([]float32(nil), in...)
	c.Process(l, r)

	check := func(name string, got, ir []float32) {
		for i := range got {
			var want float32
			for k, h := range ir {
				if i-k >= 0 {
					want += h * in[i-k]
				}
			}
			if math.Abs(float64(got[i]-want)) > 1e-4 {
				t.Fatalf("%s sample %d = %v, want %v", name, i, got[i], want)
			}
		}
	}
	check("left", l, leftIR)
	check("right", r, rightIR)
}

func TestRoomConvolverMix(t *testing.T) {
	c := NewRoomConvolver(testRate, 32)
	if err := c.SetIR([]float32{0}, []float32{0}); err != nil {
		t.Fatal(err)
	}
	c.SetMix(0.25)
	l := make([]float32, 32)
	r := make([]float32, 32)
	for i := range l {
		l[i], r[i] = 1, 1
	}
	c.Process(l, r)
	if math.Abs(float64(l[5]-0.75)) > 1e-5 {
		t.Fatalf("mixed sample = %v, want 0.75", l[5])
	}
}
