package param

import "strconv"

// The rate table maps a tempo-relative note value to its length in beats
// (quarter notes). Each division comes as triplet, plain and dotted.
var RateNames, rateBeats = buildRates()

func buildRates() (names []string, beats []float64) {
	for _, div := range []int{128, 64, 32, 16, 8, 4, 2, 1} {
		base := 4.0 / float64(div)
		n := "1/" + strconv.Itoa(div)
		names = append(names, n+"t", n, n+"d")
		beats = append(beats, base*2/3, base, base*1.5)
	}
	for _, bars := range []int{2, 3, 4, 6, 8, 12, 16, 32, 64} {
		names = append(names, strconv.Itoa(bars))
		beats = append(beats, 4*float64(bars))
	}
	return names, beats
}

// RateIndex returns the table index of name, or 0 when it is unknown.
func RateIndex(name string) int {
	for i, n := range RateNames {
		if n == name {
			return i
		}
	}
	return 0
}

// RateBeats returns the length in beats of rate index i, clamped to the table.
func RateBeats(i int) float64 {
	if i < 0 {
		i = 0
	}
	if i >= len(rateBeats) {
		i = len(rateBeats) - 1
	}
	return rateBeats[i]
}

// RateHz converts a rate index to a frequency at the given tempo.
func RateHz(i int, bpm float64) float64 {
	if bpm <= 0 {
		return 0
	}
	return bpm / 60 / RateBeats(i)
}
