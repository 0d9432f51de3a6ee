package textcfg

import (
	"reflect"
	"strings"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"filter_cutoff = 100;", []string{"filter_cutoff", "100"}},
		{"  # only a comment", nil},
		{"osc1_rate = \"1/16\"; # tempo", []string{"osc1_rate", "1/16"}},
		{"1,0002 = mypatch;", []string{"1", "0002", "mypatch"}},
		{"general {", []string{"general"}},
		{"}", nil},
		{"amp_attack = 12, locked;", []string{"amp_attack", "12", "locked"}},
		{"name = \"unterminated", []string{"name", "unterminated"}},
	}
	for _, tt := range tests {
		got := Tokenize(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("Tokenize(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestReadLinesSkipsBlankAndCommentLines(t *testing.T) {
	in := "# header\n\nbpm = 56;\n\n   \n# trailing\nvolume = 100;\n"
	lines, err := ReadLines(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Num != 3 || lines[1].Num != 7 {
		t.Fatalf("unexpected line numbers: %d, %d", lines[0].Num, lines[1].Num)
	}
}

func TestQuoteRoundTripsThroughTokenize(t *testing.T) {
	for _, s := range []string{"1/16", "saw", "My Patch", "a=b"} {
		toks := Tokenize("x = " + Quote(s) + ";")
		if len(toks) != 2 || toks[1] != s {
			t.Fatalf("quote round trip of %q produced %#v", s, toks)
		}
	}
}
