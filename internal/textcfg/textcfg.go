// Package textcfg tokenizes the line-oriented `name = value;` files used for
// patches, banks, session banks and MIDI maps.
package textcfg

import (
	"bufio"
	"io"
	"strings"
)

const separators = "{}/=;,"

// Line is one tokenized, non-empty input line.
type Line struct {
	Num    int
	Tokens []string
}

// Tokenize splits a line on whitespace and the characters `{}/=;,`.
// Everything after an unquoted `#` is a comment. Double-quoted strings are
// returned as a single token without the quotes, separators included.
func Tokenize(line string) []string {
	var (
		tokens []string
		cur    strings.Builder
		quoted bool
		inTok  bool
	)
	flush := func() {
		if inTok {
			tokens = append(tokens, cur.String())
			cur.Reset()
			inTok = false
		}
	}
	for _, r := range line {
		if quoted {
			if r == '"' {
				quoted = false
				tokens = append(tokens, cur.String())
				cur.Reset()
				inTok = false
				continue
			}
			cur.WriteRune(r)
			continue
		}
		switch {
		case r == '#':
			flush()
			return tokens
		case r == '"':
			flush()
			quoted = true
			inTok = true
		case r == ' ' || r == '\t' || r == '\r' || r == '\n' || strings.ContainsRune(separators, r):
			flush()
		default:
			cur.WriteRune(r)
			inTok = true
		}
	}
	if quoted || inTok {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

// ReadLines tokenizes every line of r, skipping lines without tokens.
func ReadLines(r io.Reader) ([]Line, error) {
	var lines []Line
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	n := 0
	for sc.Scan() {
		n++
		toks := Tokenize(sc.Text())
		if len(toks) == 0 {
			continue
		}
		lines = append(lines, Line{Num: n, Tokens: toks})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// Quote returns s wrapped in double quotes when it contains a character the
// tokenizer would split on.
func Quote(s string) string {
	if s == "" || strings.ContainsAny(s, separators+" \t#\"") {
		return `"` + strings.ReplaceAll(s, `"`, `'`) + `"`
	}
	return s
}
