package studio

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/cwbudde/algo-synth/internal/textcfg"
	"github.com/cwbudde/algo-synth/patch"
)

// Bank is the [part][program] patch grid. Slots are allocated on first use.
// Slot 0 is never stored: it belongs to the active session.
type Bank struct {
	slots [MaxParts][]*patch.Patch
}

// Get returns the patch in (part, prog), or nil when the slot is empty or
// prog is the session slot.
func (b *Bank) Get(part, prog int) *patch.Patch {
	if prog <= 0 || prog >= BankSize || b.slots[part] == nil {
		return nil
	}
	return b.slots[part][prog]
}

// Put stores p in (part, prog). Puts to the session slot are ignored.
func (b *Bank) Put(part, prog int, p *patch.Patch) {
	if prog <= 0 || prog >= BankSize {
		return
	}
	if b.slots[part] == nil {
		b.slots[part] = make([]*patch.Patch, BankSize)
	}
	p.Part, p.ProgNum = part, prog
	b.slots[part][prog] = p
}

// Loaded returns the number of populated slots of part.
func (b *Bank) Loaded(part int) int {
	n := 0
	for _, p := range b.slots[part] {
		if p != nil {
			n++
		}
	}
	return n
}

// LoadBank reads a bank file of `part,program = filename;` lines (1-based).
// Lines naming program 1 or an out-of-range program address the session
// slot and are skipped. A missing patch file leaves a default patch in its
// slot. The bank load never aborts on a single bad line.
func (s *Studio) LoadBank(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open bank: %w", err)
	}
	defer f.Close()
	lines, err := textcfg.ReadLines(f)
	if err != nil {
		return fmt.Errorf("read bank: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ln := range lines {
		if len(ln.Tokens) < 3 {
			s.log.Warn("bank: malformed line", "file", path, "line", ln.Num)
			continue
		}
		part, err1 := strconv.Atoi(ln.Tokens[0])
		prog, err2 := strconv.Atoi(ln.Tokens[1])
		if err1 != nil || err2 != nil {
			s.log.Warn("bank: bad index", "file", path, "line", ln.Num)
			continue
		}
		part = ClampPart(part - 1)
		prog = ClampProgram(prog - 1)
		if prog == 0 {
			continue
		}
		p := patch.New(part, s.locks)
		p.ProgNum = prog
		if err := patch.LoadWithFallback(p, s.resolvePath(ln.Tokens[2]), s.dirs.UserDefault(), s.readOptions(part)); err != nil {
			s.log.Warn("bank: patch not loaded", "part", part+1, "program", prog+1, "err", err)
		}
		s.bank.Put(part, prog, p)
	}
	return nil
}

// SaveBank writes every populated bank slot. The session slot of each part
// is written as a reference to the autosave session's patch file.
func (s *Studio) SaveBank(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create bank: %w", err)
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "# part,program = patch file")
	for part := 0; part < MaxParts; part++ {
		fmt.Fprintf(w, "%d,%04d = %s;\n", part+1, 1, textcfg.Quote(sessionPartFile(s.dirs.DumpDir(), part)))
		for prog, p := range s.bank.slots[part] {
			if p == nil {
				continue
			}
			name := p.Filename
			if name == "" {
				name = withExt(p.Name)
			} else {
				name = s.relPath(name)
			}
			fmt.Fprintf(w, "%d,%04d = %s;\n", part+1, prog+1, textcfg.Quote(name))
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
