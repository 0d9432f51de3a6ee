package studio

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cwbudde/algo-synth/internal/textcfg"
	"github.com/cwbudde/algo-synth/patch"
)

const programsFile = "programs"

// Session bundles one patch per part plus the program each part plays.
type Session struct {
	Name      string
	Directory string
	Parts     [MaxParts]*patch.Patch
	ProgNum   [MaxParts]int
	Modified  bool

	loaded bool
}

func sessionPartFile(dir string, part int) string {
	return filepath.Join(dir, fmt.Sprintf("part%02d%s", part+1, patch.Ext))
}

// LoadSession loads directory dir into session n. Parts whose file is missing
// fall back to the default patch; the session is still loaded.
func (s *Studio) LoadSession(n int, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadSession(ClampSession(n), dir)
}

func (s *Studio) loadSession(n int, dir string) error {
	sess := s.session(n)
	sess.Directory = dir
	sess.Name = filepath.Base(dir)

	var errs []error
	for part, p := range sess.Parts {
		p.Session, p.ProgNum = n, 0
		opts := s.readOptions(part)
		if err := patch.LoadWithFallback(p, sessionPartFile(dir, part), s.dirs.UserDefault(), opts); err != nil {
			errs = append(errs, fmt.Errorf("part %d: %w", part+1, err))
		}
	}

	sess.ProgNum = [MaxParts]int{}
	if f, err := os.Open(filepath.Join(dir, programsFile)); err == nil {
		lines, err := textcfg.ReadLines(f)
		f.Close()
		if err != nil {
			errs = append(errs, err)
		}
		for _, ln := range lines {
			if len(ln.Tokens) < 2 {
				continue
			}
			part, err1 := strconv.Atoi(ln.Tokens[0])
			prog, err2 := strconv.Atoi(ln.Tokens[1])
			if err1 != nil || err2 != nil {
				s.log.Warn("session: bad program line", "dir", dir, "line", ln.Num)
				continue
			}
			sess.ProgNum[ClampPart(part-1)] = ClampProgram(prog - 1)
		}
	}
	sess.loaded = true
	sess.Modified = false
	if len(errs) > 0 {
		return fmt.Errorf("load session %s: %w", dir, errors.Join(errs...))
	}
	return nil
}

// SaveSession writes session n to dir: one patch file per part and the
// program selection of every part.
func (s *Studio) SaveSession(n int, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n = ClampSession(n)
	sess := s.session(n)
	if dir == "" {
		dir = sess.Directory
	}
	if dir == "" {
		return fmt.Errorf("session %d has no directory", n+1)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	for part, p := range sess.Parts {
		if err := patch.WriteFile(sessionPartFile(dir, part), p); err != nil {
			return err
		}
	}

	f, err := os.Create(filepath.Join(dir, programsFile))
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for part, prog := range sess.ProgNum {
		fmt.Fprintf(w, "%d = %d;\n", part+1, prog+1)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	sess.Directory = dir
	sess.Name = filepath.Base(dir)
	sess.Modified = false
	sess.loaded = true
	return nil
}

// LoadSessionBank reads `session_num = directory;` lines (1-based). Session 1
// is always the autosave directory; lines naming it are ignored. Sessions are
// loaded from disk when first selected.
func (s *Studio) LoadSessionBank(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open session bank: %w", err)
	}
	defer f.Close()
	lines, err := textcfg.ReadLines(f)
	if err != nil {
		return fmt.Errorf("read session bank: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ln := range lines {
		if len(ln.Tokens) < 2 {
			continue
		}
		num, err := strconv.Atoi(ln.Tokens[0])
		if err != nil {
			s.log.Warn("session bank: bad index", "file", path, "line", ln.Num)
			continue
		}
		n := ClampSession(num - 1)
		if n == 0 {
			continue
		}
		dir := ln.Tokens[1]
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(s.dirs.SessionDir(), dir)
		}
		sess := s.session(n)
		sess.Directory = dir
		sess.Name = filepath.Base(dir)
		sess.loaded = false
	}
	return nil
}

// SaveSessionBank writes the directory of every named session.
func (s *Studio) SaveSessionBank(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create session bank: %w", err)
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "# session = directory")
	for n, sess := range s.sessions {
		if sess == nil || sess.Directory == "" {
			continue
		}
		dir := sess.Directory
		if rel, err := filepath.Rel(s.dirs.SessionDir(), dir); err == nil && filepath.IsLocal(rel) {
			dir = rel
		}
		fmt.Fprintf(w, "%d = %s;\n", n+1, textcfg.Quote(dir))
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Autosave dumps the active parts into session 0 and persists the bank and
// session bank files.
func (s *Studio) Autosave() error {
	s.mu.Lock()
	dump := s.session(0)
	for part := range dump.Parts {
		if active := s.activeLocked(part); active != nil && active != dump.Parts[part] {
			dump.Parts[part].CopyFrom(active)
		}
		dump.ProgNum[part] = s.active[part].Program()
	}
	s.mu.Unlock()

	errs := []error{
		s.SaveSession(0, s.dirs.DumpDir()),
		s.SaveBank(s.dirs.BankFile()),
		s.SaveSessionBank(s.dirs.SessionBankFile()),
	}
	return errors.Join(errs...)
}
