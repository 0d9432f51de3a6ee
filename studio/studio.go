// Package studio owns every patch of the synthesizer: the per-part program
// bank, the session bank and the selection of which patch each part plays.
package studio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cwbudde/algo-synth/param"
	"github.com/cwbudde/algo-synth/patch"
)

// MaxParts is the number of parts.
const MaxParts = param.MaxParts

// Dirs locates user and system data.
type Dirs struct {
	User   string
	System string
}

// PatchDir is the user patch directory.
func (d Dirs) PatchDir() string { return filepath.Join(d.User, "patches") }

// SessionDir is the user session directory.
func (d Dirs) SessionDir() string { return filepath.Join(d.User, "sessions") }

// DumpDir holds session 0, the autosave session.
func (d Dirs) DumpDir() string { return filepath.Join(d.User, "sessions", "dump") }

// UserDefault is the user's default patch file.
func (d Dirs) UserDefault() string { return filepath.Join(d.User, "default"+patch.Ext) }

// BankFile is the user's patch bank file.
func (d Dirs) BankFile() string { return filepath.Join(d.User, "patchbank") }

// SessionBankFile is the user's session bank file.
func (d Dirs) SessionBankFile() string { return filepath.Join(d.User, "sessionbank") }

// MidiMapFile is the user's MIDI controller map.
func (d Dirs) MidiMapFile() string { return filepath.Join(d.User, "midimap") }

// Create makes the user directories.
func (d Dirs) Create() error {
	for _, dir := range []string{d.User, d.PatchDir(), d.DumpDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Studio is the root of the patch model. All methods are safe for concurrent
// use; returned patches must only be mutated through Studio.
type Studio struct {
	mu sync.Mutex

	dirs  Dirs
	locks *param.ControllerMap
	log   *slog.Logger

	bank     Bank
	sessions [SessionBankSize]*Session
	current  int
	active   [MaxParts]ProgramRef
	visible  int
}

// Options configures a Studio.
type Options struct {
	Dirs  Dirs
	Locks *param.ControllerMap
	Log   *slog.Logger
}

// New returns a studio with an empty bank and a default session 0.
func New(opts Options) *Studio {
	if opts.Locks == nil {
		opts.Locks = param.NewControllerMap()
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	s := &Studio{dirs: opts.Dirs, locks: opts.Locks, log: opts.Log}
	s.sessions[0] = s.newSession(0, opts.Dirs.DumpDir())
	return s
}

// Dirs returns the data directories.
func (s *Studio) Dirs() Dirs { return s.dirs }

// Locks returns the controller map shared by all patches.
func (s *Studio) Locks() *param.ControllerMap { return s.locks }

// readOptions supplies a copy of part's live patch, since the patch being
// loaded may be the live one and is reset before parsing.
func (s *Studio) readOptions(part int) patch.ReadOptions {
	opts := patch.ReadOptions{Log: s.log}
	if live := s.activeLocked(part); live != nil {
		cp := patch.New(part, s.locks)
		cp.CopyFrom(live)
		opts.Live = cp
	}
	return opts
}

func (s *Studio) newSession(n int, dir string) *Session {
	sess := &Session{Directory: dir}
	if dir != "" {
		sess.Name = filepath.Base(dir)
	}
	for part := range sess.Parts {
		p := patch.New(part, s.locks)
		p.Session = n
		p.Name = patch.UntitledName(0)
		sess.Parts[part] = p
	}
	return sess
}

func (s *Studio) session(n int) *Session {
	n = ClampSession(n)
	if s.sessions[n] == nil {
		s.sessions[n] = s.newSession(n, "")
	}
	return s.sessions[n]
}

// CurrentSession returns the index of the active session.
func (s *Studio) CurrentSession() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Session returns session n, creating an empty one if needed.
func (s *Studio) Session(n int) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session(n)
}

func (s *Studio) resolve(part int, ref ProgramRef) *patch.Patch {
	part = ClampPart(part)
	if ref.IsSession() {
		return s.session(s.current).Parts[part]
	}
	if p := s.bank.Get(part, ref.Program()); p != nil {
		return p
	}
	p := patch.New(part, s.locks)
	p.ProgNum = ref.Program()
	patch.LoadWithFallback(p, "", s.dirs.UserDefault(), patch.ReadOptions{Log: s.log, Live: s.activeLocked(part)})
	s.bank.Put(part, ref.Program(), p)
	return p
}

func (s *Studio) activeLocked(part int) *patch.Patch {
	ref := s.active[part]
	if ref.IsSession() {
		if sess := s.sessions[s.current]; sess != nil {
			return sess.Parts[part]
		}
		return nil
	}
	return s.bank.Get(part, ref.Program())
}

// GetPatch returns the patch at (part, prog). Program 0 is the active
// session's patch for the part; empty bank slots are filled with a default.
func (s *Studio) GetPatch(part, prog int) *patch.Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(part, BankRef(ClampProgram(prog)))
}

// ActiveRef returns what part currently plays.
func (s *Studio) ActiveRef(part int) ProgramRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[ClampPart(part)]
}

// GetActivePatch returns the patch part currently plays.
func (s *Studio) GetActivePatch(part int) *patch.Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	part = ClampPart(part)
	return s.resolve(part, s.active[part])
}

// SetVisiblePart selects the part shown by control surfaces.
func (s *Studio) SetVisiblePart(part int) {
	s.mu.Lock()
	s.visible = ClampPart(part)
	s.mu.Unlock()
}

// VisiblePart returns the part shown by control surfaces.
func (s *Studio) VisiblePart() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// GetVisiblePatch returns the active patch of the visible part.
func (s *Studio) GetVisiblePatch() *patch.Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(s.visible, s.active[s.visible])
}

// SetActivePatch makes part play ref and records the program in the active
// session. It returns a snapshot of the new patch's State for the engine.
func (s *Studio) SetActivePatch(part int, ref ProgramRef) *patch.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	part = ClampPart(part)
	p := s.resolve(part, ref)
	s.active[part] = ref
	s.session(s.current).ProgNum[part] = ref.Program()
	return p.Snapshot()
}

// SelectProgram is SetActivePatch by program number. Out-of-range program
// numbers select the session patch.
func (s *Studio) SelectProgram(part, prog int) *patch.State {
	return s.SetActivePatch(part, BankRef(ClampProgram(prog)))
}

// SelectSession makes session n active, loading it from its directory on
// first use, and restores each part's program. It returns the State of every
// part.
func (s *Studio) SelectSession(n int) ([MaxParts]*patch.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n = ClampSession(n)
	sess := s.session(n)
	var err error
	if !sess.loaded && sess.Directory != "" {
		err = s.loadSession(n, sess.Directory)
	}
	s.current = n
	var states [MaxParts]*patch.State
	for part := range s.active {
		s.active[part] = BankRef(sess.ProgNum[part])
		states[part] = s.resolve(part, s.active[part]).Snapshot()
	}
	return states, err
}

// SetParam writes one parameter of part's active patch. It returns the
// stored controller value; locked parameters reject MIDI and patch sources.
func (s *Studio) SetParam(part int, id param.ID, cc int, src param.Source) (int, bool, error) {
	if id < 0 || int(id) >= param.NumParams {
		return 0, false, param.ErrUnknown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	part = ClampPart(part)
	p := s.resolve(part, s.active[part])
	changed, err := p.Set(id, cc, src)
	if err != nil {
		return p.Get(id).CCVal, false, err
	}
	return p.Get(id).CCVal, changed, nil
}

// EditActive runs fn on part's active patch under the studio lock and
// returns a snapshot of the resulting State, even when fn fails part way.
func (s *Studio) EditActive(part int, fn func(p *patch.Patch) error) (*patch.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	part = ClampPart(part)
	p := s.resolve(part, s.active[part])
	err := fn(p)
	return p.Snapshot(), err
}

// ViewActive runs fn on part's active patch under the studio lock. fn must
// not modify the patch.
func (s *Studio) ViewActive(part int, fn func(p *patch.Patch) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	part = ClampPart(part)
	return fn(s.resolve(part, s.active[part]))
}

// ApplyController routes a MIDI controller change to every part listening on
// channel and calls emit for each parameter whose value changed. Locked
// parameters are skipped.
func (s *Studio) ApplyController(channel, cc, value int, emit func(part int, id param.ID, cc int)) {
	ids := s.locks.Params(cc)
	if len(ids) == 0 {
		return
	}
	parts := s.locks.PartsOn(channel)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, part := range parts {
		p := s.resolve(part, s.active[part])
		for _, id := range ids {
			changed, err := p.Set(id, value, param.SourceMIDI)
			if err != nil {
				if !errors.Is(err, param.ErrLocked) {
					s.log.Warn("controller rejected", "part", part, "param", param.Lookup(id).Name, "err", err)
				}
				continue
			}
			if changed && emit != nil {
				emit(part, id, p.Get(id).CCVal)
			}
		}
	}
}

// CheckSession compares each part's active reference with the program the
// active session records and logs every mismatch. It returns the number of
// mismatching parts.
func (s *Studio) CheckSession() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session(s.current)
	bad := 0
	for part := range s.active {
		if want := BankRef(sess.ProgNum[part]); want != s.active[part] {
			s.log.Warn("session out of sync", "session", s.current, "part", part+1,
				"prog_num", sess.ProgNum[part], "active", s.active[part].String())
			bad++
		}
	}
	return bad
}

// LoadPatch loads filename into bank slot (part, prog), or into the session
// patch for prog 0. Missing files fall back to the defaults.
func (s *Studio) LoadPatch(part, prog int, filename string) (*patch.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	part, prog = ClampPart(part), ClampProgram(prog)
	p := s.resolve(part, BankRef(prog))
	p.ProgNum = prog
	err := patch.LoadWithFallback(p, s.resolvePath(filename), s.dirs.UserDefault(), s.readOptions(part))
	return p.Snapshot(), err
}

// SavePatch saves the patch at (part, prog). An empty filename reuses the
// patch's own file, or its name in the user patch directory.
func (s *Studio) SavePatch(part, prog int, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.resolve(ClampPart(part), BankRef(ClampProgram(prog)))
	switch {
	case filename != "":
		filename = s.userPath(filename)
	case p.Filename != "":
		filename = p.Filename
	default:
		filename = s.userPath(p.Name)
	}
	if err := patch.WriteFile(filename, p); err != nil {
		return err
	}
	p.Name = patch.NameFromFile(filename)
	return nil
}

func withExt(name string) string {
	if filepath.Ext(name) == patch.Ext {
		return name
	}
	return name + patch.Ext
}

// userPath places a relative patch name in the user patch directory.
func (s *Studio) userPath(name string) string {
	name = withExt(name)
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.dirs.PatchDir(), name)
}

// resolvePath finds a patch file: absolute paths are used as given, relative
// ones are looked up in the user and then the system patch directory.
func (s *Studio) resolvePath(name string) string {
	if name == "" {
		return ""
	}
	name = withExt(name)
	if filepath.IsAbs(name) {
		return name
	}
	candidates := []string{filepath.Join(s.dirs.PatchDir(), name)}
	if s.dirs.System != "" {
		candidates = append(candidates, filepath.Join(s.dirs.System, "patches", name))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return candidates[0]
}

// relPath is the inverse of resolvePath for files below the user patch
// directory.
func (s *Studio) relPath(path string) string {
	if rel, err := filepath.Rel(s.dirs.PatchDir(), path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
