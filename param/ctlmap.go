package param

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/cwbudde/algo-synth/internal/textcfg"
)

// MaxParts is the number of independently playable parts.
const MaxParts = 16

// ControllerMap is the live assignment of MIDI controllers to parameters, the
// per-parameter lock flags and the MIDI channel of every part. It is shared by
// all patches of a studio and safe for concurrent use.
type ControllerMap struct {
	mu       sync.RWMutex
	cc       [NumParams]int
	locked   [NumParams]bool
	byCC     [128][]ID
	channels [MaxParts]int
}

// NewControllerMap returns a map holding the table defaults; part n listens
// on channel n.
func NewControllerMap() *ControllerMap {
	m := &ControllerMap{}
	m.reset()
	return m
}

func (m *ControllerMap) reset() {
	for i := range table {
		m.cc[i] = table[i].CC
		m.locked[i] = table[i].Locked
	}
	for p := range m.channels {
		m.channels[p] = p
	}
	m.reindex()
}

func (m *ControllerMap) reindex() {
	var idx [128][]ID
	for id, cc := range m.cc {
		if cc >= 0 && cc < 128 {
			idx[cc] = append(idx[cc], ID(id))
		}
	}
	m.byCC = idx
}

// CC returns the controller assigned to id, or -1.
func (m *ControllerMap) CC(id ID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cc[id]
}

// SetCC assigns controller cc to id; a negative cc removes the assignment.
func (m *ControllerMap) SetCC(id ID, cc int) {
	if cc > 127 {
		cc = 127
	}
	if cc < 0 {
		cc = -1
	}
	m.mu.Lock()
	m.cc[id] = cc
	m.reindex()
	m.mu.Unlock()
}

// Locked reports whether id only accepts explicit user edits.
func (m *ControllerMap) Locked(id ID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.locked[id]
}

// SetLocked sets the lock flag of id.
func (m *ControllerMap) SetLocked(id ID, locked bool) {
	m.mu.Lock()
	m.locked[id] = locked
	m.mu.Unlock()
}

// Params returns the parameters controlled by cc. The returned slice must not
// be modified.
func (m *ControllerMap) Params(cc int) []ID {
	if cc < 0 || cc > 127 {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byCC[cc]
}

// Channel returns the 0-based MIDI channel of part, or OmniChannel.
func (m *ControllerMap) Channel(part int) int {
	if part < 0 || part >= MaxParts {
		part = 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[part]
}

// SetChannel sets the channel of part. Channels outside [0, 15] other than
// OmniChannel collapse to 0.
func (m *ControllerMap) SetChannel(part, ch int) {
	if part < 0 || part >= MaxParts {
		part = 0
	}
	if ch != OmniChannel && (ch < 0 || ch > 15) {
		ch = 0
	}
	m.mu.Lock()
	m.channels[part] = ch
	m.mu.Unlock()
}

// PartsOn returns the parts listening on channel ch.
func (m *ControllerMap) PartsOn(ch int) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var parts []int
	for p, c := range m.channels {
		if c == ch || c == OmniChannel {
			parts = append(parts, p)
		}
	}
	return parts
}

// ReadMap replaces the map with the contents of a MIDI map file. Missing
// entries take their table defaults. Malformed lines are logged and skipped.
func (m *ControllerMap) ReadMap(r io.Reader, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	lines, err := textcfg.ReadLines(r)
	if err != nil {
		return fmt.Errorf("read midi map: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	for _, ln := range lines {
		if len(ln.Tokens) < 2 {
			log.Warn("midi map: malformed line", "line", ln.Num)
			continue
		}
		name := ln.Tokens[0]
		if rest, ok := strings.CutPrefix(name, "midi_channel_"); ok {
			part, err := strconv.Atoi(rest)
			if err != nil || part < 1 || part > MaxParts {
				log.Warn("midi map: bad part", "line", ln.Num, "part", rest)
				continue
			}
			ch := 0
			if ln.Tokens[1] == "omni" {
				ch = OmniChannel
			} else if c, err := strconv.Atoi(ln.Tokens[1]); err == nil && c >= 1 && c <= 16 {
				ch = c - 1
			} else {
				log.Warn("midi map: bad channel", "line", ln.Num, "channel", ln.Tokens[1])
			}
			m.channels[part-1] = ch
			continue
		}
		id, ok := byName[name]
		if !ok {
			log.Debug("midi map: unknown parameter", "line", ln.Num, "name", name)
			continue
		}
		cc, err := strconv.Atoi(ln.Tokens[1])
		if err != nil || cc > 127 {
			log.Warn("midi map: bad controller", "line", ln.Num, "value", ln.Tokens[1])
			continue
		}
		if cc < 0 {
			cc = -1
		}
		m.cc[id] = cc
		m.locked[id] = len(ln.Tokens) > 2 && ln.Tokens[2] == "locked"
	}
	m.reindex()
	return nil
}

// WriteMap writes every controller assignment and lock flag followed by the
// part channels.
func (m *ControllerMap) WriteMap(w io.Writer) error {
	bw := bufio.NewWriter(w)
	m.mu.RLock()
	for id := range table {
		if table[id].NoSave {
			continue
		}
		if m.cc[id] < 0 && !m.locked[id] {
			continue
		}
		fmt.Fprintf(bw, "%s = %d", table[id].Name, m.cc[id])
		if m.locked[id] {
			bw.WriteString(",locked")
		}
		bw.WriteString(";\n")
	}
	for p, ch := range m.channels {
		v := "omni"
		if ch != OmniChannel {
			v = strconv.Itoa(ch + 1)
		}
		fmt.Fprintf(bw, "midi_channel_%02d = %s;\n", p+1, v)
	}
	m.mu.RUnlock()
	return bw.Flush()
}

// LoadMapFile reads a MIDI map file.
func (m *ControllerMap) LoadMapFile(path string, log *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return m.ReadMap(f, log)
}

// SaveMapFile writes a MIDI map file.
func (m *ControllerMap) SaveMapFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.WriteMap(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
