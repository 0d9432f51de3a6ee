// Package control is the editing surface of the synthesizer: parameter
// edits, patch and session management and test notes, exposed to clients
// over MCP.
package control

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cwbudde/algo-synth/backend"
	"github.com/cwbudde/algo-synth/engine"
	"github.com/cwbudde/algo-synth/midi"
	"github.com/cwbudde/algo-synth/param"
	"github.com/cwbudde/algo-synth/patch"
	"github.com/cwbudde/algo-synth/preset"
	"github.com/cwbudde/algo-synth/studio"
)

// ParamValue describes one parameter of a patch.
type ParamValue struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Section   string `json:"section"`
	Value     string `json:"value"`
	CC        int    `json:"cc"`
	Locked    bool   `json:"locked,omitempty"`
	Sensitive bool   `json:"sensitive"`
}

// Status summarizes the engine and the patch selection.
type Status struct {
	State   string   `json:"state"`
	Rate    int      `json:"rate"`
	Period  int      `json:"period"`
	Session int      `json:"session"`
	Visible int      `json:"visible_part"`
	Active  []string `json:"active"`
}

// Controller applies edits to the studio and forwards them to the engine.
type Controller struct {
	studio *studio.Studio
	engine *engine.Engine
	log    *slog.Logger

	mu  sync.Mutex
	obs [studio.MaxParts]param.Observer
}

// New returns a controller for st played by e.
func New(st *studio.Studio, e *engine.Engine, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{studio: st, engine: e, log: log}
}

func checkPart(part int) (int, error) {
	if part < 1 || part > studio.MaxParts {
		return 0, fmt.Errorf("part must be in [1,%d], have %d", studio.MaxParts, part)
	}
	return part - 1, nil
}

func lookup(name string) (*param.Info, error) {
	id, ok := param.ByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", param.ErrUnknown, name)
	}
	return param.Lookup(id), nil
}

func describe(p *patch.Patch, info *param.Info) ParamValue {
	return ParamValue{
		Name:      info.Name,
		Label:     info.Label,
		Section:   info.Section,
		Value:     info.Format(p.Get(info.ID).CCVal),
		CC:        p.Get(info.ID).CCVal,
		Locked:    p.Params[info.ID].Locked(),
		Sensitive: p.Sensitive(info.ID),
	}
}

// Params lists the parameters of part's active patch, optionally limited to
// one section. part is 1-based.
func (c *Controller) Params(part int, section string) ([]ParamValue, error) {
	idx, err := checkPart(part)
	if err != nil {
		return nil, err
	}
	var out []ParamValue
	err = c.studio.ViewActive(idx, func(p *patch.Patch) error {
		for _, info := range param.All() {
			if section != "" && !strings.EqualFold(info.Section, section) {
				continue
			}
			out = append(out, describe(p, info))
		}
		return nil
	})
	return out, err
}

// Param returns one parameter of part's active patch.
func (c *Controller) Param(part int, name string) (ParamValue, error) {
	idx, err := checkPart(part)
	if err != nil {
		return ParamValue{}, err
	}
	info, err := lookup(name)
	if err != nil {
		return ParamValue{}, err
	}
	var out ParamValue
	err = c.studio.ViewActive(idx, func(p *patch.Patch) error {
		out = describe(p, info)
		return nil
	})
	return out, err
}

// SetParam sets a parameter from its serialized form: a string table entry
// or a controller value. Out-of-range values are clamped.
func (c *Controller) SetParam(part int, name, value string) (ParamValue, error) {
	idx, err := checkPart(part)
	if err != nil {
		return ParamValue{}, err
	}
	info, err := lookup(name)
	if err != nil {
		return ParamValue{}, err
	}
	if info.NoSave {
		return ParamValue{}, fmt.Errorf("%s is not editable", name)
	}
	cc, err := info.Parse(strings.TrimSpace(value))
	if err != nil {
		return ParamValue{}, fmt.Errorf("%s: %w", name, err)
	}
	if _, err := c.engine.SetParam(idx, info.ID, cc); err != nil {
		return ParamValue{}, err
	}
	return c.Param(part, name)
}

// Changed returns the parameters of part's active patch edited since the
// previous call.
func (c *Controller) Changed(part int) ([]ParamValue, error) {
	idx, err := checkPart(part)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ParamValue
	err = c.studio.ViewActive(idx, func(p *patch.Patch) error {
		for _, info := range param.All() {
			if c.obs[idx].Changed(&p.Params[info.ID]) {
				out = append(out, describe(p, info))
			}
		}
		return nil
	})
	return out, err
}

// refresh pushes part's active patch to the engine when (part, prog) is what
// it plays.
func (c *Controller) refresh(part, prog int, st *patch.State) error {
	if c.studio.ActiveRef(part) != studio.BankRef(studio.ClampProgram(prog)) {
		return nil
	}
	return c.engine.PushState(part, st)
}

// LoadPatch loads filename into program prog of part. Program 0 is the
// session patch.
func (c *Controller) LoadPatch(part, prog int, filename string) error {
	idx, err := checkPart(part)
	if err != nil {
		return err
	}
	st, err := c.studio.LoadPatch(idx, prog, filename)
	if rerr := c.refresh(idx, prog, st); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

// SavePatch saves program prog of part, to filename when given.
func (c *Controller) SavePatch(part, prog int, filename string) error {
	idx, err := checkPart(part)
	if err != nil {
		return err
	}
	return c.studio.SavePatch(idx, prog, filename)
}

// SelectProgram makes part play prog.
func (c *Controller) SelectProgram(part, prog int) error {
	idx, err := checkPart(part)
	if err != nil {
		return err
	}
	return c.engine.SelectProgram(idx, prog)
}

// SelectSession activates session n. n is 0-based; 0 is the autosave session.
func (c *Controller) SelectSession(n int) error {
	if n < 0 || n >= studio.SessionBankSize {
		return fmt.Errorf("session must be in [0,%d], have %d", studio.SessionBankSize-1, n)
	}
	return c.engine.SelectSession(n)
}

// ExportJSON returns part's active patch as a JSON preset.
func (c *Controller) ExportJSON(part int) (string, error) {
	idx, err := checkPart(part)
	if err != nil {
		return "", err
	}
	var b []byte
	err = c.studio.ViewActive(idx, func(p *patch.Patch) error {
		var err error
		b, err = preset.MarshalPatch(p)
		return err
	})
	return string(b), err
}

// ImportJSON replaces part's active patch with a JSON preset applied on top
// of the defaults.
func (c *Controller) ImportJSON(part int, data string) error {
	idx, err := checkPart(part)
	if err != nil {
		return err
	}
	var f preset.File
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		return fmt.Errorf("decode preset: %w", err)
	}
	st, err := c.studio.EditActive(idx, func(p *patch.Patch) error {
		backup := patch.New(p.Part, p.Locks())
		backup.CopyFrom(p)
		p.Reset()
		if err := preset.ApplyFile(p, &f); err != nil {
			p.CopyFrom(backup)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	return c.engine.PushState(idx, st)
}

// PlayNote sounds note on part for dur.
func (c *Controller) PlayNote(part, note, velocity int, dur time.Duration) error {
	idx, err := checkPart(part)
	if err != nil {
		return err
	}
	if note < 0 || note > 127 {
		return fmt.Errorf("note must be in [0,127], have %d", note)
	}
	velocity = max(1, min(velocity, 127))
	if err := c.engine.QueueMidiEvent(idx, midi.Event{Type: midi.NoteOn, Note: note, Velocity: velocity}); err != nil {
		return err
	}
	time.AfterFunc(dur, func() {
		if err := c.engine.QueueMidiEvent(idx, midi.Event{Type: midi.NoteOff, Note: note}); err != nil {
			c.log.Warn("note off dropped", "part", part, "note", note, "err", err)
		}
	})
	return nil
}

// SetAudio restarts the audio stream at a new sample rate and period.
func (c *Controller) SetAudio(rate, period int) error {
	return c.engine.Reconfigure(backend.Config{Rate: rate, Period: period})
}

// Status reports the engine state and what every part plays.
func (c *Controller) Status() Status {
	cfg := c.engine.Config()
	s := Status{
		State:   c.engine.State().String(),
		Rate:    cfg.Rate,
		Period:  cfg.Period,
		Session: c.studio.CurrentSession(),
		Visible: c.studio.VisiblePart() + 1,
	}
	for part := range studio.MaxParts {
		s.Active = append(s.Active, c.studio.ActiveRef(part).String())
	}
	return s
}
