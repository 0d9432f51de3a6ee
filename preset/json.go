package preset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-synth/param"
	"github.com/cwbudde/algo-synth/patch"
)

// File is the JSON interchange schema for patches. Values are either the
// string form used in patch files or a controller-domain number.
type File struct {
	Name   string                                `json:"name,omitempty"`
	Params map[string]json.RawMessage            `json:"params,omitempty"`
	Osc    map[string]map[string]json.RawMessage `json:"osc,omitempty"`
	LFO    map[string]map[string]json.RawMessage `json:"lfo,omitempty"`
}

// LoadJSON loads a JSON preset and applies it on top of a default patch.
func LoadJSON(path string, dst *patch.Patch) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	dst.Reset()
	if err := ApplyFile(dst, &f); err != nil {
		return err
	}
	if f.Name == "" {
		dst.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return nil
}

// ApplyFile applies a parsed preset onto an existing patch. Unlike patch
// files, presets are validated strictly: unknown names and out-of-range
// values are errors. Locked parameters are skipped.
func ApplyFile(dst *patch.Patch, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination patch")
	}
	if f == nil {
		return nil
	}
	if f.Name != "" {
		dst.Name = strings.TrimSpace(f.Name)
	}

	if err := applyMap(dst, "", f.Params); err != nil {
		return err
	}
	if err := applyBlocks(dst, "osc", param.NumOscs, f.Osc); err != nil {
		return err
	}
	if err := applyBlocks(dst, "lfo", param.NumLFOs, f.LFO); err != nil {
		return err
	}
	dst.Modified = true
	return nil
}

func applyBlocks(dst *patch.Patch, prefix string, count int, blocks map[string]map[string]json.RawMessage) error {
	keys := make([]string, 0, len(blocks))
	for k := range blocks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n, err := strconv.Atoi(k)
		if err != nil || n < 1 || n > count {
			return fmt.Errorf("invalid %s key %q (expected 1..%d)", prefix, k, count)
		}
		if err := applyMap(dst, prefix+k+"_", blocks[k]); err != nil {
			return err
		}
	}
	return nil
}

func applyMap(dst *patch.Patch, prefix string, values map[string]json.RawMessage) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := prefix + k
		id, ok := param.ByName(name)
		if !ok {
			return fmt.Errorf("%w: %s", param.ErrUnknown, name)
		}
		info := param.Lookup(id)
		if info.NoSave {
			return fmt.Errorf("%s cannot be set from a preset", name)
		}
		cc, err := decodeValue(info, values[k])
		if err != nil {
			return err
		}
		if cc < 0 || cc > info.CCLimit {
			return fmt.Errorf("%s must be in [0,%d]", name, info.CCLimit)
		}
		if dst.Params[id].Locked() {
			continue
		}
		if _, err := dst.Set(id, cc, param.SourcePatch); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func decodeValue(info *param.Info, raw json.RawMessage) (int, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return info.Parse(s)
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("%s: value must be a string or an integer", info.Name)
	}
	return n, nil
}

// FromPatch builds the preset form of p. Block parameters are grouped under
// osc and lfo.
func FromPatch(p *patch.Patch) (*File, error) {
	f := &File{
		Name:   p.Name,
		Params: make(map[string]json.RawMessage),
		Osc:    make(map[string]map[string]json.RawMessage),
		LFO:    make(map[string]map[string]json.RawMessage),
	}
	for i := range p.Params {
		prm := &p.Params[i]
		if prm.Info.NoSave {
			continue
		}
		var (
			raw []byte
			err error
		)
		if len(prm.Info.Strings) > 0 {
			raw, err = json.Marshal(prm.String())
		} else {
			raw, err = json.Marshal(prm.Value.CCVal)
		}
		if err != nil {
			return nil, err
		}

		id := prm.Info.ID
		switch {
		case id >= param.LFO1Base:
			n := int(id-param.LFO1Base) / int(param.LFOParamCount)
			blockPut(f.LFO, n, "lfo", prm.Info.Name, raw)
		case id >= param.Osc1Base:
			n := int(id-param.Osc1Base) / int(param.OscParamCount)
			blockPut(f.Osc, n, "osc", prm.Info.Name, raw)
		default:
			f.Params[prm.Info.Name] = raw
		}
	}
	return f, nil
}

func blockPut(blocks map[string]map[string]json.RawMessage, n int, prefix, name string, raw []byte) {
	key := strconv.Itoa(n + 1)
	m := blocks[key]
	if m == nil {
		m = make(map[string]json.RawMessage)
		blocks[key] = m
	}
	m[strings.TrimPrefix(name, prefix+key+"_")] = raw
}

// MarshalPatch returns the indented JSON preset of p.
func MarshalPatch(p *patch.Patch) ([]byte, error) {
	f, err := FromPatch(p)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(f, "", "  ")
}

// SaveJSON writes p as a JSON preset.
func SaveJSON(path string, p *patch.Patch) error {
	b, err := MarshalPatch(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
