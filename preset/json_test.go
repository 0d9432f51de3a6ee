package preset

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/algo-synth/param"
	"github.com/cwbudde/algo-synth/patch"
)

func TestLoadJSONAppliesParamsAndBlocks(t *testing.T) {
	dir := t.TempDir()
	presetPath := filepath.Join(dir, "pad.json")
	content := `{
  "params": {
    "volume": 90,
    "keymode": "mono_retrig",
    "delay_time": "1/8d"
  },
  "osc": {
    "2": {"modulation": "mix", "wave": "square", "transpose": 76}
  },
  "lfo": {
    "1": {"rate": "1/16"}
  }
}`
	if err := os.WriteFile(presetPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write preset: %v", err)
	}

	p := patch.New(0, nil)
	if err := LoadJSON(presetPath, p); err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if p.Name != "pad" {
		t.Fatalf("name mismatch: %q", p.Name)
	}
	if p.Get(param.Volume).CCVal != 90 || p.Get(param.Keymode).CCVal != param.KeymodeMonoRetrig {
		t.Fatalf("global params mismatch: volume=%d keymode=%d", p.Get(param.Volume).CCVal, p.Get(param.Keymode).CCVal)
	}
	if p.State.Osc[1].Wave != param.WaveSquare || p.State.Osc[1].Transpose != 12 {
		t.Fatalf("osc2 mismatch: %+v", p.State.Osc[1])
	}
	if p.Get(param.LFO(0, param.LFORate)).CCVal != param.RateIndex("1/16") {
		t.Fatalf("lfo1 rate mismatch")
	}
}

func TestLoadJSONRejectsInvalidBlockKey(t *testing.T) {
	dir := t.TempDir()
	presetPath := filepath.Join(dir, "preset.json")
	content := `{"osc": {"5": {"wave": "saw"}}}`
	if err := os.WriteFile(presetPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write preset: %v", err)
	}
	if err := LoadJSON(presetPath, patch.New(0, nil)); err == nil {
		t.Fatalf("expected error for invalid osc key")
	}
}

func TestApplyFileRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"out of range", `{"params": {"volume": 128}}`},
		{"unknown wave", `{"osc": {"1": {"wave": "organ"}}}`},
		{"bookkeeping", `{"params": {"midi_channel": "3"}}`},
		{"wrong type", `{"params": {"volume": [1]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f File
			if err := json.Unmarshal([]byte(tt.json), &f); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if err := ApplyFile(patch.New(0, nil), &f); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	var f File
	json.Unmarshal([]byte(`{"params": {"no_such_param": 1}}`), &f)
	if err := ApplyFile(patch.New(0, nil), &f); !errors.Is(err, param.ErrUnknown) {
		t.Fatalf("err = %v, want ErrUnknown", err)
	}
}

func TestSaveJSONRoundTrip(t *testing.T) {
	src := patch.New(0, nil)
	src.Name = "bright"
	src.Set(param.FilterCutoff, 40, param.SourceUser)
	src.Set(param.Osc(3, param.OscWave), param.WaveStair, param.SourceUser)
	src.Set(param.LFO(2, param.LFOPolarity), param.PolarityUnipolar, param.SourceUser)

	path := filepath.Join(t.TempDir(), "bright.json")
	if err := SaveJSON(path, src); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	dst := patch.New(0, nil)
	if err := LoadJSON(path, dst); err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if dst.Name != "bright" {
		t.Fatalf("name = %q", dst.Name)
	}
	if *dst.State != *src.State {
		t.Fatal("state differs after JSON round trip")
	}
}
