// Package config holds the persistent settings of the synthesizer.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/cwbudde/algo-synth/engine"
)

// FileName is the settings file inside the user directory.
const FileName = "settings.yaml"

// Settings are the user-editable options. Command line flags override them.
type Settings struct {
	UserDir   string `yaml:"user_dir"`
	SystemDir string `yaml:"system_dir,omitempty"`

	Backend    string `yaml:"backend"`
	SampleRate int    `yaml:"sample_rate"`
	Period     int    `yaml:"period"`
	RateMode   string `yaml:"sample_rate_mode"`

	MidiPort string `yaml:"midi_port,omitempty"`

	RoomIR    string  `yaml:"room_ir,omitempty"`
	RoomDecay float64 `yaml:"room_decay"`
	RoomMix   float64 `yaml:"room_mix"`

	LogLevel string `yaml:"log_level"`
	MCP      bool   `yaml:"mcp"`

	// Session is restored at startup and updated on shutdown.
	Session int `yaml:"session"`
}

// DefaultUserDir returns ~/.algo-synth.
func DefaultUserDir() (string, error) {
	return homedir.Expand("~/.algo-synth")
}

// Default returns the built-in settings.
func Default() Settings {
	dir, err := DefaultUserDir()
	if err != nil {
		dir = ".algo-synth"
	}
	return Settings{
		UserDir:    dir,
		Backend:    "oto",
		SampleRate: 48000,
		Period:     256,
		RateMode:   engine.RateNormal.String(),
		RoomMix:    0.3,
		LogLevel:   "info",
	}
}

func (s *Settings) Validate() error {
	if s.UserDir == "" {
		return fmt.Errorf("user_dir must be set")
	}
	switch s.Backend {
	case "oto", "null":
	default:
		return fmt.Errorf("backend must be oto or null, have %q", s.Backend)
	}
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		return fmt.Errorf("sample_rate out of range: %d", s.SampleRate)
	}
	if s.Period < 16 || s.Period > 8192 {
		return fmt.Errorf("period out of range: %d", s.Period)
	}
	if _, err := engine.ParseMultiplier(s.RateMode); err != nil {
		return fmt.Errorf("sample_rate_mode: %w", err)
	}
	if s.RoomDecay < 0 || s.RoomDecay > 10 {
		return fmt.Errorf("room_decay must be in [0,10] seconds")
	}
	if s.RoomMix < 0 || s.RoomMix > 1 {
		return fmt.Errorf("room_mix must be in [0,1]")
	}
	if _, err := s.Level(); err != nil {
		return err
	}
	if s.Session < 0 {
		return fmt.Errorf("session must be >= 0")
	}
	return nil
}

// Level parses LogLevel.
func (s *Settings) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Multiplier parses RateMode.
func (s *Settings) Multiplier() engine.Multiplier {
	m, _ := engine.ParseMultiplier(s.RateMode)
	return m
}

func (s *Settings) expand() error {
	for _, p := range []*string{&s.UserDir, &s.SystemDir, &s.RoomIR} {
		if *p == "" {
			continue
		}
		v, err := homedir.Expand(*p)
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}

// Load reads settings from path on top of the defaults. A missing file
// yields the defaults.
func Load(path string) (Settings, error) {
	s := Default()
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Default(), fmt.Errorf("parse %s: %w", path, err)
	}
	if err := s.expand(); err != nil {
		return Default(), fmt.Errorf("expand paths: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Default(), fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Save writes s to path, replacing the file atomically.
func Save(path string, s Settings) error {
	b, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
