package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-synth/analysis"
	"github.com/cwbudde/algo-synth/backend"
	"github.com/cwbudde/algo-synth/engine"
	"github.com/cwbudde/algo-synth/internal/wavio"
	"github.com/cwbudde/algo-synth/midi"
	"github.com/cwbudde/algo-synth/patch"
	"github.com/cwbudde/algo-synth/preset"
	"github.com/cwbudde/algo-synth/studio"
)

func main() {
	notes := flag.String("notes", "69", "Comma-separated MIDI notes to play (69 = A4 = 440 Hz)")
	velocity := flag.Int("velocity", 100, "MIDI velocity (1-127)")
	duration := flag.Float64("duration", 2.0, "Rendered length in seconds")
	releaseAfter := flag.Float64("release-after", 1.0, "Send NoteOff after this many seconds (negative holds the notes)")
	part := flag.Int("part", 1, "Part playing the notes (1-16)")
	sampleRate := flag.Int("sample-rate", 48000, "Output sample rate in Hz")
	period := flag.Int("period", 256, "Frames per engine period")
	mode := flag.String("mode", "normal", "Internal rate: normal, oversample or undersample")
	patchPath := flag.String("patch", "", "Patch file or JSON preset for the part (optional)")
	irPath := flag.String("ir", "", "Room impulse response WAV (optional)")
	roomDecay := flag.Float64("room-decay", 0, "Decay in seconds of the generated room when -ir is not set (0 = off)")
	roomMix := flag.Float64("room-mix", 0.3, "Room wet share (0-1)")
	inputPath := flag.String("input", "", "Input WAV feeding oscillators with the input frequency base (optional)")
	userDir := flag.String("user-dir", "", "User data directory for patch lookups (default: temporary)")
	output := flag.String("output", "output.wav", "Output WAV file path")
	reference := flag.String("reference", "", "Reference WAV to compare the render with (optional)")
	verbose := flag.Bool("v", false, "Log engine details")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	keys, err := parseNotes(*notes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *part < 1 || *part > studio.MaxParts {
		fmt.Fprintf(os.Stderr, "Error: part must be in [1,%d]\n", studio.MaxParts)
		os.Exit(1)
	}
	mult, err := engine.ParseMultiplier(*mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	totalFrames := int64(float64(*sampleRate) * (*duration))
	if totalFrames < 1 {
		totalFrames = 1
	}

	dir := *userDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "synth-render-*")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating temporary directory: %v\n", err)
			os.Exit(1)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}
	st := studio.New(studio.Options{Dirs: studio.Dirs{User: dir}, Log: log})
	idx := *part - 1
	if *patchPath != "" {
		if err := loadPatch(st, idx, *patchPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading patch %q: %v\n", *patchPath, err)
			os.Exit(1)
		}
	}

	be := &backend.File{Path: *output, InputPath: *inputPath, Frames: totalFrames}
	eng := engine.New(engine.Options{
		SampleRate: *sampleRate,
		Period:     *period,
		Multiplier: mult,
		QueueSize:  2 * len(keys),
		RoomIR:     *irPath,
		RoomDecay:  *roomDecay,
		RoomMix:    *roomMix,
		FailFast:   true,
		Log:        log,
	}, st, be)

	for _, key := range keys {
		if err := eng.Schedule(idx, midi.Event{Type: midi.NoteOn, Note: key, Velocity: *velocity}, 0); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if *releaseAfter >= 0 {
			at := int64(float64(*sampleRate) * (*releaseAfter))
			if err := eng.Schedule(idx, midi.Event{Type: midi.NoteOff, Note: key}, at); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}
	}

	fmt.Printf("Rendering notes %v on part %d for %.2f seconds at %d Hz (%s)...\n", keys, *part, *duration, *sampleRate, mult)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := eng.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully wrote %s (%d frames)\n", *output, be.Written())

	if *reference != "" {
		if err := compare(*reference, *output); err != nil {
			fmt.Fprintf(os.Stderr, "Error comparing with %q: %v\n", *reference, err)
			os.Exit(1)
		}
	}
}

// compare prints how far the render at path is from the reference render.
func compare(refPath, path string) error {
	ref, err := wavio.Read(refPath)
	if err != nil {
		return err
	}
	out, err := wavio.Read(path)
	if err != nil {
		return err
	}
	if err := ref.Resample(out.Rate); err != nil {
		return err
	}
	m := analysis.Compare(analysis.Mono(ref.Left, ref.Right), analysis.Mono(out.Left, out.Right), out.Rate)
	fmt.Printf("Reference %s:\n", refPath)
	fmt.Printf("  lag:           %d samples\n", m.LagSamples)
	fmt.Printf("  level diff:    %.2f dB\n", m.LevelDiffDB)
	fmt.Printf("  time RMSE:     %.4f\n", m.TimeRMSE)
	fmt.Printf("  envelope RMSE: %.2f dB\n", m.EnvelopeRMSEDB)
	fmt.Printf("  spectral RMSE: %.2f dB\n", m.SpectralRMSEDB)
	fmt.Printf("  score:         %.4f (similarity %.4f)\n", m.Score, m.Similarity)
	return nil
}

func parseNotes(s string) ([]int, error) {
	var keys []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 || n > 127 {
			return nil, fmt.Errorf("invalid note %q", f)
		}
		keys = append(keys, n)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no notes given")
	}
	return keys, nil
}

// loadPatch installs a patch file or JSON preset as the part's session patch,
// which is what the part plays on startup.
func loadPatch(st *studio.Studio, part int, path string) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		_, err := st.EditActive(part, func(p *patch.Patch) error {
			return preset.LoadJSON(path, p)
		})
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return err
	}
	_, err = st.LoadPatch(part, 0, abs)
	return err
}
