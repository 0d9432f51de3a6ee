package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/cwbudde/algo-synth/backend"
	"github.com/cwbudde/algo-synth/control"
	"github.com/cwbudde/algo-synth/engine"
	"github.com/cwbudde/algo-synth/internal/config"
	"github.com/cwbudde/algo-synth/internal/debug"
	"github.com/cwbudde/algo-synth/midi"
	"github.com/cwbudde/algo-synth/param"
	"github.com/cwbudde/algo-synth/studio"
)

var version = "dev"

func main() {
	defaultDir, err := config.DefaultUserDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot resolve home directory: %v\n", err)
		os.Exit(1)
	}
	configPath := flag.String("config", filepath.Join(defaultDir, config.FileName), "Settings file")
	backendName := flag.String("backend", "", "Audio backend: oto or null")
	sampleRate := flag.Int("sample-rate", 0, "Sample rate in Hz")
	period := flag.Int("period", 0, "Frames per period")
	mode := flag.String("mode", "", "Internal rate: normal, oversample or undersample")
	midiPort := flag.String("midi-port", "", "MIDI input port name, or none")
	listPorts := flag.Bool("list-ports", false, "List MIDI input ports and exit")
	mcpFlag := flag.Bool("mcp", false, "Serve the MCP control interface on stdin/stdout")
	session := flag.Int("session", -1, "Session to activate on startup")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn or error")
	irPath := flag.String("ir", "", "Room impulse response WAV")
	roomDecay := flag.Float64("room-decay", 0, "Decay in seconds of the generated room when no IR file is set (0 = off)")
	roomMix := flag.Float64("room-mix", -1, "Room wet share (0-1)")
	userDir := flag.String("user-dir", "", "User data directory")
	systemDir := flag.String("system-dir", "", "System data directory")
	flag.Parse()

	if *listPorts {
		for i, name := range midi.Ports() {
			fmt.Printf("%d: %s\n", i, name)
		}
		return
	}

	settings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading settings: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			settings.Backend = *backendName
		case "sample-rate":
			settings.SampleRate = *sampleRate
		case "period":
			settings.Period = *period
		case "mode":
			settings.RateMode = *mode
		case "midi-port":
			settings.MidiPort = *midiPort
		case "mcp":
			settings.MCP = *mcpFlag
		case "session":
			settings.Session = *session
		case "log-level":
			settings.LogLevel = *logLevel
		case "ir":
			settings.RoomIR = *irPath
		case "room-decay":
			settings.RoomDecay = *roomDecay
		case "room-mix":
			settings.RoomMix = *roomMix
		case "user-dir":
			settings.UserDir = *userDir
		case "system-dir":
			settings.SystemDir = *systemDir
		}
	})
	if err := settings.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	level, _ := settings.Level()

	logCtx, stopLog := context.WithCancel(context.Background())
	logThread := debug.NewThread(0)
	go logThread.Run(logCtx)
	log := slog.New(logThread.Handler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	slog.SetDefault(log)

	code := run(settings, *configPath, log, logThread)
	stopLog()
	<-logThread.Done()
	os.Exit(code)
}

func run(settings config.Settings, configPath string, log *slog.Logger, logThread *debug.Thread) int {
	dirs := studio.Dirs{User: settings.UserDir, System: settings.SystemDir}
	if err := dirs.Create(); err != nil {
		logThread.Fatal(log, "cannot create data directories", err)
	}

	locks := param.NewControllerMap()
	if err := locks.LoadMapFile(dirs.MidiMapFile(), log); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("MIDI map not loaded", "file", dirs.MidiMapFile(), "err", err)
	}
	st := studio.New(studio.Options{Dirs: dirs, Locks: locks, Log: log})
	if err := st.LoadSessionBank(dirs.SessionBankFile()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("session bank not loaded", "err", err)
	}
	if err := st.LoadBank(dirs.BankFile()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("patch bank not loaded", "err", err)
	}
	if _, err := st.SelectSession(settings.Session); err != nil {
		log.Warn("session not fully loaded", "session", settings.Session, "err", err)
	}

	flush := func() error {
		settings.Session = st.CurrentSession()
		return errors.Join(
			st.Autosave(),
			locks.SaveMapFile(dirs.MidiMapFile()),
			config.Save(configPath, settings),
		)
	}

	var be backend.Backend
	switch settings.Backend {
	case "null":
		be = backend.NewNull()
	default:
		be = backend.NewOto(log)
	}
	eng := engine.New(engine.Options{
		SampleRate: settings.SampleRate,
		Period:     settings.Period,
		Multiplier: settings.Multiplier(),
		RoomIR:     settings.RoomIR,
		RoomDecay:  settings.RoomDecay,
		RoomMix:    settings.RoomMix,
		Log:        log,
	}, st, be)

	if settings.MidiPort != "none" {
		in, err := midi.Open(settings.MidiPort, eng.HandleMIDI, log)
		if err != nil {
			log.Warn("no MIDI input", "err", err)
		} else {
			defer in.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if settings.MCP {
		srv := control.NewServer(control.New(st, eng, log), version)
		go func() {
			if err := control.Serve(ctx, srv, os.Stdin, os.Stdout, log); err != nil {
				log.Error("MCP server stopped", "err", err)
			}
			eng.Shutdown()
		}()
	}

	log.Info("synth running", "backend", be.Name(), "session", st.CurrentSession())
	if err := eng.Run(ctx); err != nil {
		log.Error("engine stopped", "err", err)
	}
	if n := st.CheckSession(); n > 0 {
		log.Warn("parts out of sync with their session", "count", n)
	}

	if err := flush(); err != nil {
		log.Error("saving state failed", "err", err)
		return 1
	}
	log.Info("state saved", "dir", dirs.User)
	return 0
}
