package debug

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestThreadWritesRecords(t *testing.T) {
	var out syncBuffer
	th := NewThread(16)
	log := slog.New(th.Handler(slog.NewTextHandler(&out, nil))).With("part", 3)
	ctx, cancel := context.WithCancel(context.Background())
	go th.Run(ctx)

	log.Info("note on", "key", 60)
	log.WithGroup("voice").Info("stolen", "age", 7)
	cancel()
	<-th.Done()

	got := out.String()
	for _, want := range []string{"msg=\"note on\"", "part=3", "key=60", "voice.age=7"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output %q missing %q", got, want)
		}
	}
}

func TestFullQueueDropsAndReports(t *testing.T) {
	var out syncBuffer
	th := NewThread(2)
	log := slog.New(th.Handler(slog.NewTextHandler(&out, nil)))
	for i := range 5 {
		log.Info("record", "i", i)
	}
	if th.Dropped() != 3 {
		t.Fatalf("dropped = %d, want 3", th.Dropped())
	}

	ctx, cancel := context.WithCancel(context.Background())
	go th.Run(ctx)
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "log records dropped") {
		if time.Now().After(deadline) {
			t.Fatalf("drop not reported: %q", out.String())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-th.Done()
	if !strings.Contains(out.String(), "count=3") {
		t.Fatalf("wrong drop count: %q", out.String())
	}
}

func TestHandlerRespectsLevel(t *testing.T) {
	th := NewThread(4)
	h := th.Handler(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info enabled on a warn handler")
	}
}

func TestFatalFlushesAndExits(t *testing.T) {
	code := -1
	exit = func(c int) { code = c }
	defer func() { exit = os.Exit }()

	var out syncBuffer
	th := NewThread(16)
	go th.Run(context.Background())
	log := slog.New(th.Handler(slog.NewTextHandler(&out, nil)))
	var flushed []string
	th.Fatal(log, "cannot create data directory", errors.New("read-only"),
		func() error { flushed = append(flushed, "a"); return errors.New("disk full") },
		func() error { flushed = append(flushed, "b"); return nil },
	)
	if code != 1 {
		t.Fatalf("exit code %d", code)
	}
	if len(flushed) != 2 {
		t.Fatalf("flushed %v", flushed)
	}
	// Fatal drains the queue before exiting.
	if !strings.Contains(out.String(), "disk full") || !strings.Contains(out.String(), "read-only") {
		t.Fatalf("log = %q", out.String())
	}
}
