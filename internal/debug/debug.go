// Package debug moves log output off the real-time goroutines. Records are
// handed to a bounded queue and written by a dedicated goroutine; when the
// queue is full records are counted and dropped instead of blocking.
package debug

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the number of records the queue holds.
const DefaultQueueSize = 1024

type entry struct {
	h   slog.Handler
	rec slog.Record
}

// Thread owns the log queue.
type Thread struct {
	ch      chan entry
	dropped atomic.Uint64
	quit    chan struct{}
	stop    sync.Once
	done    chan struct{}
}

// NewThread returns a thread with a queue of size records.
func NewThread(size int) *Thread {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Thread{ch: make(chan entry, size), quit: make(chan struct{}), done: make(chan struct{})}
}

// Handler wraps inner so that its records are written by t.
func (t *Thread) Handler(inner slog.Handler) slog.Handler {
	return &handler{t: t, inner: inner}
}

// Dropped returns the number of records lost to a full queue.
func (t *Thread) Dropped() uint64 { return t.dropped.Load() }

// Done is closed when Run has returned.
func (t *Thread) Done() <-chan struct{} { return t.done }

// Close stops Run and waits until the queue is drained. Run must have been
// started.
func (t *Thread) Close() {
	t.stop.Do(func() { close(t.quit) })
	<-t.done
}

// Run writes queued records until ctx is done or Close is called, then
// drains the queue.
func (t *Thread) Run(ctx context.Context) {
	defer close(t.done)
	var reported uint64
	for {
		select {
		case e := <-t.ch:
			t.write(e)
			if n := t.dropped.Load(); n != reported && len(t.ch) == 0 {
				t.report(e.h, n-reported)
				reported = n
			}
		case <-ctx.Done():
			t.drain()
			return
		case <-t.quit:
			t.drain()
			return
		}
	}
}

func (t *Thread) drain() {
	for {
		select {
		case e := <-t.ch:
			t.write(e)
		default:
			return
		}
	}
}

func (t *Thread) write(e entry) {
	if err := e.h.Handle(context.Background(), e.rec); err != nil {
		fmt.Fprintf(os.Stderr, "debug: write log record: %v\n", err)
	}
}

func (t *Thread) report(h slog.Handler, n uint64) {
	rec := slog.NewRecord(timeNow(), slog.LevelWarn, "log records dropped", 0)
	rec.AddAttrs(slog.Uint64("count", n))
	t.write(entry{h: h, rec: rec})
}

type handler struct {
	t     *Thread
	inner slog.Handler
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	select {
	case h.t.ch <- entry{h: h.inner, rec: r.Clone()}:
	default:
		h.t.dropped.Add(1)
	}
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &handler{t: h.t, inner: h.inner.WithAttrs(attrs)}
}

func (h *handler) WithGroup(name string) slog.Handler {
	return &handler{t: h.t, inner: h.inner.WithGroup(name)}
}
