package debug

import (
	"log/slog"
	"os"
	"time"
)

var (
	exit    = os.Exit
	timeNow = time.Now
)

// Fatal logs msg at error level, runs the flush hooks best-effort, drains the
// log queue and exits the process with status 1. A failing hook is logged and
// does not stop later ones.
func (t *Thread) Fatal(log *slog.Logger, msg string, err error, flush ...func() error) {
	log.Error(msg, "err", err)
	for _, f := range flush {
		if ferr := f(); ferr != nil {
			log.Error("flush before exit failed", "err", ferr)
		}
	}
	t.Close()
	exit(1)
}
