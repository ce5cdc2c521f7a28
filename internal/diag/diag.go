// Package diag provides the controller's "semihosted" diagnostic trace:
// a structured logger that is a genuine no-op by default, since a real
// target build pays nothing for calls it never emits, and that upgrades
// to a pretty interactive handler when debug tracing is requested.
package diag

import (
	"io"
	"log/slog"
	"os"

	"hermannm.dev/devlog"
)

// New builds the package-level logger for a controller process. When
// debug is false it discards everything, matching the zero-overhead
// default a build without the semihosted trace would have. When true, it
// logs through devlog's interactive handler at the given level.
func New(debug bool, level slog.Level) *slog.Logger {
	if !debug {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var levelVar slog.LevelVar
	levelVar.Set(level)
	return slog.New(devlog.NewHandler(os.Stdout, &devlog.Options{Level: &levelVar}))
}

// Drop records that a message was dropped, and why — the only
// diagnostic signal the dispatch loop ever produces, since every failure
// in that loop is locally recovered rather than surfaced to a caller.
func Drop(log *slog.Logger, reason string, args ...any) {
	log.Debug("dropped message", append([]any{"reason", reason}, args...)...)
}
