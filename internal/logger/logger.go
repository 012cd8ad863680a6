// Package logger configures the process-wide slog default. Everything else
// logs through slog directly.
package logger

import (
	"log/slog"
	"os"
)

// Init installs a text handler on stdout as the slog default. Debug mode
// lowers the level and annotates records with their source position.
func Init(debug bool) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, opts)))
}
