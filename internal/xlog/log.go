// Package xlog provides the engine's structured logging convention: a
// package-level logger with leveled Debug/Info/Warn/Error helpers taking
// alternating key/value pairs, in the idiom go-ethereum's own "log" package
// has used since it moved onto log/slog.
package xlog

import (
	"log/slog"
	"os"
)

var root = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// New returns a child logger tagged with a component name, e.g. New("state")
// or New("cache").
func New(component string) *slog.Logger {
	return root.With("component", component)
}

func SetLevel(lvl slog.Level) {
	root = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
