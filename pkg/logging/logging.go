// Package logging wires up the process-wide zerolog sink, modeled on
// gsoultan/hermod's pkg/engine/logger.go DefaultLogger: a single
// zerolog.Logger with timestamps, here pointed at a file instead of
// stderr because the TUI (C8) owns the terminal.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the structured logger every component takes a reference to.
// It never writes to stdout/stderr while the TUI is active (spec §6:
// "./kql-panopticon.log # log file in CWD").
type Logger struct {
	zl zerolog.Logger
}

// Open creates or appends to the log file at path and returns a Logger
// plus an io.Closer the caller must close on shutdown.
func Open(path string) (*Logger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	zl := zerolog.New(f).With().Timestamp().Logger()
	return &Logger{zl: zl}, f, nil
}

// NewNop returns a Logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{zl: zerolog.New(io.Discard)}
}

func (l *Logger) event(e *zerolog.Event, msg string, kv ...any) {
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		if i+1 < len(kv) {
			e.Interface(key, kv[i+1])
		} else {
			e.Interface(key, nil)
		}
	}
	e.Msg(msg)
}

func (l *Logger) Debug(msg string, kv ...any) { l.event(l.zl.Debug(), msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.event(l.zl.Info(), msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.event(l.zl.Warn(), msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.event(l.zl.Error(), msg, kv...) }
