// Package logging builds the process logger from configuration.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for the optional log file.
const (
	RotateMaxSizeMB  = 30
	RotateMaxAgeDays = 90
	RotateMaxBackups = 10
)

type Options struct {
	Level string // trace | debug | info | warn | error; unknown means info
	// Env "dev" writes human-readable console output, anything else JSON.
	Env string
	// File, when set, receives a JSON copy of every entry, rotated by size.
	File string
}

// New returns the logger and a closer for the log file. The closer is
// never nil.
func New(opt Options) (zerolog.Logger, io.Closer) {
	return NewWithWriter(os.Stderr, opt)
}

// NewWithWriter is New with the console destination supplied.
func NewWithWriter(out io.Writer, opt Options) (zerolog.Logger, io.Closer) {
	var console io.Writer = out
	if opt.Env == "dev" {
		console = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	var closer io.Closer = nopCloser{}
	w := console
	if opt.File != "" {
		file := &lumberjack.Logger{
			Filename:   opt.File,
			MaxSize:    RotateMaxSizeMB,
			MaxAge:     RotateMaxAgeDays,
			MaxBackups: RotateMaxBackups,
			LocalTime:  true,
			Compress:   true,
		}
		closer = file
		w = zerolog.MultiLevelWriter(console, file)
	}

	logger := zerolog.New(w).
		Level(ParseLevel(opt.Level)).
		With().
		Timestamp().
		Str("service", "portunus-bio").
		Logger()
	return logger, closer
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
