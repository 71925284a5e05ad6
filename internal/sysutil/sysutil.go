// Package sysutil configures process-wide concerns of the server binary:
// the global zerolog logger and its sinks.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetLogLevel configures the global zerolog level based on a string value.
// Supported values (case-insensitive): debug, info, warn, error, fatal, panic.
// Anything else means info.
func SetLogLevel(lvl string) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// LogOptions selects the sinks of the global logger.
type LogOptions struct {
	Level   string
	Service string
	// Pretty writes human-readable console output instead of JSON.
	Pretty bool
	// File, when set, also writes JSON lines to a size-rotated file.
	File       string
	MaxSizeMB  int // default 100
	MaxBackups int // default 5
	MaxAgeDays int // default 28

	// Stdout defaults to os.Stdout.
	Stdout io.Writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetupLogger replaces log.Logger according to opts. The returned Closer
// releases the log file, if any.
func SetupLogger(opts LogOptions) io.Closer {
	SetLogLevel(opts.Level)

	var out io.Writer = opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rot := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, rot)
		closer = rot
	}

	ctx := zerolog.New(out).With().Timestamp()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}
	log.Logger = ctx.Logger()
	zerolog.DefaultContextLogger = &log.Logger
	return closer
}

// FirstNonEmpty returns the first value that is not blank, unchanged, or ""
// when all are blank.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func orDefault(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}
