// Package applog provides the human-readable mirror log: a size and
// count rotated text log fed through log/slog. It mirrors what the
// structured ledger records, and is cosmetic rather than authoritative.
// Loggers are constructed explicitly and passed to components; there is
// no package-level singleton.
package applog

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configure the mirror log.
type Options struct {
	// Path is the mirror log file. Empty disables the file and logs
	// to stderr only.
	Path string

	// MaxSizeMB rotates the file once it exceeds this size.
	MaxSizeMB int

	// Backups is the number of rotated files to keep.
	Backups int

	// Verbose additionally copies records to stderr.
	Verbose bool

	// Level is the minimum record level (default Info).
	Level slog.Level
}

// New builds a slog.Logger with rotation, and a closer for the
// underlying file writer.
func New(opts Options) (*slog.Logger, io.Closer) {
	var w io.Writer
	var closer io.Closer

	switch {
	case opts.Path == "":
		w = os.Stderr
		closer = nopCloser{}
	default:
		lj := &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.Backups,
		}
		closer = lj
		if opts.Verbose {
			w = io.MultiWriter(lj, os.Stderr)
		} else {
			w = lj
		}
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: opts.Level})
	return slog.New(handler), closer
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
