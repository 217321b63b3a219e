// Package logging builds the structured logger shared by every command.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Format is text, logfmt or json. Empty means logfmt.
	Format string
	// File is rotated with lumberjack. Ignored when Writer is set.
	File string
	// Writer receives log output directly, e.g. os.Stderr.
	Writer io.Writer
	// Prefix is printed before every message.
	Prefix string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New returns a slog.Logger backed by a charm logger. The returned close
// function releases the log file, if any. With neither File nor Writer set
// the logger discards everything.
func New(opts Options) (*slog.Logger, func() error, error) {
	noop := func() error { return nil }

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, noop, err
	}
	formatter, err := parseFormat(opts.Format)
	if err != nil {
		return nil, noop, err
	}

	w := opts.Writer
	closeFn := noop
	if w == nil && opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, noop, fmt.Errorf("create log dir: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
		}
		w = lj
		closeFn = lj.Close
	}
	if w == nil {
		return slog.New(slog.DiscardHandler), noop, nil
	}

	handler := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           level,
		Prefix:          opts.Prefix,
		ReportTimestamp: true,
		Formatter:       formatter,
	})
	return slog.New(handler), closeFn, nil
}

// ParseLevel maps a config value to a charm log level.
func ParseLevel(s string) (charmlog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return charmlog.InfoLevel, nil
	}
	level, err := charmlog.ParseLevel(s)
	if err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func parseFormat(s string) (charmlog.Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "logfmt":
		return charmlog.LogfmtFormatter, nil
	case "text":
		return charmlog.TextFormatter, nil
	case "json":
		return charmlog.JSONFormatter, nil
	}
	return 0, fmt.Errorf("invalid log format %q (want text, logfmt or json)", s)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
