// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package logging provides the CLI's structured logger and utilities for
// secure logging and error presentation.
//
// Loggers are built once in cmd and passed down explicitly; nothing in
// internal/ writes to a package-level logger. Token values are never logged,
// only TokenHint output.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures New.
type Options struct {
	Level   string
	Verbose bool
	// Writer defaults to os.Stderr.
	Writer io.Writer
	// JSON disables the console writer; used when stderr is not a terminal.
	JSON bool
}

// New builds the CLI logger. Verbose forces debug level.
func New(opts Options) zerolog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := ParseLevel(opts.Level)
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	var out io.Writer = w
	if !opts.JSON {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// ParseLevel maps a config level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Nop returns a disabled logger for tests and library defaults.
func Nop() zerolog.Logger { return zerolog.Nop() }
