/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process. Development gets a console
// writer at debug level, everything else JSON at info. A non-empty level
// overrides the default.
func Setup(environment, level string) zerolog.Logger {
	var w io.Writer = os.Stdout
	if environment == "development" {
		w = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	return SetupWithWriter(environment, level, w)
}

// SetupWithWriter is Setup on an explicit writer.
func SetupWithWriter(environment, level string, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl := zerolog.InfoLevel
	if environment == "development" {
		lvl = zerolog.DebugLevel
	}
	if level != "" {
		if parsed, err := zerolog.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}

	logger := zerolog.New(w).With().Timestamp().Logger().Level(lvl)
	log.Logger = logger
	return logger
}
