/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package errs holds the flat error taxonomy shared by every layer of the
// playback engine. Success is a nil error; everything else wraps one of the
// sentinels below so callers can test with errors.Is.
package errs

import (
	"context"
	"errors"
)

// Code is the numeric taxonomy value of an error.
type Code int

const (
	OK Code = iota
	General
	Inval
	NotFound
	NoMem
	Busy
	Perm
	TimedOut
	Empty
	EOF
	EOL
	BOL
	Overflow
	NotImplemented
	Fatal
	Again
	Unknown
)

var codeNames = map[Code]string{
	OK:             "ok",
	General:        "general error",
	Inval:          "invalid argument",
	NotFound:       "not found",
	NoMem:          "out of memory",
	Busy:           "busy",
	Perm:           "not permitted in current state",
	TimedOut:       "timed out",
	Empty:          "empty",
	EOF:            "end of file",
	EOL:            "end of list",
	BOL:            "beginning of list",
	Overflow:       "overflow",
	NotImplemented: "not implemented",
	Fatal:          "fatal error",
	Again:          "try again",
	Unknown:        "unknown error",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown error"
}

// codeError is the concrete sentinel type.
type codeError struct {
	code Code
}

func (e *codeError) Error() string { return e.code.String() }

var (
	ErrGeneral        error = &codeError{General}
	ErrInval          error = &codeError{Inval}
	ErrNotFound       error = &codeError{NotFound}
	ErrNoMem          error = &codeError{NoMem}
	ErrBusy           error = &codeError{Busy}
	ErrPerm           error = &codeError{Perm}
	ErrTimedOut       error = &codeError{TimedOut}
	ErrEmpty          error = &codeError{Empty}
	ErrEOF            error = &codeError{EOF}
	ErrEOL            error = &codeError{EOL}
	ErrBOL            error = &codeError{BOL}
	ErrOverflow       error = &codeError{Overflow}
	ErrNotImplemented error = &codeError{NotImplemented}
	ErrFatal          error = &codeError{Fatal}
	ErrAgain          error = &codeError{Again}
	ErrUnknown        error = &codeError{Unknown}
)

// CodeOf maps err, possibly wrapped, back to its taxonomy value.
// Context errors are folded in: a passed deadline is TimedOut, a
// cancellation is General.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var ce *codeError
	if errors.As(err, &ce) {
		return ce.code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return TimedOut
	case errors.Is(err, context.Canceled):
		return General
	}
	return Unknown
}

// Retryable reports whether err is the "busy, retry later" signal.
func Retryable(err error) bool {
	c := CodeOf(err)
	return c == Perm || c == Again || c == Busy
}
