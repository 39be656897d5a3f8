package errors

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Sentinel conditions for illegal state transitions. Callers match them with
// Is rather than string comparison.
var (
	ErrSessionNotEmpty  = errors.New("current session is not empty")
	ErrUnableChangeRole = errors.New("unable to change role in a session with messages")
	ErrAlreadyInSession = errors.New("already in a session, run '.exit session' first")
	ErrCompressing      = errors.New("session compression already in flight")
	ErrNoModel          = errors.New("no model matched")
)

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file = "???"
		line = 0
	} else {
		file = filepath.Base(file)
	}
	return fmt.Errorf("[%s:%d] %s", file, line, fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file = "???"
		line = 0
	} else {
		file = filepath.Base(file)
	}
	return fmt.Errorf("[%s:%d] %s: %w", file, line, fmt.Sprintf(format, a...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
