package config

import (
	"errors"
	"fmt"
)

// ErrConfig is matched by every configuration error via errors.Is.
var ErrConfig = errors.New("configuration error")

// Error describes an invalid or missing configuration value.
type Error struct {
	Field string // env var, file or key at fault
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Field == "" {
		return "config: " + msg
	}
	return fmt.Sprintf("config: %s: %s", e.Field, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConfig) true for every *Error.
func (e *Error) Is(target error) bool { return target == ErrConfig }

func errorf(field, format string, args ...any) *Error {
	return &Error{Field: field, Msg: fmt.Sprintf(format, args...)}
}
