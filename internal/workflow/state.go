// Package workflow drives a course-authoring session through research,
// outline, chapters and review with human approval gates.
package workflow

import (
	"errors"
	"fmt"
)

// State is a controller state.
type State string

const (
	StateInit     State = "init"
	StateResearch State = "research"
	StateOutline  State = "outline"
	StateChapter  State = "chapter"
	StateReview   State = "review"
	StateDone     State = "done"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateInit, StateResearch, StateOutline, StateChapter, StateReview, StateDone:
		return true
	}
	return false
}

var (
	// ErrUserAborted means the user quit, closed stdin or interrupted the session.
	ErrUserAborted = errors.New("session aborted by user")
	// ErrRevisionCapExceeded means a stage hit its revision cap and the user chose abort.
	ErrRevisionCapExceeded = errors.New("revision cap exceeded")
)

// StageError is an agent failure the user chose not to retry.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
