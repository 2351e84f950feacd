// Package gate implements the human approval points of a session.
package gate

import (
	"context"

	"github.com/jywlabs/coursewright/internal/course"
)

// Action is a user decision at a gate.
type Action string

const (
	Accept Action = "accept"
	Revise Action = "revise"
	Abort  Action = "abort"
)

// DefaultFeedback replaces empty revise feedback.
const DefaultFeedback = "improve quality"

// Decision is the outcome of a gate.
type Decision struct {
	Action      Action
	Feedback    string
	ScopeChange bool // feedback changes course scope or objectives
	Choice      int  // 1-based option picked with accept, 0 for none
}

// Escalation is the user's choice when a revision cap is reached.
type Escalation string

const (
	ForceAccept Escalation = "force_accept"
	RaiseCap    Escalation = "raise_cap"
	AbortCap    Escalation = "abort"
)

// Recovery is the user's choice after a stage failure.
type Recovery string

const (
	Retry        Recovery = "retry"
	AbortFailure Recovery = "abort"
)

// Prompt describes an artifact presented at a gate.
type Prompt struct {
	Stage    string // research, outline, chapter, review
	Title    string
	Body     string
	Revision int // revisions already spent at this stage
	Cap      int
	Options  int // numbered options the user may pick instead of a plain accept
}

// CapPrompt describes a revision cap that was hit.
type CapPrompt struct {
	Stage    string
	Revision int
	Cap      int
	Feedback string // the revise that would exceed the cap
}

// FailurePrompt describes a failed stage.
type FailurePrompt struct {
	Stage string
	Kind  string
	Err   error
}

// Gate asks the user for decisions. Every method returns ctx.Err() when
// the context ends. An exhausted input stream is an abort: Decide answers
// Abort, Escalate and RecoverFailure return ErrInputClosed.
type Gate interface {
	Decide(ctx context.Context, p Prompt) (Decision, error)
	Escalate(ctx context.Context, p CapPrompt) (Escalation, error)
	RecoverFailure(ctx context.Context, p FailurePrompt) (Recovery, error)
}

// Intake collects the course request at session start.
type Intake interface {
	CollectRequest(ctx context.Context) (course.Request, error)
}

// Normalize applies the defaults every gate implementation shares.
func (d Decision) Normalize() Decision {
	if d.Action == Revise && d.Feedback == "" {
		d.Feedback = DefaultFeedback
	}
	return d
}
