package gate

import (
	"context"
	"fmt"
	"sync"

	"github.com/jywlabs/coursewright/internal/course"
)

// Scripted replays canned decisions. When a queue runs dry it answers
// abort at a decision and quit at an escalation or failure prompt.
type Scripted struct {
	mu          sync.Mutex
	Request     course.Request
	Decisions   []Decision
	Escalations []Escalation
	Recoveries  []Recovery

	Prompts    []Prompt
	CapPrompts []CapPrompt
	Failures   []FailurePrompt
	OnDecide   func(p Prompt) // called before each decision is returned
}

// CollectRequest returns the canned request.
func (s *Scripted) CollectRequest(ctx context.Context) (course.Request, error) {
	if err := ctx.Err(); err != nil {
		return course.Request{}, err
	}
	if err := s.Request.Validate(); err != nil {
		return course.Request{}, fmt.Errorf("scripted request: %w", err)
	}
	return s.Request, nil
}

// Decide pops the next decision.
func (s *Scripted) Decide(ctx context.Context, p Prompt) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	s.mu.Lock()
	s.Prompts = append(s.Prompts, p)
	d := Decision{Action: Abort}
	if len(s.Decisions) > 0 {
		d = s.Decisions[0]
		s.Decisions = s.Decisions[1:]
	}
	hook := s.OnDecide
	s.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return d.Normalize(), nil
}

// Escalate pops the next escalation choice.
func (s *Scripted) Escalate(ctx context.Context, p CapPrompt) (Escalation, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CapPrompts = append(s.CapPrompts, p)
	if len(s.Escalations) == 0 {
		return AbortCap, nil
	}
	e := s.Escalations[0]
	s.Escalations = s.Escalations[1:]
	return e, nil
}

// RecoverFailure pops the next recovery choice.
func (s *Scripted) RecoverFailure(ctx context.Context, p FailurePrompt) (Recovery, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failures = append(s.Failures, p)
	if len(s.Recoveries) == 0 {
		return AbortFailure, nil
	}
	r := s.Recoveries[0]
	s.Recoveries = s.Recoveries[1:]
	return r, nil
}

// Accepts returns n accept decisions.
func Accepts(n int) []Decision {
	out := make([]Decision, n)
	for i := range out {
		out[i] = Decision{Action: Accept}
	}
	return out
}
