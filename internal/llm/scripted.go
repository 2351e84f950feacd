package llm

import (
	"context"
	"fmt"
	"sync"
)

// Call records one request made to a Scripted client.
type Call struct {
	System string
	User   string
}

// Scripted is a deterministic Client for tests. Responses are queued per
// system prompt and consumed in order; a queued error is returned instead
// of text.
type Scripted struct {
	mu        sync.Mutex
	responses map[string][]scriptedReply
	calls     []Call
}

type scriptedReply struct {
	text string
	err  error
}

// NewScripted creates an empty scripted client.
func NewScripted() *Scripted {
	return &Scripted{responses: make(map[string][]scriptedReply)}
}

// Queue appends text responses for the given system prompt.
func (s *Scripted) Queue(system string, texts ...string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range texts {
		s.responses[system] = append(s.responses[system], scriptedReply{text: t})
	}
	return s
}

// QueueError appends an error response for the given system prompt.
func (s *Scripted) QueueError(system string, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[system] = append(s.responses[system], scriptedReply{err: err})
	return s
}

// Complete pops the next response queued for systemPrompt.
func (s *Scripted) Complete(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{System: systemPrompt, User: userPrompt})

	queue := s.responses[systemPrompt]
	if len(queue) == 0 {
		return "", fmt.Errorf("no scripted response for system prompt %.40q", systemPrompt)
	}
	reply := queue[0]
	s.responses[systemPrompt] = queue[1:]
	return reply.text, reply.err
}

// Calls returns every request made so far.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Remaining reports how many responses are still queued for system.
func (s *Scripted) Remaining(system string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses[system])
}
