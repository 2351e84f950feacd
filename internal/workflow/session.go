package workflow

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jywlabs/coursewright/internal/artifact"
	"github.com/jywlabs/coursewright/internal/checkpoint"
	"github.com/jywlabs/coursewright/internal/course"
)

// Revision counter keys.
const (
	RevResearch = "research"
	RevOutline  = "outline"
	RevReview   = "review"
)

// RevChapter returns the revision counter key of chapter i.
func RevChapter(i int) string { return fmt.Sprintf("chapter/%d", i) }

// Session is the state of one authoring run. The controller owns it;
// agents only ever see copies of its artifacts.
type Session struct {
	ID            string
	Request       course.Request
	State         State
	NextChapter   int
	Revisions     map[string]int
	Caps          map[string]int // raised caps; missing keys use the default
	ForceAccepted bool
	Trace         []State
	Artifacts     *artifact.Store

	// Feedback is handed to the next run of the current stage.
	Feedback string
	// ScopeChange carries outline feedback through a research re-run.
	ScopeChange bool
	// ReviewNotes holds reviewer block messages per chapter awaiting rework.
	ReviewNotes map[int]string

	previousOutline *course.Outline // last rejected outline draft
}

// NewSession starts an empty session in StateInit.
func NewSession() *Session {
	return &Session{
		ID:          uuid.NewString(),
		State:       StateInit,
		Revisions:   make(map[string]int),
		Caps:        make(map[string]int),
		ReviewNotes: make(map[int]string),
		Artifacts:   artifact.New(),
	}
}

// Dump converts the session to its checkpoint form.
func (s *Session) Dump() *checkpoint.Dump {
	trace := make([]string, len(s.Trace))
	for i, st := range s.Trace {
		trace[i] = string(st)
	}
	return &checkpoint.Dump{
		SessionID:     s.ID,
		Request:       s.Request,
		State:         string(s.State),
		NextChapter:   s.NextChapter,
		Revisions:     copyMap(s.Revisions),
		Caps:          copyMap(s.Caps),
		ForceAccepted: s.ForceAccepted,
		Feedback:      s.Feedback,
		ScopeChange:   s.ScopeChange,
		ReviewNotes:   copyMap(s.ReviewNotes),
		Trace:         trace,
		Artifacts:     s.Artifacts.Snapshot(),

		PreviousOutline: cloneOutline(s.previousOutline),
	}
}

// FromDump rebuilds a session from a checkpoint, verifying artifact hashes.
func FromDump(d *checkpoint.Dump) (*Session, error) {
	st := State(d.State)
	if !st.Valid() {
		return nil, fmt.Errorf("checkpoint has unknown state %q", d.State)
	}
	store, err := artifact.Restore(d.Artifacts)
	if err != nil {
		return nil, err
	}
	if st != StateInit {
		if err := d.Request.Validate(); err != nil {
			return nil, fmt.Errorf("checkpoint request: %w", err)
		}
	}
	if err := checkResumable(st, store); err != nil {
		return nil, err
	}

	s := &Session{
		ID:            d.SessionID,
		Request:       d.Request,
		State:         st,
		NextChapter:   d.NextChapter,
		Revisions:     copyMap(d.Revisions),
		Caps:          copyMap(d.Caps),
		ForceAccepted: d.ForceAccepted,
		Feedback:      d.Feedback,
		ScopeChange:   d.ScopeChange,
		ReviewNotes:   copyMap(d.ReviewNotes),
		Artifacts:     store,

		previousOutline: cloneOutline(d.PreviousOutline),
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	for _, t := range d.Trace {
		s.Trace = append(s.Trace, State(t))
	}
	return s, nil
}

// checkResumable verifies that the artifacts the state depends on exist.
func checkResumable(st State, store *artifact.Store) error {
	need := func(ok bool, what string) error {
		if !ok {
			return fmt.Errorf("checkpoint in state %s has no accepted %s", st, what)
		}
		return nil
	}
	switch st {
	case StateOutline:
		return need(store.Brief() != nil, "research brief")
	case StateChapter, StateReview:
		if err := need(store.Brief() != nil, "research brief"); err != nil {
			return err
		}
		return need(store.Outline() != nil, "outline")
	case StateDone:
		if err := need(store.Complete(), "chapters"); err != nil {
			return err
		}
		return need(store.Review() != nil, "review")
	}
	return nil
}

// TraceStrings returns the visited states as strings.
func (s *Session) TraceStrings() []string {
	out := make([]string, len(s.Trace))
	for i, st := range s.Trace {
		out[i] = string(st)
	}
	return out
}

func cloneOutline(o *course.Outline) *course.Outline {
	if o == nil {
		return nil
	}
	c := *o
	c.Chapters = make([]course.ChapterSpec, len(o.Chapters))
	for i, ch := range o.Chapters {
		ch.LearningObjectives = slices.Clone(ch.LearningObjectives)
		c.Chapters[i] = ch
	}
	return &c
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
