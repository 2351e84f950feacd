package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/jywlabs/coursewright/internal/agent"
	"github.com/jywlabs/coursewright/internal/checkpoint"
	"github.com/jywlabs/coursewright/internal/config"
	"github.com/jywlabs/coursewright/internal/course"
	"github.com/jywlabs/coursewright/internal/display"
	"github.com/jywlabs/coursewright/internal/gate"
	"github.com/jywlabs/coursewright/internal/llm"
	"github.com/jywlabs/coursewright/internal/output"
	"github.com/jywlabs/coursewright/internal/search"
)

// EmptyOutlineFeedback is the automatic revise sent for an outline without chapters.
const EmptyOutlineFeedback = "outline must have ≥1 chapter"

// Researcher produces the research brief.
type Researcher interface {
	Research(ctx context.Context, req course.Request, feedback string) (*course.ResearchBrief, error)
}

// Author drafts the outline and chapters.
type Author interface {
	DraftOutline(ctx context.Context, req course.Request, brief *course.ResearchBrief, previous *course.Outline, feedback string) (*course.Outline, error)
	DraftChapter(ctx context.Context, req course.Request, brief *course.ResearchBrief, outline *course.Outline, index int, prior []course.ChapterDraft, feedback string) (*course.ChapterDraft, error)
}

// Reviewer audits the finished course.
type Reviewer interface {
	Review(ctx context.Context, req course.Request, brief *course.ResearchBrief, outline *course.Outline, drafts []course.ChapterDraft) (*course.ReviewReport, error)
}

// Agents bundles the three personas.
type Agents struct {
	Researcher Researcher
	Author     Author
	Reviewer   Reviewer
}

// Config holds controller policy.
type Config struct {
	MaxRevisions int                 // per-stage revision cap
	GateResearch bool                // ask the user to approve the research brief
	GateReview   bool                // ask the user to approve the review report
	Invalidation config.Invalidation // which later chapters a chapter revise discards
	Logger       *slog.Logger
	Display      *display.Display
	Checkpoint   *checkpoint.Store   // nil disables the recoverable dump
	Header       display.SessionInfo // provider details for the session banner
}

// Controller is the session state machine.
type Controller struct {
	cfg     Config
	agents  Agents
	gate    gate.Gate
	intake  gate.Intake
	logger  *slog.Logger
	display *display.Display
}

// New creates a controller.
func New(cfg Config, agents Agents, g gate.Gate, intake gate.Intake) *Controller {
	if cfg.MaxRevisions <= 0 {
		cfg.MaxRevisions = config.DefaultSettings().MaxRevisions
	}
	if cfg.Invalidation == "" {
		cfg.Invalidation = config.InvalidateAll
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Display == nil {
		cfg.Display = display.NewDisplay(io.Discard)
	}
	return &Controller{
		cfg:     cfg,
		agents:  agents,
		gate:    g,
		intake:  intake,
		logger:  cfg.Logger,
		display: cfg.Display,
	}
}

// Run drives s until it is done, aborted or failed. On success it returns
// the final course document. The session is checkpointed after every
// freeze, on abort and on completion.
func (c *Controller) Run(ctx context.Context, s *Session) (*output.Document, error) {
	if s.State != StateInit {
		c.showHeader(s, true)
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, c.abort(s, err)
		}

		s.Trace = append(s.Trace, s.State)
		c.logger.Debug("entering state", "state", s.State, "session", s.ID)

		var err error
		switch s.State {
		case StateInit:
			err = c.runInit(ctx, s)
		case StateResearch:
			err = c.runResearch(ctx, s)
		case StateOutline:
			err = c.runOutline(ctx, s)
		case StateChapter:
			err = c.runChapter(ctx, s)
		case StateReview:
			err = c.runReview(ctx, s)
		case StateDone:
			return c.finish(s)
		default:
			return nil, fmt.Errorf("unknown state: %s", s.State)
		}
		if err != nil {
			return nil, err
		}
	}
}

func (c *Controller) runInit(ctx context.Context, s *Session) error {
	if s.Request.Topic == "" {
		req, err := c.intake.CollectRequest(ctx)
		if err != nil {
			return c.abort(s, err)
		}
		if err := req.Validate(); err != nil {
			return c.abort(s, err)
		}
		s.Request = req
	}
	c.logger.Info("session started", "session", s.ID, "topic", s.Request.Topic)
	c.showHeader(s, false)
	s.State = StateResearch
	return nil
}

func (c *Controller) showHeader(s *Session, resumed bool) {
	info := c.cfg.Header
	info.ID = s.ID
	info.Topic = s.Request.Topic
	info.MaxRevisions = c.cfg.MaxRevisions
	info.Resumed = resumed
	c.display.ShowSessionHeader(info)
}

func (c *Controller) runResearch(ctx context.Context, s *Session) error {
	c.display.ShowStage(string(StateResearch), c.revisionLabel(s, RevResearch))

	var brief *course.ResearchBrief
	err := c.stage(ctx, s, StateResearch, func() error {
		c.display.StartSpinner("小美 is researching " + s.Request.Topic)
		defer c.display.StopSpinner()
		var err error
		brief, err = c.agents.Researcher.Research(ctx, s.Request, s.Feedback)
		return err
	})
	if err != nil {
		return err
	}

	if c.cfg.GateResearch {
		d, err := c.gate.Decide(ctx, gate.Prompt{
			Stage: string(StateResearch), Title: "Research brief", Body: course.FormatBrief(brief),
			Revision: s.Revisions[RevResearch], Cap: c.cap(s, RevResearch),
			Options: len(brief.SuggestedDirections),
		})
		if err != nil {
			return c.abort(s, err)
		}
		switch d.Action {
		case gate.Accept:
			if d.Choice > 0 {
				if err := brief.Choose(d.Choice); err != nil {
					c.logger.Warn("ignoring direction choice", "error", err)
				} else {
					c.logger.Info("direction chosen", "direction", brief.Direction)
				}
			}
		case gate.Abort:
			return c.abort(s, nil)
		case gate.Revise:
			force, err := c.spendRevision(ctx, s, StateResearch, RevResearch, d.Feedback)
			if err != nil {
				return err
			}
			if !force {
				s.Feedback = d.Feedback
				return nil
			}
		}
	}

	s.Artifacts.FreezeBrief(brief)
	if !s.ScopeChange {
		s.Feedback = ""
	}
	s.ScopeChange = false
	s.State = StateOutline
	c.save(s)
	return nil
}

func (c *Controller) runOutline(ctx context.Context, s *Session) error {
	c.display.ShowStage(string(StateOutline), c.revisionLabel(s, RevOutline))

	previous := s.previousOutline
	if previous == nil {
		previous = s.Artifacts.Outline()
	}
	brief := s.Artifacts.Brief()

	var outline *course.Outline
	err := c.stage(ctx, s, StateOutline, func() error {
		c.display.StartSpinner("小青 is drafting the outline")
		defer c.display.StopSpinner()
		var err error
		outline, err = c.agents.Author.DraftOutline(ctx, s.Request, brief, previous, s.Feedback)
		return err
	})
	if err != nil {
		return err
	}

	if outline.Len() == 0 {
		c.display.ShowWarning("the outline has no chapters; asking for a new one")
		force, err := c.spendRevision(ctx, s, StateOutline, RevOutline, EmptyOutlineFeedback)
		if err != nil {
			return err
		}
		if force {
			c.display.ShowWarning("an outline without chapters cannot be accepted")
			return c.capExceeded(s, StateOutline)
		}
		s.Feedback = EmptyOutlineFeedback
		return nil
	}

	d, err := c.gate.Decide(ctx, gate.Prompt{
		Stage: string(StateOutline), Title: "Course outline", Body: course.FormatOutline(outline),
		Revision: s.Revisions[RevOutline], Cap: c.cap(s, RevOutline),
	})
	if err != nil {
		return c.abort(s, err)
	}

	switch d.Action {
	case gate.Abort:
		return c.abort(s, nil)
	case gate.Revise:
		force, err := c.spendRevision(ctx, s, StateOutline, RevOutline, d.Feedback)
		if err != nil {
			return err
		}
		if !force {
			if removed := s.Artifacts.Invalidate(1); len(removed) > 0 {
				c.logger.Info("outline revised, chapters discarded", "chapters", removed)
			}
			s.ReviewNotes = make(map[int]string)
			s.previousOutline = outline
			s.Feedback = d.Feedback
			if d.ScopeChange {
				s.ScopeChange = true
				s.State = StateResearch
			}
			return nil
		}
	}

	if err := s.Artifacts.FreezeOutline(outline); err != nil {
		return &StageError{Stage: StateOutline, Err: err}
	}
	s.previousOutline = nil
	s.Feedback = ""
	s.ReviewNotes = make(map[int]string)
	s.NextChapter = 1
	s.State = StateChapter
	c.save(s)
	return nil
}

func (c *Controller) runChapter(ctx context.Context, s *Session) error {
	outline := s.Artifacts.Outline()
	i := s.NextChapter
	if _, accepted := s.Artifacts.Chapter(i); accepted || i < 1 || i > outline.Len() {
		i = s.Artifacts.NextPending()
		s.NextChapter = i
	}
	if i == 0 {
		s.State = StateReview
		return nil
	}
	spec, _ := outline.Chapter(i)
	key := RevChapter(i)
	c.display.ShowStage(fmt.Sprintf("chapter %d/%d", i, outline.Len()), c.revisionLabel(s, key))

	feedback := s.Feedback
	if note := s.ReviewNotes[i]; note != "" {
		feedback = joinFeedback(note, s.Feedback)
	}
	brief := s.Artifacts.Brief()
	prior := s.Artifacts.AcceptedBefore(i)

	var draft *course.ChapterDraft
	err := c.stage(ctx, s, StateChapter, func() error {
		c.display.StartSpinner(fmt.Sprintf("小青 is writing chapter %d: %s", i, spec.Title))
		defer c.display.StopSpinner()
		var err error
		draft, err = c.agents.Author.DraftChapter(ctx, s.Request, brief, outline, i, prior, feedback)
		return err
	})
	if err != nil {
		return err
	}
	draft.Revision = s.Revisions[key]

	d, err := c.gate.Decide(ctx, gate.Prompt{
		Stage: string(StateChapter), Title: fmt.Sprintf("CHAPTER %d: %s", i, draft.Title), Body: draft.Body,
		Revision: s.Revisions[key], Cap: c.cap(s, key),
	})
	if err != nil {
		return c.abort(s, err)
	}

	switch d.Action {
	case gate.Abort:
		return c.abort(s, nil)
	case gate.Revise:
		force, err := c.spendRevision(ctx, s, StateChapter, key, d.Feedback)
		if err != nil {
			return err
		}
		if !force {
			draft.Status = course.DraftRejected
			c.logger.Debug("chapter rejected", "chapter", i, "revision", s.Revisions[key])
			if invalidatesLater(c.cfg.Invalidation, d) {
				if removed := s.Artifacts.Invalidate(i + 1); len(removed) > 0 {
					c.logger.Info("later chapters discarded", "chapter", i, "discarded", removed)
				}
			}
			s.Feedback = d.Feedback
			return nil
		}
	}

	if err := s.Artifacts.FreezeChapter(draft); err != nil {
		return &StageError{Stage: StateChapter, Err: err}
	}
	delete(s.ReviewNotes, i)
	s.Feedback = ""
	if next := s.Artifacts.NextPending(); next == 0 {
		s.NextChapter = 0
		s.State = StateReview
	} else {
		s.NextChapter = next
	}
	c.save(s)
	return nil
}

func (c *Controller) runReview(ctx context.Context, s *Session) error {
	c.display.ShowStage(string(StateReview), c.revisionLabel(s, RevReview))

	brief := s.Artifacts.Brief()
	outline := s.Artifacts.Outline()
	drafts := s.Artifacts.AcceptedChapters()

	var report *course.ReviewReport
	err := c.stage(ctx, s, StateReview, func() error {
		c.display.StartSpinner("小尹 is reviewing the course")
		defer c.display.StopSpinner()
		var err error
		report, err = c.agents.Reviewer.Review(ctx, s.Request, brief, outline, drafts)
		return err
	})
	if err != nil {
		return err
	}
	report.Normalize()

	forced := false
	if report.Verdict == course.VerdictRevise {
		force, err := c.spendRevision(ctx, s, StateReview, RevReview, strings.Join(report.BlockMessages(0), "; "))
		if err != nil {
			return err
		}
		if !force {
			c.rework(s, report)
			return nil
		}
		forced = true
	}

	if c.cfg.GateReview {
		d, err := c.gate.Decide(ctx, gate.Prompt{
			Stage: string(StateReview), Title: "Review report", Body: course.FormatReport(report),
			Revision: s.Revisions[RevReview], Cap: c.cap(s, RevReview),
		})
		if err != nil {
			return c.abort(s, err)
		}
		switch d.Action {
		case gate.Abort:
			return c.abort(s, nil)
		case gate.Revise:
			force, err := c.spendRevision(ctx, s, StateReview, RevReview, d.Feedback)
			if err != nil {
				return err
			}
			if !force {
				c.userRework(s, outline.Len(), d.Feedback)
				return nil
			}
		}
	}

	s.ForceAccepted = forced
	if err := s.Artifacts.FreezeReview(report); err != nil {
		return &StageError{Stage: StateReview, Err: err}
	}
	s.State = StateDone
	c.save(s)
	return nil
}

// rework routes a blocking review back upstream: to the lowest blocked
// chapter, or to the outline when only course-wide issues block.
func (c *Controller) rework(s *Session, report *course.ReviewReport) {
	global := report.BlockMessages(0)
	blocked := report.BlockingChapters()

	if len(blocked) == 0 {
		c.display.ShowWarning("reviewer blocked the course structure; revising the outline")
		reviseOutline(s, strings.Join(global, "\n"))
		return
	}

	first := blocked[0]
	notes := make(map[int]string, len(blocked))
	for _, i := range blocked {
		notes[i] = strings.Join(report.BlockMessages(i), "\n")
	}
	if len(global) > 0 {
		notes[first] = strings.Join(append(global, notes[first]), "\n")
	}

	c.display.ShowWarning("reviewer blocked chapter(s) %v; reworking from chapter %d", blocked, first)
	removed := reworkFrom(s, first, notes)
	c.logger.Info("review rework", "blocked", blocked, "discarded", removed)
}

// userRework routes a revise at the review gate. Feedback of the form
// "N: text" reworks chapter N and every chapter after it; anything else
// revises the outline.
func (c *Controller) userRework(s *Session, chapters int, feedback string) {
	i, note := parseChapterFeedback(feedback, chapters)
	if i == 0 {
		c.display.ShowWarning("revising the outline")
		reviseOutline(s, note)
		return
	}
	c.display.ShowWarning("reworking from chapter %d", i)
	removed := reworkFrom(s, i, map[int]string{i: note})
	c.logger.Info("review rework requested", "chapter", i, "discarded", removed)
}

func reviseOutline(s *Session, feedback string) {
	s.Artifacts.DiscardReview()
	s.previousOutline = nil
	s.Feedback = feedback
	s.State = StateOutline
}

// reworkFrom discards chapter first and everything after it and resumes
// drafting there, handing each chapter its note.
func reworkFrom(s *Session, first int, notes map[int]string) []int {
	removed := s.Artifacts.Invalidate(first)
	s.ReviewNotes = notes
	s.Feedback = ""
	s.NextChapter = first
	s.State = StateChapter
	return removed
}

var chapterFeedback = regexp.MustCompile(`(?i)^\s*(?:chapter|ch\.?|第)?\s*(\d+)\s*章?\s*[:：]\s*(.*)$`)

// parseChapterFeedback splits "N: text" into a chapter index in 1..chapters
// and its note. It returns 0 and the whole feedback otherwise.
func parseChapterFeedback(feedback string, chapters int) (int, string) {
	m := chapterFeedback.FindStringSubmatch(feedback)
	if m == nil {
		return 0, feedback
	}
	i, err := strconv.Atoi(m[1])
	if err != nil || i < 1 || i > chapters {
		return 0, feedback
	}
	note := strings.TrimSpace(m[2])
	if note == "" {
		note = gate.DefaultFeedback
	}
	return i, note
}

// joinFeedback puts the reviewer's note ahead of the user's feedback.
func joinFeedback(note, user string) string {
	if user == "" {
		return note
	}
	return note + "\n" + user
}

func (c *Controller) finish(s *Session) (*output.Document, error) {
	if err := s.Artifacts.Verify(); err != nil {
		return nil, &StageError{Stage: StateDone, Err: err}
	}
	c.save(s)
	c.logger.Info("session complete", "session", s.ID, "chapters", len(s.Artifacts.AcceptedChapters()))
	return &output.Document{
		Request:       s.Request,
		Brief:         s.Artifacts.Brief(),
		Outline:       s.Artifacts.Outline(),
		Chapters:      s.Artifacts.AcceptedChapters(),
		Review:        s.Artifacts.Review(),
		ForceAccepted: s.ForceAccepted,
	}, nil
}

// stage runs an agent call, asking the user to retry or abort on failure.
func (c *Controller) stage(ctx context.Context, s *Session, st State, call func() error) error {
	for {
		err := call()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return c.abort(s, err)
		}

		kind := ErrorKind(err)
		c.logger.Warn("stage failed", "stage", st, "kind", kind, "error", err)
		rec, gerr := c.gate.RecoverFailure(ctx, gate.FailurePrompt{Stage: string(st), Kind: kind, Err: err})
		if gerr != nil {
			return c.abort(s, gerr)
		}
		if rec != gate.Retry {
			c.save(s)
			return &StageError{Stage: st, Err: err}
		}
		c.logger.Info("retrying stage", "stage", st)
	}
}

// spendRevision charges one revision to key. At the cap it escalates:
// raise_cap extends the cap and charges the revision, force_accept
// returns true, abort ends the session.
func (c *Controller) spendRevision(ctx context.Context, s *Session, st State, key, feedback string) (bool, error) {
	limit := c.cap(s, key)
	if s.Revisions[key] >= limit {
		esc, err := c.gate.Escalate(ctx, gate.CapPrompt{Stage: key, Revision: s.Revisions[key], Cap: limit, Feedback: feedback})
		if err != nil {
			return false, c.abort(s, err)
		}
		switch esc {
		case gate.ForceAccept:
			c.logger.Info("revision cap reached, accepting as is", "stage", key)
			return true, nil
		case gate.RaiseCap:
			s.Caps[key] = limit + c.cfg.MaxRevisions
			c.logger.Info("revision cap raised", "stage", key, "cap", s.Caps[key])
		default:
			return false, c.capExceeded(s, st)
		}
	}
	s.Revisions[key]++
	return false, nil
}

func (c *Controller) capExceeded(s *Session, st State) error {
	c.save(s)
	return fmt.Errorf("%s: %w", st, ErrRevisionCapExceeded)
}

func (c *Controller) cap(s *Session, key string) int {
	if v, ok := s.Caps[key]; ok && v > 0 {
		return v
	}
	return c.cfg.MaxRevisions
}

func (c *Controller) revisionLabel(s *Session, key string) string {
	if n := s.Revisions[key]; n > 0 {
		return fmt.Sprintf("revision %d/%d", n, c.cap(s, key))
	}
	return ""
}

// abort checkpoints the session and returns ErrUserAborted.
func (c *Controller) abort(s *Session, cause error) error {
	c.save(s)
	if cause != nil && !errors.Is(cause, gate.ErrInputClosed) {
		c.logger.Info("session aborted", "state", s.State, "cause", cause)
		return fmt.Errorf("%w: %v", ErrUserAborted, cause)
	}
	c.logger.Info("session aborted", "state", s.State)
	return ErrUserAborted
}

func (c *Controller) save(s *Session) {
	if !c.cfg.Checkpoint.Enabled() {
		return
	}
	if err := c.cfg.Checkpoint.Save(s.Dump()); err != nil {
		c.logger.Warn("failed to save checkpoint", "path", c.cfg.Checkpoint.Path, "error", err)
		return
	}
	c.logger.Debug("checkpoint saved", "state", s.State, "path", c.cfg.Checkpoint.Path)
}

// objectiveKeywords flag chapter feedback that changes scope or objectives.
var objectiveKeywords = []string{"scope", "objective", "目标", "范围"}

// invalidatesLater reports whether a chapter revise discards later chapters.
func invalidatesLater(policy config.Invalidation, d gate.Decision) bool {
	if policy != config.InvalidateObjective || d.ScopeChange {
		return true
	}
	fb := strings.ToLower(d.Feedback)
	for _, kw := range objectiveKeywords {
		if strings.Contains(fb, kw) {
			return true
		}
	}
	return false
}

// ErrorKind names the kind of a stage failure for the user.
func ErrorKind(err error) string {
	if k := llm.Kind(err); k != "" {
		return k
	}
	switch {
	case errors.Is(err, agent.ErrMalformedOutput):
		return "AgentMalformedOutput"
	case errors.Is(err, search.ErrUnavailable):
		return "SearchUnavailable"
	}
	return "Error"
}
