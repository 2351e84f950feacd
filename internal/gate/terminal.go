package gate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jywlabs/coursewright/internal/course"
	"github.com/jywlabs/coursewright/internal/display"
)

// ErrInputClosed is returned when stdin reaches EOF at a prompt.
var ErrInputClosed = errors.New("input closed")

// scopePrefix marks feedback that changes course scope.
const scopePrefix = "scope:"

// Terminal reads decisions line by line from a reader.
type Terminal struct {
	in      *bufio.Reader
	out     io.Writer
	display *display.Display
	lines   chan lineResult
}

type lineResult struct {
	text string
	err  error
}

// NewTerminal creates a gate reading from in and rendering to d.
func NewTerminal(in io.Reader, d *display.Display) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: d.Writer(), display: d}
}

// readLine reads one line, returning early when ctx ends. A pending read
// is kept for the next call so no input is lost.
func (t *Terminal) readLine(ctx context.Context) (string, error) {
	if t.lines == nil {
		t.lines = make(chan lineResult, 1)
		go func() {
			s, err := t.in.ReadString('\n')
			t.lines <- lineResult{text: s, err: err}
		}()
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-t.lines:
		t.lines = nil
		if r.err != nil {
			if errors.Is(r.err, io.EOF) && strings.TrimSpace(r.text) != "" {
				return strings.TrimSpace(r.text), nil
			}
			if errors.Is(r.err, io.EOF) {
				return "", ErrInputClosed
			}
			return "", r.err
		}
		return strings.TrimSpace(r.text), nil
	}
}

func (t *Terminal) ask(ctx context.Context, question string) (string, error) {
	fmt.Fprintf(t.out, "%s ", display.StyleInfo.Render(question))
	return t.readLine(ctx)
}

// CollectRequest prompts for topic, audience and multi-line requirements
// terminated by a blank line.
func (t *Terminal) CollectRequest(ctx context.Context) (course.Request, error) {
	var req course.Request
	for {
		topic, err := t.ask(ctx, "Course topic:")
		if err != nil {
			return req, err
		}
		req.Topic = topic
		if req.Validate() == nil {
			break
		}
		fmt.Fprintln(t.out, display.StyleWarning.Render("   topic must not be empty"))
	}

	audience, err := t.ask(ctx, "Target audience:")
	if err != nil {
		return req, err
	}
	req.Audience = audience

	fmt.Fprintln(t.out, display.StyleInfo.Render("Requirements (finish with an empty line):"))
	var lines []string
	for {
		line, err := t.readLine(ctx)
		if errors.Is(err, ErrInputClosed) {
			break
		}
		if err != nil {
			return req, err
		}
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	req.Requirements = strings.Join(lines, "\n")
	return req, nil
}

// Decide shows the artifact and asks accept, revise or quit. With numbered
// options, answering a number accepts and picks that option.
func (t *Terminal) Decide(ctx context.Context, p Prompt) (Decision, error) {
	title := p.Title
	if p.Revision > 0 {
		title = fmt.Sprintf("%s (revision %d/%d)", p.Title, p.Revision, p.Cap)
	}
	t.display.ShowArtifact(title, p.Body)

	question := "[a]ccept / [r]evise / [q]uit:"
	if p.Options > 0 {
		question = fmt.Sprintf("[a]ccept / [1-%d] accept and pick / [r]evise / [q]uit:", p.Options)
	}
	feedbackQuestion := "Feedback (prefix with \"scope:\" to change scope):"
	if p.Stage == "review" {
		feedbackQuestion = "Chapter to revise and feedback (e.g. \"2: add an example\"; no number revises the outline):"
	}

	for {
		choice, err := t.ask(ctx, question)
		if errors.Is(err, ErrInputClosed) {
			return Decision{Action: Abort}, nil
		}
		if err != nil {
			return Decision{}, err
		}

		switch strings.ToLower(choice) {
		case "a", "accept":
			return Decision{Action: Accept}, nil
		case "q", "quit":
			return Decision{Action: Abort}, nil
		case "r", "revise":
			fb, err := t.ask(ctx, feedbackQuestion)
			if errors.Is(err, ErrInputClosed) {
				return Decision{Action: Abort}, nil
			}
			if err != nil {
				return Decision{}, err
			}
			return ParseFeedback(fb), nil
		}
		if n, err := strconv.Atoi(choice); err == nil && n >= 1 && n <= p.Options {
			return Decision{Action: Accept, Choice: n}, nil
		}
		fmt.Fprintln(t.out, display.StyleWarning.Render("   please answer a, r or q"))
	}
}

// ParseFeedback turns a feedback line into a revise decision.
func ParseFeedback(line string) Decision {
	d := Decision{Action: Revise, Feedback: strings.TrimSpace(line)}
	if len(d.Feedback) >= len(scopePrefix) && strings.EqualFold(d.Feedback[:len(scopePrefix)], scopePrefix) {
		d.ScopeChange = true
		d.Feedback = strings.TrimSpace(d.Feedback[len(scopePrefix):])
	}
	return d.Normalize()
}

// Escalate asks what to do when a revision cap is reached.
func (t *Terminal) Escalate(ctx context.Context, p CapPrompt) (Escalation, error) {
	t.display.ShowWarning("%s reached its revision cap (%d/%d)", p.Stage, p.Revision, p.Cap)
	for {
		choice, err := t.ask(ctx, "[f]orce accept / [r]aise cap / [q]uit:")
		if err != nil {
			return "", err
		}
		switch strings.ToLower(choice) {
		case "f", "force":
			return ForceAccept, nil
		case "r", "raise":
			return RaiseCap, nil
		case "q", "quit":
			return AbortCap, nil
		}
		fmt.Fprintln(t.out, display.StyleWarning.Render("   please answer f, r or q"))
	}
}

// RecoverFailure shows the failure and asks retry or quit.
func (t *Terminal) RecoverFailure(ctx context.Context, p FailurePrompt) (Recovery, error) {
	t.display.ShowError(p.Stage, p.Kind, p.Err.Error(), "Retry the stage or quit; accepted work is saved to the checkpoint.")
	for {
		choice, err := t.ask(ctx, "[r]etry / [q]uit:")
		if err != nil {
			return "", err
		}
		switch strings.ToLower(choice) {
		case "r", "retry":
			return Retry, nil
		case "q", "quit":
			return AbortFailure, nil
		}
		fmt.Fprintln(t.out, display.StyleWarning.Render("   please answer r or q"))
	}
}
