package agent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jywlabs/coursewright/internal/config"
	"github.com/jywlabs/coursewright/internal/course"
	"github.com/jywlabs/coursewright/internal/prompt"
)

// Soft bounds on chapter length; outside them only a debug line is logged.
const (
	MinChapterWords = 500
	MaxChapterWords = 3000
)

const outlineFormat = `Respond with a single JSON object and nothing else:
{"title": "<course title>", "chapters": [{"title": "<unique chapter title>", "synopsis": "<one paragraph>", "learning_objectives": ["<objective>", ...]}, ...]}`

const chapterFormat = `Respond with the chapter body as plain text only. Do not repeat the chapter heading and do not wrap the text in code fences.`

// chapterHeading matches a leading "Chapter 3: Title" line the model may echo.
var chapterHeading = regexp.MustCompile(`(?i)^\s*#*\s*chapter\s+\d+\s*[:.-][^\n]*\n`)

// Author is 小青: it drafts the outline and the chapters.
type Author struct {
	rt *Runtime
}

// NewAuthor creates an author.
func NewAuthor(rt *Runtime) *Author {
	return &Author{rt: rt}
}

// DraftOutline drafts an outline from the brief. previous and feedback are
// set on revisions. An outline with no chapters is returned without error.
func (a *Author) DraftOutline(ctx context.Context, req course.Request, brief *course.ResearchBrief, previous *course.Outline, feedback string) (*course.Outline, error) {
	vars := prompt.Vars{
		"topic":            req.Topic,
		"audience":         req.Audience,
		"requirements":     req.Requirements,
		"brief":            course.FormatBrief(brief),
		"directions":       bulletList(brief.FocusDirections()),
		"previous_outline": course.FormatOutline(previous),
		"feedback":         feedback,
	}

	var outline course.Outline
	err := a.rt.run(ctx, config.TaskOutline, vars, outlineFormat, func(raw string) error {
		var o course.Outline
		if err := course.DecodeJSON(raw, &o); err != nil {
			return err
		}
		o.Title = strings.TrimSpace(o.Title)
		if o.Title == "" {
			o.Title = req.Topic
		}
		for i := range o.Chapters {
			o.Chapters[i].Title = strings.TrimSpace(o.Chapters[i].Title)
			o.Chapters[i].Synopsis = strings.TrimSpace(o.Chapters[i].Synopsis)
		}
		o.Renumber()
		if err := o.Validate(); err != nil {
			return err
		}
		outline = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.rt.logger.Debug("outline drafted", "chapters", outline.Len(), "title", outline.Title)
	return &outline, nil
}

// DraftChapter writes chapter index of outline. prior holds the accepted
// drafts before it, in order.
func (a *Author) DraftChapter(ctx context.Context, req course.Request, brief *course.ResearchBrief, outline *course.Outline, index int, prior []course.ChapterDraft, feedback string) (*course.ChapterDraft, error) {
	spec, ok := outline.Chapter(index)
	if !ok {
		return nil, fmt.Errorf("chapter %d is not in the outline (%d chapters)", index, outline.Len())
	}

	priorText := "(none)"
	if len(prior) > 0 {
		parts := make([]string, len(prior))
		for i := range prior {
			parts[i] = course.FormatChapter(&prior[i])
		}
		priorText = strings.Join(parts, "\n\n")
	}

	vars := prompt.Vars{
		"topic":               req.Topic,
		"audience":            req.Audience,
		"requirements":        req.Requirements,
		"brief":               course.FormatBrief(brief),
		"course_title":        outline.Title,
		"outline":             course.FormatOutline(outline),
		"chapter_index":       strconv.Itoa(index),
		"chapter_title":       spec.Title,
		"chapter_synopsis":    spec.Synopsis,
		"learning_objectives": bulletList(spec.LearningObjectives),
		"prior_chapters":      priorText,
		"feedback":            feedback,
	}

	var body string
	err := a.rt.run(ctx, config.TaskChapter, vars, chapterFormat, func(raw string) error {
		text := stripFences(raw)
		text = strings.TrimSpace(chapterHeading.ReplaceAllString(text, ""))
		if text == "" {
			return fmt.Errorf("chapter body is empty")
		}
		body = text
		return nil
	})
	if err != nil {
		return nil, err
	}

	draft := &course.ChapterDraft{Index: index, Title: spec.Title, Body: body, Status: course.DraftPending}
	if words := draft.WordCount(); words < MinChapterWords || words > MaxChapterWords {
		a.rt.logger.Debug("chapter length outside the usual range", "chapter", index, "words", words,
			"min", MinChapterWords, "max", MaxChapterWords)
	}
	return draft, nil
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, it := range items {
		sb.WriteString("- ")
		sb.WriteString(it)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
