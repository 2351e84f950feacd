package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/jywlabs/coursewright/internal/config"
	"github.com/jywlabs/coursewright/internal/course"
	"github.com/jywlabs/coursewright/internal/prompt"
)

const reviewFormat = `Respond with a single JSON object and nothing else:
{"overall_verdict": "approve" | "revise", "issues": [{"chapter_index": <0 for course-wide, else 1..N>, "severity": "info" | "warn" | "block", "message": "<what is wrong>"}, ...]}`

// Reviewer is 小尹: it audits the finished course and reports issues.
type Reviewer struct {
	rt *Runtime
}

// NewReviewer creates a reviewer.
func NewReviewer(rt *Runtime) *Reviewer {
	return &Reviewer{rt: rt}
}

// Review audits the accepted drafts. The verdict is normalized so that it
// is approve exactly when no issue blocks.
func (r *Reviewer) Review(ctx context.Context, req course.Request, brief *course.ResearchBrief, outline *course.Outline, drafts []course.ChapterDraft) (*course.ReviewReport, error) {
	parts := make([]string, len(drafts))
	for i := range drafts {
		parts[i] = course.FormatChapter(&drafts[i])
	}
	vars := prompt.Vars{
		"topic":        req.Topic,
		"audience":     req.Audience,
		"requirements": req.Requirements,
		"brief":        course.FormatBrief(brief),
		"directions":   bulletList(brief.FocusDirections()),
		"outline":      course.FormatOutline(outline),
		"chapters":     strings.Join(parts, "\n\n"),
	}
	n := outline.Len()

	var report course.ReviewReport
	err := r.rt.run(ctx, config.TaskReview, vars, reviewFormat, func(raw string) error {
		var rep course.ReviewReport
		if err := course.DecodeJSON(raw, &rep); err != nil {
			return err
		}
		for i, is := range rep.Issues {
			rep.Issues[i].Severity = course.Severity(strings.ToLower(strings.TrimSpace(string(is.Severity))))
			if !rep.Issues[i].Severity.Valid() {
				return fmt.Errorf("issue %d has unknown severity %q", i+1, is.Severity)
			}
			if is.ChapterIndex < 0 || is.ChapterIndex > n {
				return fmt.Errorf("issue %d refers to chapter %d, outline has %d chapters", i+1, is.ChapterIndex, n)
			}
			if strings.TrimSpace(is.Message) == "" {
				return fmt.Errorf("issue %d has no message", i+1)
			}
		}
		report = rep
		return nil
	})
	if err != nil {
		return nil, err
	}

	if claimed := report.Verdict; report.Normalize() {
		r.rt.logger.Info("review verdict normalized", "claimed", claimed, "verdict", report.Verdict)
	}
	return &report, nil
}
