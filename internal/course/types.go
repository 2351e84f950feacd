package course

import (
	"fmt"
	"sort"
	"strings"
)

// MaxChapters bounds the number of chapters in an outline.
const MaxChapters = 12

// Request is what the human asks for at session start.
type Request struct {
	Topic        string `json:"topic"`
	Audience     string `json:"audience"`
	Requirements string `json:"requirements"`
}

// Validate checks that the request can start a session.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return fmt.Errorf("topic must not be empty")
	}
	return nil
}

// Source is a citation backing a research direction.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ResearchBrief is the researcher's output.
type ResearchBrief struct {
	Summary             string   `json:"summary"`
	SuggestedDirections []string `json:"suggested_directions"`
	Sources             []Source `json:"sources"`
	// Direction is the suggested direction the user picked, if any.
	Direction string `json:"direction,omitempty"`
}

// Choose sets Direction to suggested direction n (1-based).
func (b *ResearchBrief) Choose(n int) error {
	if n < 1 || n > len(b.SuggestedDirections) {
		return fmt.Errorf("direction %d out of range 1..%d", n, len(b.SuggestedDirections))
	}
	b.Direction = b.SuggestedDirections[n-1]
	return nil
}

// FocusDirections returns the chosen direction, or every suggestion when
// none was chosen.
func (b *ResearchBrief) FocusDirections() []string {
	if b == nil {
		return nil
	}
	if b.Direction != "" {
		return []string{b.Direction}
	}
	return b.SuggestedDirections
}

// ChapterSpec describes one chapter of an outline.
type ChapterSpec struct {
	Index              int      `json:"index"`
	Title              string   `json:"title"`
	Synopsis           string   `json:"synopsis"`
	LearningObjectives []string `json:"learning_objectives"`
}

// Outline is the author's course structure.
type Outline struct {
	Title    string        `json:"title"`
	Chapters []ChapterSpec `json:"chapters"`
}

// Len returns the number of chapters.
func (o *Outline) Len() int {
	if o == nil {
		return 0
	}
	return len(o.Chapters)
}

// Chapter returns the spec with the given 1-based index.
func (o *Outline) Chapter(index int) (ChapterSpec, bool) {
	if o == nil || index < 1 || index > len(o.Chapters) {
		return ChapterSpec{}, false
	}
	return o.Chapters[index-1], true
}

// Renumber assigns dense 1-based indices in chapter order.
func (o *Outline) Renumber() {
	for i := range o.Chapters {
		o.Chapters[i].Index = i + 1
	}
}

// Validate checks index density, title uniqueness and the chapter bound.
// An empty outline is valid here; the controller decides what to do with it.
func (o *Outline) Validate() error {
	if len(o.Chapters) > MaxChapters {
		return fmt.Errorf("outline has %d chapters, at most %d allowed", len(o.Chapters), MaxChapters)
	}
	seen := make(map[string]int, len(o.Chapters))
	for i, ch := range o.Chapters {
		if ch.Index != i+1 {
			return fmt.Errorf("chapter %d has index %d, indices must be dense and 1-based", i+1, ch.Index)
		}
		title := strings.ToLower(strings.TrimSpace(ch.Title))
		if title == "" {
			return fmt.Errorf("chapter %d has an empty title", ch.Index)
		}
		if prev, dup := seen[title]; dup {
			return fmt.Errorf("chapters %d and %d share the title %q", prev, ch.Index, ch.Title)
		}
		seen[title] = ch.Index
	}
	return nil
}

// DraftStatus tracks a chapter draft through its gate.
type DraftStatus string

const (
	DraftPending  DraftStatus = "pending"
	DraftAccepted DraftStatus = "accepted"
	DraftRejected DraftStatus = "rejected"
)

// ChapterDraft is one written chapter.
type ChapterDraft struct {
	Index    int         `json:"index"`
	Title    string      `json:"title"`
	Body     string      `json:"body"`
	Status   DraftStatus `json:"status"`
	Revision int         `json:"revision"`
}

// WordCount returns the number of whitespace-separated words in the body.
func (d *ChapterDraft) WordCount() int {
	return len(strings.Fields(d.Body))
}

// Verdict is the reviewer's overall decision.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictRevise  Verdict = "revise"
)

// Severity grades a review issue.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityBlock Severity = "block"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarn, SeverityBlock:
		return true
	}
	return false
}

// Issue is one problem found by the reviewer. ChapterIndex 0 means course-wide.
type Issue struct {
	ChapterIndex int      `json:"chapter_index"`
	Severity     Severity `json:"severity"`
	Message      string   `json:"message"`
}

// ReviewReport is the reviewer's output.
type ReviewReport struct {
	Verdict Verdict `json:"overall_verdict"`
	Issues  []Issue `json:"issues"`
}

// Normalize sets the verdict from the issues: approve iff nothing blocks.
// It reports whether the verdict changed.
func (r *ReviewReport) Normalize() bool {
	want := VerdictApprove
	for _, is := range r.Issues {
		if is.Severity == SeverityBlock {
			want = VerdictRevise
			break
		}
	}
	changed := r.Verdict != want
	r.Verdict = want
	return changed
}

// BlockingChapters returns the sorted distinct chapter indices with blocking issues.
func (r *ReviewReport) BlockingChapters() []int {
	seen := make(map[int]bool)
	var out []int
	for _, is := range r.Issues {
		if is.Severity == SeverityBlock && is.ChapterIndex > 0 && !seen[is.ChapterIndex] {
			seen[is.ChapterIndex] = true
			out = append(out, is.ChapterIndex)
		}
	}
	sort.Ints(out)
	return out
}

// HasGlobalBlock reports whether a course-wide issue blocks.
func (r *ReviewReport) HasGlobalBlock() bool {
	for _, is := range r.Issues {
		if is.Severity == SeverityBlock && is.ChapterIndex == 0 {
			return true
		}
	}
	return false
}

// BlockMessages returns the messages of blocking issues for chapter index
// (0 selects course-wide issues).
func (r *ReviewReport) BlockMessages(index int) []string {
	var out []string
	for _, is := range r.Issues {
		if is.Severity == SeverityBlock && is.ChapterIndex == index {
			out = append(out, is.Message)
		}
	}
	return out
}
