package course

import (
	"fmt"
	"strings"
)

// FormatBrief renders a research brief as plain text.
func FormatBrief(b *ResearchBrief) string {
	if b == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(b.Summary))
	sb.WriteString("\n\nSuggested directions:\n")
	for i, d := range b.SuggestedDirections {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, d)
	}
	if b.Direction != "" {
		fmt.Fprintf(&sb, "\nChosen direction: %s\n", b.Direction)
	}
	if len(b.Sources) > 0 {
		sb.WriteString("\nSources:\n")
		for _, s := range b.Sources {
			fmt.Fprintf(&sb, "  - %s <%s>\n", s.Title, s.URL)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatOutline renders an outline as plain text.
func FormatOutline(o *Outline) string {
	if o == nil {
		return ""
	}
	var sb strings.Builder
	if o.Title != "" {
		fmt.Fprintf(&sb, "%s\n\n", o.Title)
	}
	for _, ch := range o.Chapters {
		fmt.Fprintf(&sb, "%d. %s\n", ch.Index, ch.Title)
		if ch.Synopsis != "" {
			fmt.Fprintf(&sb, "   %s\n", ch.Synopsis)
		}
		for _, obj := range ch.LearningObjectives {
			fmt.Fprintf(&sb, "   - %s\n", obj)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatChapter renders a chapter draft with its heading.
func FormatChapter(d *ChapterDraft) string {
	if d == nil {
		return ""
	}
	return fmt.Sprintf("CHAPTER %d: %s\n\n%s", d.Index, d.Title, strings.TrimSpace(d.Body))
}

// FormatReport renders a review report as plain text.
func FormatReport(r *ReviewReport) string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Verdict: %s\n", r.Verdict)
	if len(r.Issues) == 0 {
		sb.WriteString("No issues reported.\n")
	}
	for _, is := range r.Issues {
		where := "course"
		if is.ChapterIndex > 0 {
			where = fmt.Sprintf("chapter %d", is.ChapterIndex)
		}
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", is.Severity, where, is.Message)
	}
	return strings.TrimRight(sb.String(), "\n")
}
