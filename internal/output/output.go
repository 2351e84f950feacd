// Package output renders the final course package as plain text.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jywlabs/coursewright/internal/course"
)

const rule = "================================================================"

// Document is everything that goes into the final course package.
type Document struct {
	Request       course.Request
	Brief         *course.ResearchBrief
	Outline       *course.Outline
	Chapters      []course.ChapterDraft // accepted, in index order
	Review        *course.ReviewReport
	ForceAccepted bool // the review was accepted at the revision cap
}

// Printer writes documents to a writer.
type Printer struct {
	w io.Writer
}

// New creates a new Printer that writes to the given writer.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Document prints the rendered document.
func (p *Printer) Document(doc *Document) error {
	_, err := io.WriteString(p.w, Render(doc))
	return err
}

// Render returns the document text: header, outline, chapters in order,
// sources and the review report.
func Render(doc *Document) string {
	var sb strings.Builder

	title := doc.Request.Topic
	if doc.Outline != nil && doc.Outline.Title != "" {
		title = doc.Outline.Title
	}
	sb.WriteString(rule + "\n")
	sb.WriteString(title + "\n")
	fmt.Fprintf(&sb, "Topic: %s\n", doc.Request.Topic)
	if doc.Request.Audience != "" {
		fmt.Fprintf(&sb, "Audience: %s\n", doc.Request.Audience)
	}
	sb.WriteString(rule + "\n")

	section(&sb, "OUTLINE")
	if doc.Outline != nil {
		for _, ch := range doc.Outline.Chapters {
			fmt.Fprintf(&sb, "%d. %s\n", ch.Index, ch.Title)
			if ch.Synopsis != "" {
				fmt.Fprintf(&sb, "   %s\n", ch.Synopsis)
			}
			for _, obj := range ch.LearningObjectives {
				fmt.Fprintf(&sb, "   - %s\n", obj)
			}
		}
	}

	for i := range doc.Chapters {
		sb.WriteString("\n")
		sb.WriteString(course.FormatChapter(&doc.Chapters[i]))
		sb.WriteString("\n")
	}

	if doc.Brief != nil && len(doc.Brief.Sources) > 0 {
		section(&sb, "SOURCES")
		for i, s := range doc.Brief.Sources {
			fmt.Fprintf(&sb, "[%d] %s <%s>\n", i+1, s.Title, s.URL)
		}
	}

	section(&sb, "REVIEW")
	if doc.Review != nil {
		sb.WriteString(course.FormatReport(doc.Review))
		sb.WriteString("\n")
	} else {
		sb.WriteString("No review.\n")
	}
	if doc.ForceAccepted {
		sb.WriteString("Note: accepted at the revision cap without reviewer approval.\n")
	}
	return sb.String()
}

func section(sb *strings.Builder, name string) {
	fmt.Fprintf(sb, "\n%s\n%s\n", name, strings.Repeat("-", len(name)))
}

// WriteFile writes the rendered document to path, creating parent directories.
func WriteFile(path string, doc *Document) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(Render(doc)), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
