// Package artifact keeps the frozen artifacts of a session in stage order.
package artifact

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/jywlabs/coursewright/internal/course"
)

// Hash keys used by Hashes, Verify and Snapshot.
const (
	KeyBrief   = "brief"
	KeyOutline = "outline"
	KeyReview  = "review"
)

// ChapterKey returns the hash key of chapter i.
func ChapterKey(i int) string { return fmt.Sprintf("chapter/%d", i) }

// Store holds accepted artifacts. Everything it returns is a copy, so
// callers can never mutate a frozen artifact.
type Store struct {
	brief    *course.ResearchBrief
	outline  *course.Outline
	chapters map[int]course.ChapterDraft
	review   *course.ReviewReport
	hashes   map[string]string
}

// New returns an empty store.
func New() *Store {
	return &Store{chapters: make(map[int]course.ChapterDraft), hashes: make(map[string]string)}
}

// FreezeBrief stores the accepted research brief, replacing any earlier one.
func (s *Store) FreezeBrief(b *course.ResearchBrief) {
	c := cloneBrief(b)
	s.brief = c
	s.hashes[KeyBrief] = course.Hash(c)
}

// FreezeOutline stores the accepted outline. Every chapter draft and the
// review are discarded because they were written against the old outline.
func (s *Store) FreezeOutline(o *course.Outline) error {
	if s.brief == nil {
		return fmt.Errorf("cannot accept an outline before the research brief")
	}
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid outline: %w", err)
	}
	if o.Len() == 0 {
		return fmt.Errorf("cannot accept an outline without chapters")
	}
	c := cloneOutline(o)
	s.outline = c
	s.hashes[KeyOutline] = course.Hash(c)
	s.Invalidate(1)
	return nil
}

// FreezeChapter stores an accepted chapter draft and discards the review.
func (s *Store) FreezeChapter(d *course.ChapterDraft) error {
	if s.outline == nil {
		return fmt.Errorf("cannot accept chapter %d before the outline", d.Index)
	}
	spec, ok := s.outline.Chapter(d.Index)
	if !ok {
		return fmt.Errorf("chapter %d is not in the outline (%d chapters)", d.Index, s.outline.Len())
	}
	c := *d
	c.Title = spec.Title
	c.Status = course.DraftAccepted
	s.chapters[c.Index] = c
	s.hashes[ChapterKey(c.Index)] = course.Hash(c)
	s.DiscardReview()
	return nil
}

// FreezeReview stores the reviewer's report.
func (s *Store) FreezeReview(r *course.ReviewReport) error {
	if !s.Complete() {
		return fmt.Errorf("cannot accept a review before every chapter is accepted")
	}
	c := cloneReport(r)
	s.review = c
	s.hashes[KeyReview] = course.Hash(c)
	return nil
}

// Invalidate discards accepted chapters with index >= from, and the review.
// It returns the discarded indices in ascending order.
func (s *Store) Invalidate(from int) []int {
	var removed []int
	for i := range s.chapters {
		if i >= from {
			removed = append(removed, i)
		}
	}
	sort.Ints(removed)
	for _, i := range removed {
		delete(s.chapters, i)
		delete(s.hashes, ChapterKey(i))
	}
	s.DiscardReview()
	return removed
}

// InvalidateChapter discards one accepted chapter and the review.
func (s *Store) InvalidateChapter(i int) bool {
	_, ok := s.chapters[i]
	delete(s.chapters, i)
	delete(s.hashes, ChapterKey(i))
	s.DiscardReview()
	return ok
}

// DiscardReview drops the review, if any.
func (s *Store) DiscardReview() {
	s.review = nil
	delete(s.hashes, KeyReview)
}

// Brief returns the accepted brief or nil.
func (s *Store) Brief() *course.ResearchBrief { return cloneBrief(s.brief) }

// Outline returns the accepted outline or nil.
func (s *Store) Outline() *course.Outline { return cloneOutline(s.outline) }

// Review returns the accepted review or nil.
func (s *Store) Review() *course.ReviewReport { return cloneReport(s.review) }

// Chapter returns the accepted draft of chapter i.
func (s *Store) Chapter(i int) (course.ChapterDraft, bool) {
	d, ok := s.chapters[i]
	return d, ok
}

// AcceptedChapters returns the accepted drafts in index order.
func (s *Store) AcceptedChapters() []course.ChapterDraft {
	out := make([]course.ChapterDraft, 0, len(s.chapters))
	for _, d := range s.chapters {
		out = append(out, d)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out
}

// AcceptedBefore returns the accepted drafts with index < i, in order.
func (s *Store) AcceptedBefore(i int) []course.ChapterDraft {
	var out []course.ChapterDraft
	for _, d := range s.AcceptedChapters() {
		if d.Index < i {
			out = append(out, d)
		}
	}
	return out
}

// NextPending returns the lowest chapter index not yet accepted, or 0 when
// every chapter is accepted or there is no outline.
func (s *Store) NextPending() int {
	for i := 1; i <= s.outline.Len(); i++ {
		if _, ok := s.chapters[i]; !ok {
			return i
		}
	}
	return 0
}

// Complete reports whether an outline exists and all its chapters are accepted.
func (s *Store) Complete() bool {
	return s.outline.Len() > 0 && len(s.chapters) == s.outline.Len() && s.NextPending() == 0
}

// Hashes returns the content hash of every frozen artifact.
func (s *Store) Hashes() map[string]string {
	out := make(map[string]string, len(s.hashes))
	for k, v := range s.hashes {
		out[k] = v
	}
	return out
}

// Verify recomputes every hash and reports the first frozen artifact whose
// content changed since it was accepted.
func (s *Store) Verify() error {
	return verify(s.hashes, s.brief, s.outline, s.AcceptedChapters(), s.review)
}

func verify(hashes map[string]string, brief *course.ResearchBrief, outline *course.Outline, chapters []course.ChapterDraft, review *course.ReviewReport) error {
	check := func(key string, present bool, v any) error {
		want, frozen := hashes[key]
		switch {
		case present && !frozen:
			return fmt.Errorf("%s has no recorded hash", key)
		case !present && frozen:
			return fmt.Errorf("%s is missing", key)
		case present && course.Hash(v) != want:
			return fmt.Errorf("%s changed after it was accepted", key)
		}
		return nil
	}
	if err := check(KeyBrief, brief != nil, brief); err != nil {
		return err
	}
	if err := check(KeyOutline, outline != nil, outline); err != nil {
		return err
	}
	seen := make(map[string]bool, len(chapters))
	for _, d := range chapters {
		key := ChapterKey(d.Index)
		seen[key] = true
		if err := check(key, true, d); err != nil {
			return err
		}
	}
	for key := range hashes {
		if strings.HasPrefix(key, "chapter/") && !seen[key] {
			return fmt.Errorf("%s is missing", key)
		}
	}
	return check(KeyReview, review != nil, review)
}

func cloneBrief(b *course.ResearchBrief) *course.ResearchBrief {
	if b == nil {
		return nil
	}
	c := *b
	c.SuggestedDirections = slices.Clone(b.SuggestedDirections)
	c.Sources = slices.Clone(b.Sources)
	return &c
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

func cloneReport(r *course.ReviewReport) *course.ReviewReport {
	if r == nil {
		return nil
	}
	c := *r
	c.Issues = slices.Clone(r.Issues)
	return &c
}
