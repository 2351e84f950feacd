package artifact

import (
	"fmt"

	"github.com/jywlabs/coursewright/internal/course"
)

// Snapshot is the serializable form of a store.
type Snapshot struct {
	Brief    *course.ResearchBrief `json:"brief,omitempty"`
	Outline  *course.Outline       `json:"outline,omitempty"`
	Chapters []course.ChapterDraft `json:"chapters,omitempty"`
	Review   *course.ReviewReport  `json:"review,omitempty"`
	Hashes   map[string]string     `json:"hashes,omitempty"`
}

// Snapshot returns a copy of every frozen artifact with its hash.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Brief:    s.Brief(),
		Outline:  s.Outline(),
		Chapters: s.AcceptedChapters(),
		Review:   s.Review(),
		Hashes:   s.Hashes(),
	}
}

// Restore builds a store from a snapshot, rejecting it when any artifact
// does not match its recorded hash or breaks stage ordering.
func Restore(snap Snapshot) (*Store, error) {
	if err := verify(snap.Hashes, snap.Brief, snap.Outline, snap.Chapters, snap.Review); err != nil {
		return nil, fmt.Errorf("snapshot rejected: %w", err)
	}
	if snap.Outline != nil && snap.Brief == nil {
		return nil, fmt.Errorf("snapshot rejected: outline without a brief")
	}
	if len(snap.Chapters) > 0 && snap.Outline == nil {
		return nil, fmt.Errorf("snapshot rejected: chapters without an outline")
	}

	s := New()
	s.brief = cloneBrief(snap.Brief)
	s.outline = cloneOutline(snap.Outline)
	for _, d := range snap.Chapters {
		if _, ok := s.outline.Chapter(d.Index); !ok {
			return nil, fmt.Errorf("snapshot rejected: chapter %d is not in the outline", d.Index)
		}
		if _, dup := s.chapters[d.Index]; dup {
			return nil, fmt.Errorf("snapshot rejected: chapter %d appears twice", d.Index)
		}
		s.chapters[d.Index] = d
	}
	s.review = cloneReport(snap.Review)
	for k, v := range snap.Hashes {
		s.hashes[k] = v
	}
	return s, nil
}
