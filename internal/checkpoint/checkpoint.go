// Package checkpoint persists a recoverable session dump as JSON.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jywlabs/coursewright/internal/artifact"
	"github.com/jywlabs/coursewright/internal/course"
)

// Version is the dump format version.
const Version = 1

// ErrNotFound is returned by Load when there is no dump.
var ErrNotFound = errors.New("no saved session")

// Dump is the serialized form of a session. Only frozen artifacts are
// included, plus the rejected outline a pending revision builds on; pending
// drafts are never written.
type Dump struct {
	Version         int               `json:"version"`
	SessionID       string            `json:"session_id"`
	Request         course.Request    `json:"request"`
	State           string            `json:"state"`
	NextChapter     int               `json:"next_chapter"`
	Revisions       map[string]int    `json:"revisions,omitempty"`
	Caps            map[string]int    `json:"caps,omitempty"`
	ForceAccepted   bool              `json:"force_accepted,omitempty"`
	Feedback        string            `json:"feedback,omitempty"`
	ScopeChange     bool              `json:"scope_change,omitempty"`
	ReviewNotes     map[int]string    `json:"review_notes,omitempty"`
	PreviousOutline *course.Outline   `json:"previous_outline,omitempty"`
	Trace           []string          `json:"trace,omitempty"`
	Artifacts       artifact.Snapshot `json:"artifacts"`
	SavedAt         time.Time         `json:"saved_at"`
}

// Store reads and writes the dump at Path.
type Store struct {
	Path string
}

// New returns a store for path. An empty path disables persistence.
func New(path string) *Store {
	return &Store{Path: path}
}

// Enabled reports whether the store writes anything.
func (s *Store) Enabled() bool {
	return s != nil && s.Path != ""
}

// Save writes the dump atomically: to a temp file first, then renamed.
func (s *Store) Save(d *Dump) error {
	if !s.Enabled() {
		return nil
	}
	d.Version = Version
	d.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tmpPath := s.Path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// Load reads the dump. It returns ErrNotFound when there is none.
func (s *Store) Load() (*Dump, error) {
	if !s.Enabled() {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var d Dump
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %s: %w", s.Path, err)
	}
	if d.Version != Version {
		return nil, fmt.Errorf("checkpoint %s has version %d, expected %d", s.Path, d.Version, Version)
	}
	return &d, nil
}

// Clear removes the dump. A missing file is not an error.
func (s *Store) Clear() error {
	if !s.Enabled() {
		return nil
	}
	err := os.Remove(s.Path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Exists reports whether a dump is present.
func (s *Store) Exists() bool {
	if !s.Enabled() {
		return false
	}
	_, err := os.Stat(s.Path)
	return err == nil
}
