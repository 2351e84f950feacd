package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jywlabs/coursewright/internal/template"
)

// WriteDefaults writes the embedded persona, task and settings files into
// dir so they can be edited. Files that already exist are left alone. It
// returns the names of the files written, sorted.
func WriteDefaults(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	files := template.DefaultFiles()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var written []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(files[name]), 0644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, name)
	}
	return written, nil
}
