// Package search provides the web search tool granted to the researcher.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// DefaultTopK is the number of results requested per query.
const DefaultTopK = 5

// ErrUnavailable marks a hard search failure: transport errors, unexpected
// status codes, or an undecodable body.
var ErrUnavailable = errors.New("search unavailable")

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Tool searches the web. Available reports whether a real provider is
// configured; an unavailable tool returns no results and no error.
type Tool interface {
	Search(ctx context.Context, query string, topK int) ([]Result, error)
	Available() bool
}

// Disabled is the tool used when no search credential is configured.
type Disabled struct{}

func (Disabled) Search(context.Context, string, int) ([]Result, error) { return nil, nil }
func (Disabled) Available() bool                                       { return false }

// FromKey returns a Serper tool when apiKey is set, otherwise Disabled.
func FromKey(apiKey string) Tool {
	if strings.TrimSpace(apiKey) == "" {
		return Disabled{}
	}
	return NewSerper(apiKey)
}

// degrading swallows ErrUnavailable so the workflow continues without search.
type degrading struct {
	next   Tool
	logger *slog.Logger
	once   sync.Once
}

// Degrading wraps a tool so hard failures turn into empty results. The first
// failure is logged at warn level; later ones only at debug.
func Degrading(t Tool, logger *slog.Logger) Tool {
	if logger == nil {
		logger = slog.Default()
	}
	return &degrading{next: t, logger: logger}
}

func (d *degrading) Available() bool { return d.next.Available() }

func (d *degrading) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	results, err := d.next.Search(ctx, query, topK)
	if err == nil {
		return results, nil
	}
	if !errors.Is(err, ErrUnavailable) {
		return nil, err
	}
	logged := false
	d.once.Do(func() {
		d.logger.Warn("web search unavailable, continuing without it", "error", err)
		logged = true
	})
	if !logged {
		d.logger.Debug("web search failed", "error", err)
	}
	return nil, nil
}

// FormatResults renders results for inclusion in a prompt.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "(no search results)"
	}
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] %s\n    URL: %s\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "    %s\n", r.Snippet)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
