package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jywlabs/coursewright/internal/config"
	"github.com/jywlabs/coursewright/internal/course"
	"github.com/jywlabs/coursewright/internal/prompt"
	"github.com/jywlabs/coursewright/internal/search"
)

// Bounds on the number of suggested directions.
const (
	MinDirections = 3
	MaxDirections = 7
)

// chapterLike matches lines that propose course structure instead of a direction.
var chapterLike = regexp.MustCompile(`(?i)^\s*(chapter|module)\s*(\d+|[:：])|^\s*第.{1,4}[章节]`)

const briefFormat = `Respond with a single JSON object and nothing else:
{"summary": "<short landscape summary>", "suggested_directions": ["<one line>", ...], "sources": [{"title": "<title>", "url": "<url>"}, ...]}`

// Researcher is 小美: it turns a request into a research brief.
type Researcher struct {
	rt   *Runtime
	tool search.Tool
}

// NewResearcher creates a researcher. tool may be nil.
func NewResearcher(rt *Runtime, tool search.Tool) *Researcher {
	if tool == nil {
		tool = search.Disabled{}
	}
	return &Researcher{rt: rt, tool: tool}
}

// Research produces a brief for req, optionally guided by feedback.
func (r *Researcher) Research(ctx context.Context, req course.Request, feedback string) (*course.ResearchBrief, error) {
	results, searched, err := r.search(ctx, req)
	if err != nil {
		return nil, err
	}
	needSources := searched && len(results) > 0

	vars := prompt.Vars{
		"topic":          req.Topic,
		"audience":       req.Audience,
		"requirements":   req.Requirements,
		"search_results": search.FormatResults(results),
		"feedback":       feedback,
	}

	var brief course.ResearchBrief
	err = r.rt.run(ctx, config.TaskResearch, vars, briefFormat, func(raw string) error {
		var b course.ResearchBrief
		if err := course.DecodeJSON(raw, &b); err != nil {
			return err
		}
		cleanBrief(&b)
		if err := validateBrief(&b, needSources); err != nil {
			return err
		}
		brief = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &brief, nil
}

// search runs one query when the persona has web_search and the tool is configured.
func (r *Researcher) search(ctx context.Context, req course.Request) ([]search.Result, bool, error) {
	_, persona := r.rt.Agent(config.TaskResearch)
	if !persona.HasTool(config.ToolWebSearch) || !r.tool.Available() {
		return nil, false, nil
	}

	query := strings.TrimSpace(req.Topic + " " + firstLine(req.Requirements))
	results, err := r.tool.Search(ctx, query, search.DefaultTopK)
	if err != nil {
		if errors.Is(err, search.ErrUnavailable) {
			r.rt.logger.Warn("web search failed, researching without it", "error", err)
			return nil, true, nil
		}
		return nil, true, fmt.Errorf("web search: %w", err)
	}
	r.rt.logger.Debug("web search", "query", query, "results", len(results))
	return results, true, nil
}

func cleanBrief(b *course.ResearchBrief) {
	b.Summary = strings.TrimSpace(b.Summary)
	b.Direction = ""
	dirs := b.SuggestedDirections[:0]
	for _, d := range b.SuggestedDirections {
		if d = strings.TrimSpace(d); d != "" {
			dirs = append(dirs, d)
		}
	}
	b.SuggestedDirections = dirs
	for i := range b.Sources {
		b.Sources[i].Title = strings.TrimSpace(b.Sources[i].Title)
		b.Sources[i].URL = strings.TrimSpace(b.Sources[i].URL)
	}
}

func validateBrief(b *course.ResearchBrief, needSources bool) error {
	n := len(b.SuggestedDirections)
	if n < MinDirections || n > MaxDirections {
		return fmt.Errorf("expected %d to %d suggested directions, got %d", MinDirections, MaxDirections, n)
	}
	for i, d := range b.SuggestedDirections {
		if strings.ContainsAny(d, "\r\n") {
			return fmt.Errorf("direction %d must be a single line", i+1)
		}
		if chapterLike.MatchString(d) {
			return fmt.Errorf("direction %d proposes chapter structure (%q); directions must be course angles, not chapters", i+1, d)
		}
	}
	for i, s := range b.Sources {
		if s.URL == "" {
			return fmt.Errorf("source %d has no URL", i+1)
		}
	}
	if needSources && len(b.Sources) < n {
		return fmt.Errorf("each direction needs at least one source: %d directions, %d sources", n, len(b.Sources))
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}
