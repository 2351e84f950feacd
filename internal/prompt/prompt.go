package prompt

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// placeholderPattern matches {name} placeholders. JSON snippets such as
// {"title": ...} never match because of the quote after the brace.
var placeholderPattern = regexp.MustCompile(`\{([a-z][a-z0-9_]*)\}`)

// Vars maps placeholder names to their values.
type Vars map[string]string

// Placeholders returns the distinct placeholder names used in tmpl, sorted.
func Placeholders(tmpl string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

// Validate checks that every placeholder in tmpl is allowed and that every
// required placeholder is present.
func Validate(tmpl string, allowed, required []string) error {
	allow := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allow[a] = true
	}

	used := Placeholders(tmpl)
	var unknown []string
	for _, name := range used {
		if !allow[name] {
			unknown = append(unknown, "{"+name+"}")
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown placeholders %s (allowed: %s)", strings.Join(unknown, ", "), braceList(allowed))
	}

	present := make(map[string]bool, len(used))
	for _, name := range used {
		present[name] = true
	}
	var missing []string
	for _, r := range required {
		if !present[r] {
			missing = append(missing, "{"+r+"}")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required placeholders %s", strings.Join(missing, ", "))
	}
	return nil
}

// Render substitutes every {name} in tmpl with vars[name]. Placeholders
// without a value render as an empty string; templates are validated at
// load time so this only happens for optional inputs.
func Render(tmpl string, vars Vars) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[1 : len(match)-1]
		return vars[name]
	})
}

func braceList(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = "{" + n + "}"
	}
	return strings.Join(out, ", ")
}
