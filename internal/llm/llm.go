package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Client is the uniform text-completion interface every agent talks to.
type Client interface {
	// Complete sends a system and user prompt and returns the model's text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Settings configures a provider.
type Settings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	Timeout     time.Duration // Per-call network timeout
}

// DefaultTimeout for a single completion call.
const DefaultTimeout = 2 * time.Minute

// constructors maps provider names to their constructors.
// Providers register themselves via Register.
var constructors = make(map[string]func(Settings) (Client, error))

// Register registers a provider constructor by name.
func Register(name string, constructor func(Settings) (Client, error)) {
	constructors[strings.ToLower(name)] = constructor
}

// New creates a client for the named provider.
func New(name string, s Settings) (Client, error) {
	constructor, ok := constructors[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s (supported: %s)", name, strings.Join(Available(), ", "))
	}
	return constructor(s)
}

// Available returns the registered provider names, sorted.
func Available() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
