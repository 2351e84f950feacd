// Package agent runs the researcher, author and reviewer personas against
// a model client.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jywlabs/coursewright/internal/config"
	"github.com/jywlabs/coursewright/internal/llm"
	"github.com/jywlabs/coursewright/internal/prompt"
	"github.com/jywlabs/coursewright/internal/tokens"
)

// DefaultMaxRepairs is how many repair prompts follow an unusable response.
const DefaultMaxRepairs = 2

// LargePromptTokens is the prompt size above which a call logs a warning.
// Late chapters of long courses carry every earlier chapter.
const LargePromptTokens = 100_000

// ErrMalformedOutput is matched by every *MalformedOutputError.
var ErrMalformedOutput = errors.New("malformed agent output")

// MalformedOutputError reports a response that stayed unusable after repairs.
type MalformedOutputError struct {
	Agent    string
	Task     string
	Attempts int
	Err      error // last validation error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("%s produced unusable output for %s after %d attempts: %v", e.Agent, e.Task, e.Attempts, e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

func (e *MalformedOutputError) Is(target error) bool { return target == ErrMalformedOutput }

// Runtime renders persona and task templates into prompts and sends them
// to the model.
type Runtime struct {
	client     llm.Client
	prompts    config.Prompts
	logger     *slog.Logger
	maxRepairs int
	counter    tokens.Counter
}

// NewRuntime creates a runtime. A nil logger discards output.
func NewRuntime(client llm.Client, prompts config.Prompts, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runtime{client: client, prompts: prompts, logger: logger, maxRepairs: DefaultMaxRepairs, counter: tokens.Estimate{}}
}

// SetCounter replaces the token counter used to size prompts.
func (r *Runtime) SetCounter(c tokens.Counter) {
	if c != nil {
		r.counter = c
	}
}

// SetMaxRepairs overrides the number of repair prompts.
func (r *Runtime) SetMaxRepairs(n int) {
	if n >= 0 {
		r.maxRepairs = n
	}
}

// SystemPrompt builds the system prompt for a persona.
func (r *Runtime) SystemPrompt(agentName string) string {
	a := r.prompts.Agents[agentName]
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s.\n", strings.TrimSpace(a.Role))
	if goal := strings.TrimSpace(a.Goal); goal != "" {
		fmt.Fprintf(&sb, "\nYour goal: %s\n", goal)
	}
	if story := strings.TrimSpace(a.Backstory); story != "" {
		fmt.Fprintf(&sb, "\n%s\n", story)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Agent returns the persona that runs a task.
func (r *Runtime) Agent(taskName string) (string, config.Agent) {
	name := r.prompts.Tasks[taskName].AgentName
	return name, r.prompts.Agents[name]
}

// UserPrompt renders a task template with vars and appends the expected
// output and the response format.
func (r *Runtime) UserPrompt(taskName string, vars prompt.Vars, format string) string {
	task := r.prompts.Tasks[taskName]
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(prompt.Render(task.Description, vars)))
	if exp := strings.TrimSpace(task.ExpectedOutput); exp != "" {
		sb.WriteString("\n\nExpected output: ")
		sb.WriteString(exp)
	}
	if format != "" {
		sb.WriteString("\n\n")
		sb.WriteString(format)
	}
	return sb.String()
}

// run sends the task and hands each response to accept. A response accept
// rejects triggers a repair prompt carrying the previous output and the
// error; after maxRepairs repairs the task fails with MalformedOutputError.
// Client errors are returned as-is.
func (r *Runtime) run(ctx context.Context, taskName string, vars prompt.Vars, format string, accept func(raw string) error) error {
	agentName, _ := r.Agent(taskName)
	system := r.SystemPrompt(agentName)
	user := r.UserPrompt(taskName, vars, format)

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= r.maxRepairs; attempt++ {
		attempts++
		size := r.counter.Count(system) + r.counter.Count(user)
		r.logger.Debug("agent call", "agent", agentName, "task", taskName, "attempt", attempt+1, "prompt_tokens", size)
		if size > LargePromptTokens {
			r.logger.Warn("prompt is close to the model's context window", "task", taskName, "prompt_tokens", size)
		}

		raw, err := r.client.Complete(ctx, system, user)
		if err != nil {
			return fmt.Errorf("%s: %w", taskName, err)
		}
		if lastErr = accept(raw); lastErr == nil {
			return nil
		}

		r.logger.Info("agent output rejected", "agent", agentName, "task", taskName, "attempt", attempt+1, "error", lastErr)
		user = repairPrompt(r.UserPrompt(taskName, vars, format), raw, lastErr, format)
	}
	return &MalformedOutputError{Agent: agentName, Task: taskName, Attempts: attempts, Err: lastErr}
}

func repairPrompt(original, raw string, problem error, format string) string {
	var sb strings.Builder
	sb.WriteString(original)
	sb.WriteString("\n\n---\nYour previous response could not be used.\n\nPrevious response:\n")
	sb.WriteString(strings.TrimSpace(raw))
	fmt.Fprintf(&sb, "\n\nProblem: %v\n", problem)
	if format != "" {
		sb.WriteString("\nReminder: ")
		sb.WriteString(format)
	}
	sb.WriteString("\nRespond again with a corrected answer only.")
	return sb.String()
}
