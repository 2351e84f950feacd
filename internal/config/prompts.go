package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jywlabs/coursewright/internal/prompt"
	"github.com/jywlabs/coursewright/internal/template"
	"gopkg.in/yaml.v3"
)

// Agent names.
const (
	AgentResearcher = "xiao_mei"
	AgentAuthor     = "xiao_qing"
	AgentReviewer   = "xiao_yin"
)

// Task names.
const (
	TaskResearch = "research_task"
	TaskOutline  = "outline_task"
	TaskChapter  = "chapter_task"
	TaskReview   = "review_task"
)

// ToolWebSearch is the only tool an agent can be granted.
const ToolWebSearch = "web_search"

// Agent is a persona from course_agents.yaml.
type Agent struct {
	Role      string   `yaml:"role"`
	Goal      string   `yaml:"goal"`
	Backstory string   `yaml:"backstory"`
	Tools     []string `yaml:"tools"`
}

// HasTool reports whether the persona lists the named tool.
func (a Agent) HasTool(name string) bool {
	for _, t := range a.Tools {
		if t == name {
			return true
		}
	}
	return false
}

// Task is a prompt template from course_tasks.yaml.
type Task struct {
	Description    string `yaml:"description"`
	ExpectedOutput string `yaml:"expected_output"`
	AgentName      string `yaml:"agent_name"`
}

// Placeholders lists the placeholders a task may use and those it must use.
type Placeholders struct {
	Allowed  []string
	Required []string
}

// TaskPlaceholders is the placeholder contract of each task.
var TaskPlaceholders = map[string]Placeholders{
	TaskResearch: {
		Allowed:  []string{"topic", "audience", "requirements", "search_results", "feedback"},
		Required: []string{"topic"},
	},
	TaskOutline: {
		Allowed:  []string{"topic", "audience", "requirements", "brief", "directions", "previous_outline", "feedback"},
		Required: []string{"topic", "brief"},
	},
	TaskChapter: {
		Allowed: []string{"topic", "audience", "requirements", "brief", "course_title", "outline",
			"chapter_index", "chapter_title", "chapter_synopsis", "learning_objectives", "prior_chapters", "feedback"},
		Required: []string{"topic", "brief", "chapter_index"},
	},
	TaskReview: {
		Allowed:  []string{"topic", "audience", "requirements", "brief", "directions", "outline", "chapters"},
		Required: []string{"topic", "brief"},
	},
}

// Prompts holds the loaded personas and task templates.
type Prompts struct {
	Agents map[string]Agent
	Tasks  map[string]Task
}

// LoadPrompts reads course_agents.yaml and course_tasks.yaml from dir,
// falling back to the embedded defaults for missing files, and validates them.
func LoadPrompts(dir string) (*Prompts, error) {
	var p Prompts
	if err := loadYAML(dir, template.AgentsFile, template.DefaultAgents, &p.Agents); err != nil {
		return nil, err
	}
	if err := loadYAML(dir, template.TasksFile, template.DefaultTasks, &p.Tasks); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func loadYAML(dir, name, fallback string, v any) error {
	data := []byte(fallback)
	if dir != "" {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		switch {
		case err == nil:
			data = raw
		case !os.IsNotExist(err):
			return &Error{Field: name, Msg: "failed to read", Err: err}
		}
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return &Error{Field: name, Msg: "invalid YAML", Err: err}
	}
	return nil
}

// Validate checks required agents and tasks, agent references, and
// placeholder usage.
func (p *Prompts) Validate() error {
	for _, name := range []string{AgentResearcher, AgentAuthor, AgentReviewer} {
		a, ok := p.Agents[name]
		if !ok {
			return errorf(template.AgentsFile, "required agent %q is missing", name)
		}
		if a.Role == "" {
			return errorf(template.AgentsFile, "agent %q has no role", name)
		}
		for _, tool := range a.Tools {
			if tool != ToolWebSearch {
				return errorf(template.AgentsFile, "agent %q lists unknown tool %q", name, tool)
			}
		}
	}

	names := make([]string, 0, len(TaskPlaceholders))
	for name := range TaskPlaceholders {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		task, ok := p.Tasks[name]
		if !ok {
			return errorf(template.TasksFile, "required task %q is missing", name)
		}
		if _, ok := p.Agents[task.AgentName]; !ok {
			return errorf(template.TasksFile, "task %q references unknown agent %q", name, task.AgentName)
		}
		ph := TaskPlaceholders[name]
		if err := prompt.Validate(task.Description, ph.Allowed, ph.Required); err != nil {
			return &Error{Field: template.TasksFile, Msg: fmt.Sprintf("task %q", name), Err: err}
		}
	}
	return nil
}
