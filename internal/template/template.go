package template

import (
	_ "embed"
)

//go:embed course_agents.yaml
var DefaultAgents string

//go:embed course_tasks.yaml
var DefaultTasks string

//go:embed config.yaml
var DefaultConfig string

// Dir is the name of the coursewright configuration directory.
const Dir = ".coursewright"

// File name constants for consistent usage across the codebase.
const (
	AgentsFile     = "course_agents.yaml" // Agent personas
	TasksFile      = "course_tasks.yaml"  // Task prompt templates
	ConfigFile     = "config.yaml"
	CheckpointFile = "session.json" // Recoverable session dump
)

// DefaultFiles returns the default files that make up a configuration directory.
func DefaultFiles() map[string]string {
	return map[string]string{
		AgentsFile: DefaultAgents,
		TasksFile:  DefaultTasks,
		ConfigFile: DefaultConfig,
	}
}
