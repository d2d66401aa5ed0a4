// Package taskfile parses markdown task documents: optional YAML
// frontmatter carrying per-run settings, followed by a markdown body
// that becomes the task prompt.
package taskfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"agentcore/pkg/config"
)

// TaskFile represents a parsed task document.
//
//nolint:govet // Field alignment optimization would hurt readability; logical grouping is more important.
type TaskFile struct {
	// YAML frontmatter fields. All are optional; zero values defer to
	// the agent configuration.
	ID       string `yaml:"id,omitempty"`
	Title    string `yaml:"title,omitempty"`
	Model    string `yaml:"model,omitempty"`
	Strategy string `yaml:"strategy,omitempty"`
	MaxSteps int    `yaml:"max_steps,omitempty"`

	// Markdown content.
	Prompt string `yaml:"-"` // Body text handed to the engine as the task.

	// Raw content (for reference).
	RawMarkdown string `yaml:"-"` // Original markdown content.
}

// Load reads and parses a task document from disk. A missing id falls
// back to the file name without its extension.
func Load(path string) (*TaskFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	task, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse task file %s: %w", path, err)
	}

	if task.ID == "" {
		task.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return task, nil
}

// Validate checks that the task document can drive a run.
func (t *TaskFile) Validate() error {
	var problems []string

	if t.Prompt == "" {
		problems = append(problems, "task body is empty")
	}
	if t.Strategy != "" {
		switch t.Strategy {
		case config.StrategySequential, config.StrategyParallel, config.StrategySmart, config.StrategyBatched:
		default:
			problems = append(problems, fmt.Sprintf("unknown strategy %q", t.Strategy))
		}
	}
	if t.MaxSteps < 0 {
		problems = append(problems, "max_steps must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid task file: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ApplyTo overlays the task file's run settings onto an agent config.
// Zero values leave the config untouched.
func (t *TaskFile) ApplyTo(agent *config.AgentConfig) {
	if t.Model != "" {
		agent.Model = t.Model
	}
	if t.Strategy != "" {
		agent.Strategy = t.Strategy
	}
	if t.MaxSteps > 0 {
		agent.MaxSteps = t.MaxSteps
	}
}
