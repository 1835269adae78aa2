package engine

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

type taskFile struct {
	Tasks []Task `yaml:"tasks"`
}

// ParseTasks decodes a batch file. Both a bare list and a document with a
// top-level "tasks" key are accepted.
func ParseTasks(data []byte) ([]Task, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse tasks: %w", err)
	}
	if len(node.Content) == 0 {
		return []Task{}, nil
	}

	var tasks []Task
	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&tasks); err != nil {
			return nil, fmt.Errorf("failed to parse tasks: %w", err)
		}
	case yaml.MappingNode:
		var f taskFile
		if err := root.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to parse tasks: %w", err)
		}
		tasks = f.Tasks
	default:
		return nil, fmt.Errorf("failed to parse tasks: expected a list or a mapping with 'tasks'")
	}

	for i := range tasks {
		tasks[i].Instruction = strings.TrimSpace(tasks[i].Instruction)
		if tasks[i].Instruction == "" {
			return nil, fmt.Errorf("task %d has no instruction", i+1)
		}
	}
	if tasks == nil {
		tasks = []Task{}
	}
	return tasks, nil
}

// LoadTasks reads and parses the batch file at path.
func LoadTasks(path string) ([]Task, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand tasks path: %w", err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks file: %w", err)
	}
	return ParseTasks(data)
}
