// Package tasks holds the action-to-script bindings that triggers select.
package tasks

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"scriptd/internal/domain/execution"
)

// Task binds a trigger action to a script on disk.
type Task struct {
	Action    string
	Script    string
	LoopTimes int
	Delay     time.Duration
	Interval  time.Duration
	TimeLimit time.Duration
	// Notify attaches a completion notifier to every run of the task.
	Notify    bool
	Arguments map[string]any
}

// Handle returns the script handle of the task.
func (t Task) Handle() (execution.ScriptHandle, error) {
	return execution.NewFileHandle(t.Script)
}

type fileDocument struct {
	Tasks []taskDocument `yaml:"tasks"`
}

type taskDocument struct {
	Action    string         `yaml:"action"`
	Script    string         `yaml:"script"`
	LoopTimes int            `yaml:"loop_times"`
	Delay     duration       `yaml:"delay"`
	Interval  duration       `yaml:"interval"`
	TimeLimit duration       `yaml:"time_limit"`
	Notify    bool           `yaml:"notify"`
	Args      map[string]any `yaml:"args"`
}

// duration accepts Go duration strings such as "1m30s".
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, raw, err)
	}
	*d = duration(parsed)
	return nil
}

// Parse decodes a tasks document and validates every entry.
func Parse(data []byte) (map[string]Task, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}

	tasks := make(map[string]Task, len(doc.Tasks))
	for i, entry := range doc.Tasks {
		if entry.Action == "" {
			return nil, fmt.Errorf("task %d: missing action", i)
		}
		if _, exists := tasks[entry.Action]; exists {
			return nil, fmt.Errorf("task %q: duplicate action", entry.Action)
		}
		if entry.Script == "" {
			return nil, fmt.Errorf("task %q: missing script", entry.Action)
		}
		if _, err := execution.LanguageForPath(entry.Script); err != nil {
			return nil, fmt.Errorf("task %q: %w", entry.Action, err)
		}
		if entry.LoopTimes < execution.LoopForever {
			return nil, fmt.Errorf("task %q: loop_times must be %d or greater", entry.Action, execution.LoopForever)
		}

		tasks[entry.Action] = Task{
			Action:    entry.Action,
			Script:    entry.Script,
			LoopTimes: entry.LoopTimes,
			Delay:     time.Duration(entry.Delay),
			Interval:  time.Duration(entry.Interval),
			TimeLimit: time.Duration(entry.TimeLimit),
			Notify:    entry.Notify,
			Arguments: entry.Args,
		}
	}
	return tasks, nil
}
