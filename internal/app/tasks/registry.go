package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 200 * time.Millisecond

// Registry serves the tasks of a YAML file and can follow changes to it.
type Registry struct {
	path   string
	logger *zap.Logger

	mu    sync.RWMutex
	tasks map[string]Task
}

// Load reads the tasks file at path.
func Load(path string, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{path: path, logger: logger}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewStatic returns a registry that is not backed by a file.
func NewStatic(tasks ...Task) *Registry {
	r := &Registry{logger: zap.NewNop(), tasks: make(map[string]Task, len(tasks))}
	for _, task := range tasks {
		r.tasks[task.Action] = task
	}
	return r
}

// Lookup returns the task bound to action.
func (r *Registry) Lookup(action string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[action]
	return task, ok
}

// Actions lists the known actions in sorted order.
func (r *Registry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	actions := make([]string, 0, len(r.tasks))
	for action := range r.tasks {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}

// Reload re-reads the tasks file. The current set is kept when the file
// cannot be read or parsed.
func (r *Registry) Reload() error {
	if r.path == "" {
		return fmt.Errorf("tasks registry has no backing file")
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read tasks file: %w", err)
	}
	tasks, err := Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", r.path, err)
	}

	r.mu.Lock()
	r.tasks = tasks
	r.mu.Unlock()
	return nil
}

// Watch reloads the registry whenever the tasks file changes. It blocks until
// ctx is done. The parent directory is watched so that editors replacing the
// file are noticed.
func (r *Registry) Watch(ctx context.Context) error {
	if r.path == "" {
		return fmt.Errorf("tasks registry has no backing file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(r.path), err)
	}

	target := filepath.Clean(r.path)
	timer := time.NewTimer(reloadDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(reloadDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("tasks watcher error", zap.Error(err))
		case <-timer.C:
			if err := r.Reload(); err != nil {
				r.logger.Warn("reload tasks", zap.Error(err))
				continue
			}
			r.logger.Info("tasks reloaded", zap.Strings("actions", r.Actions()))
		}
	}
}
