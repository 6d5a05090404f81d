// Package sched runs named interval tasks on a second-resolution cron
// scheduler. It exists so the commands can keep polling loops (gam
// refresh, alliance help, resource snapshots) out of their main
// functions.
package sched

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task is one scheduled function. Panics are recovered and logged.
type Task func()

// Runner wraps a cron scheduler with named entries.
type Runner struct {
	log  *zap.Logger
	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		log:     log.With(zap.String("component", "sched")),
		cron:    cron.New(cron.WithSeconds()),
		entries: make(map[string]cron.EntryID),
	}
}

// Add schedules task under name at the given interval. Adding an
// existing name replaces its schedule.
func (r *Runner) Add(name string, every time.Duration, task Task) error {
	if name == "" {
		return fmt.Errorf("invalid task name: must not be empty")
	}
	if every < time.Second {
		return fmt.Errorf("invalid interval for %s: below one second", name)
	}
	if task == nil {
		return fmt.Errorf("invalid task %s: nil function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.entries[name]; ok {
		r.cron.Remove(id)
		delete(r.entries, name)
	}

	spec := fmt.Sprintf("@every %s", every)
	id, err := r.cron.AddFunc(spec, r.guarded(name, task))
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	r.entries[name] = id
	r.log.Debug("task scheduled", zap.String("task", name), zap.Duration("every", every))
	return nil
}

// Remove unschedules a task. Removing an unknown name is a no-op.
func (r *Runner) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.entries[name]; ok {
		r.cron.Remove(id)
		delete(r.entries, name)
	}
}

// Names returns the scheduled task names.
func (r *Runner) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// Start begins running tasks in their own goroutines.
func (r *Runner) Start() { r.cron.Start() }

// Stop stops the scheduler and waits for running tasks to return.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Runner) guarded(name string, task Task) func() {
	return func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("task panicked",
					zap.String("task", name),
					zap.Any("panic", rec))
			}
		}()
		task()
	}
}
