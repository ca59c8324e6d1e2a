// Package jobmgr runs named jobs, at most one instance of each name at a time,
// with cancellation and lifecycle reporting.
//
// Typical usage:
//
//	jm := jobmgr.NewManager(jobmgr.ZapReporter(log))
//
//	err := jm.StartAsync(ctx, "expire-users", func(ctx context.Context) error {
//	    // do work until ctx is cancelled
//	    return nil
//	})
//
//	// on shutdown
//	jm.StopAll()
//	jm.Wait()
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrRunning = errors.New("job is already running")

// Event is a job lifecycle notification.
type Event struct {
	Job     string
	State   string // running, done, error
	Err     error
	Elapsed time.Duration
}

// StatusReporter receives lifecycle events for jobs.
type StatusReporter func(Event)

// ZapReporter logs lifecycle events.
func ZapReporter(log *zap.SugaredLogger) StatusReporter {
	return func(ev Event) {
		switch ev.State {
		case "running":
			log.Debugw("Job started", "job", ev.Job)
		case "error":
			log.Errorw("Job failed", "job", ev.Job, "elapsed", ev.Elapsed, "error", ev.Err)
		default:
			log.Debugw("Job finished", "job", ev.Job, "elapsed", ev.Elapsed)
		}
	}
}

type job struct {
	cancel context.CancelFunc
}

// Manager orchestrates starting, stopping and tracking jobs.
// It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*job
	wg       sync.WaitGroup
	reporter StatusReporter
}

// NewManager creates a new Manager. The reporter may be nil.
func NewManager(reporter StatusReporter) *Manager {
	return &Manager{
		jobs:     make(map[string]*job),
		reporter: reporter,
	}
}

func (m *Manager) begin(parent context.Context, name string) (context.Context, *job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[name]; exists {
		return nil, nil, fmt.Errorf("%w: %s", ErrRunning, name)
	}
	ctx, cancel := context.WithCancel(parent)
	j := &job{cancel: cancel}
	m.jobs[name] = j
	m.wg.Add(1)
	return ctx, j, nil
}

func (m *Manager) run(ctx context.Context, name string, j *job, runner func(ctx context.Context) error) error {
	defer m.wg.Done()
	defer j.cancel()

	m.report(Event{Job: name, State: "running"})
	start := time.Now()
	err := runner(ctx)
	ev := Event{Job: name, State: "done", Elapsed: time.Since(start)}
	if err != nil {
		ev.State, ev.Err = "error", err
	}
	m.report(ev)

	m.mu.Lock()
	if m.jobs[name] == j {
		delete(m.jobs, name)
	}
	m.mu.Unlock()
	return err
}

// StartSync runs a job in the current goroutine and blocks until completion.
// It refuses to start while a job of the same name is running.
func (m *Manager) StartSync(parent context.Context, name string, runner func(ctx context.Context) error) error {
	ctx, j, err := m.begin(parent, name)
	if err != nil {
		return err
	}
	return m.run(ctx, name, j, runner)
}

// StartAsync runs a job in a separate goroutine and returns immediately.
// If a job with the same name is already running, ErrRunning is returned.
func (m *Manager) StartAsync(parent context.Context, name string, runner func(ctx context.Context) error) error {
	ctx, j, err := m.begin(parent, name)
	if err != nil {
		return err
	}
	go func() { _ = m.run(ctx, name, j, runner) }()
	return nil
}

// StopAll cancels every running job without waiting.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		j.cancel()
	}
}

// Wait blocks until all jobs have returned.
func (m *Manager) Wait() { m.wg.Wait() }

// List returns the names of running jobs, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) report(ev Event) {
	if m.reporter != nil {
		m.reporter(ev)
	}
}
