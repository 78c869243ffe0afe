// Package scheduler bundles an in-process implementation of the scheduler
// capability the task registry mounts against: named task definition,
// dependency-ordered invocation, and file-watch bindings.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Beg-in/gulp-begin/internal/task"
	"github.com/Beg-in/gulp-begin/internal/watcher"
)

// Logger is the minimal logging sink the scheduler reports failures to.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

type taskDef struct {
	name string
	deps []string
	body task.Func

	// runMu serializes invocations of the same task name so overlapping
	// watch events queue instead of interleaving writes.
	runMu sync.Mutex
}

// Scheduler holds the task table and the shared file watcher.
type Scheduler struct {
	root   string
	logger Logger

	mu    sync.Mutex
	tasks map[string]*taskDef
	watch *watcher.Watcher
}

// Option customizes scheduler construction.
type Option func(*Scheduler)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a scheduler rooted at the project directory. The file
// watcher is opened lazily on the first Watch call.
func New(root string, opts ...Option) *Scheduler {
	s := &Scheduler{
		root:   root,
		logger: nopLogger{},
		tasks:  make(map[string]*taskDef),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefineTask registers a named task with its dependencies.
func (s *Scheduler) DefineTask(name string, dependsOn []string, body task.Func) error {
	if name == "" {
		return fmt.Errorf("scheduler: task name is required")
	}
	if body == nil {
		return fmt.Errorf("scheduler: body is required for %s", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("scheduler: %s already defined", name)
	}
	deps := make([]string, len(dependsOn))
	copy(deps, dependsOn)
	s.tasks[name] = &taskDef{name: name, deps: deps, body: body}
	return nil
}

// Names returns the defined task names.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	return names
}

// RunTask executes the named task after all of its transitive
// dependencies. Independent dependencies at the same depth run
// concurrently; a failed task is reported and skips its dependents but
// never halts its siblings.
func (s *Scheduler) RunTask(ctx context.Context, name string) error {
	queue, err := s.queue(name)
	if err != nil {
		return err
	}

	type outcome struct {
		done chan struct{}
		err  error
	}
	outcomes := make(map[string]*outcome, len(queue))
	for _, def := range queue {
		outcomes[def.name] = &outcome{done: make(chan struct{})}
	}

	var wg sync.WaitGroup
	for _, def := range queue {
		def := def
		out := outcomes[def.name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(out.done)
			for _, dep := range def.deps {
				depOut, ok := outcomes[dep]
				if !ok {
					continue
				}
				<-depOut.done
				if depOut.err != nil {
					out.err = fmt.Errorf("scheduler: %s skipped: dependency %s failed", def.name, dep)
					return
				}
			}
			if err := ctx.Err(); err != nil {
				out.err = err
				return
			}
			def.runMu.Lock()
			defer def.runMu.Unlock()
			if err := def.body(ctx); err != nil {
				s.logger.Printf("task %s failed: %v", def.name, err)
				out.err = fmt.Errorf("scheduler: %s: %w", def.name, err)
			}
		}()
	}
	wg.Wait()

	errs := make([]error, 0, len(queue))
	for _, def := range queue {
		if out := outcomes[def.name]; out.err != nil {
			errs = append(errs, out.err)
		}
	}
	return errors.Join(errs...)
}

// Watch binds a change callback to a glob pattern or literal path and
// returns an unbind function.
func (s *Scheduler) Watch(patternOrPath string, onChange func(path string)) (func(), error) {
	w, err := s.ensureWatcher()
	if err != nil {
		return nil, err
	}
	return w.Bind(patternOrPath, onChange)
}

// Close releases the file watcher if it was opened.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	w := s.watch
	s.watch = nil
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}

func (s *Scheduler) ensureWatcher() (*watcher.Watcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watch != nil {
		return s.watch, nil
	}
	w, err := watcher.New(s.root)
	if err != nil {
		return nil, fmt.Errorf("scheduler: open watcher: %w", err)
	}
	s.watch = w
	return w, nil
}

// queue returns the target task and its transitive dependencies in
// dependency order, erroring on unknown names and cycles.
func (s *Scheduler) queue(target string) ([]*taskDef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(s.tasks))
	ordered := make([]*taskDef, 0, len(s.tasks))

	var visit func(string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("scheduler: dependency cycle through %s", name)
		}
		def, ok := s.tasks[name]
		if !ok {
			return fmt.Errorf("scheduler: unknown task %s", name)
		}
		state[name] = visiting
		for _, dep := range def.deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		ordered = append(ordered, def)
		return nil
	}
	if err := visit(target); err != nil {
		return nil, err
	}
	return ordered, nil
}
