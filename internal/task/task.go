package task

import (
	"context"
	"fmt"
	"sort"
)

// Func is the body of a build task. Pipeline stages satisfy this contract:
// they produce artifacts, optionally asynchronously, and report failure
// through the returned error.
type Func func(ctx context.Context) error

// Descriptor declares one named task, its upstream dependencies, and its
// body. Dependencies are declared by base name; the registry qualifies
// both sides consistently before registration.
type Descriptor struct {
	Name      string
	DependsOn []string
	Body      Func
}

// Scheduler is the external capability the registry mounts tasks against.
// It owns dependency ordering, cycle detection, and invocation.
type Scheduler interface {
	DefineTask(name string, dependsOn []string, body Func) error
	RunTask(ctx context.Context, name string) error
	Watch(patternOrPath string, onChange func(path string)) (func(), error)
}

// Logger is the minimal logging sink the registry needs.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Qualify prefixes a base task name so a host can mount several engine
// instances without name collisions. An empty prefix returns the base name
// unchanged.
func Qualify(prefix, base string) string {
	if prefix == "" {
		return base
	}
	return prefix + "_" + base
}

// Registry hands task descriptors to the scheduler capability, applying
// the name prefix and the exclusion filter uniformly.
type Registry struct {
	sched  Scheduler
	prefix string
	logger Logger
}

// Option customizes registry construction.
type Option func(*Registry)

// WithPrefix applies a name prefix to every registered task.
func WithPrefix(prefix string) Option {
	return func(r *Registry) {
		r.prefix = prefix
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry wires a registry to a scheduler capability.
func NewRegistry(sched Scheduler, opts ...Option) (*Registry, error) {
	if sched == nil {
		return nil, fmt.Errorf("task: registry requires a scheduler")
	}
	r := &Registry{sched: sched, logger: nopLogger{}}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Qualify applies the registry prefix to a base task name.
func (r *Registry) Qualify(base string) string {
	return Qualify(r.prefix, base)
}

// Register validates and registers every descriptor. Excluded tasks are
// registered as warning stubs so their dependents still resolve; a
// dependency that is neither registered nor excluded is a configuration
// error, never a silent no-op.
func (r *Registry) Register(descriptors []Descriptor, excluded ExclusionSet, warnExclusions bool) error {
	known := make(map[string]struct{}, len(descriptors))
	for _, desc := range descriptors {
		if desc.Name == "" {
			return fmt.Errorf("task: descriptor name is required")
		}
		name := r.Qualify(desc.Name)
		if _, exists := known[name]; exists {
			return fmt.Errorf("task: %s declared twice", name)
		}
		known[name] = struct{}{}
	}
	for _, desc := range descriptors {
		name := r.Qualify(desc.Name)
		for _, dep := range desc.DependsOn {
			qualified := r.Qualify(dep)
			if _, ok := known[qualified]; ok {
				continue
			}
			if excluded.Has(qualified) {
				continue
			}
			return fmt.Errorf("task: %s depends on %s which is neither registered nor excluded", name, qualified)
		}
	}
	for _, desc := range descriptors {
		name := r.Qualify(desc.Name)
		deps := make([]string, 0, len(desc.DependsOn))
		for _, dep := range desc.DependsOn {
			deps = append(deps, r.Qualify(dep))
		}
		body := desc.Body
		if excluded.Has(name) {
			body = Stub(name, warnExclusions, r.logger)
		}
		if err := r.sched.DefineTask(name, deps, body); err != nil {
			return fmt.Errorf("task: define %s: %w", name, err)
		}
	}
	return nil
}

// Names returns the qualified task names in sorted order.
func Names(prefix string, bases []string) []string {
	out := make([]string, 0, len(bases))
	for _, base := range bases {
		out = append(out, Qualify(prefix, base))
	}
	sort.Strings(out)
	return out
}
