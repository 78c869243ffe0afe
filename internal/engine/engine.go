// Package engine is the entry point a host mounts: it resolves the
// configuration, derives the file sets, registers the task graph against
// the bundled scheduler, and drives either single task runs or the full
// development loop. Every piece of state lives on the instance; two
// engines with different prefixes coexist in one process.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Beg-in/gulp-begin/internal/config"
	"github.com/Beg-in/gulp-begin/internal/devloop"
	"github.com/Beg-in/gulp-begin/internal/livereload"
	"github.com/Beg-in/gulp-begin/internal/pipeline"
	"github.com/Beg-in/gulp-begin/internal/procman"
	"github.com/Beg-in/gulp-begin/internal/scheduler"
	"github.com/Beg-in/gulp-begin/internal/task"
	"github.com/Beg-in/gulp-begin/internal/watcher"
)

// TaskNames are the base task names every engine instance registers,
// before prefixing.
var TaskNames = []string{
	"html", "lint", "scripts", "styles", "images", "build",
	"server", "demon", "dev", "test", "autotest", "docs", "changelog",
}

// Logger is the minimal logging sink the engine reports to.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Engine is one configured instance of the build orchestrator.
type Engine struct {
	root        string
	cfg         config.Config
	files       config.FileSets
	logger      Logger
	optionsFile string

	sched    *scheduler.Scheduler
	registry *task.Registry
	tools    pipeline.Toolchain
	exec     procman.Exec
	reload   *livereload.Server

	excluded   task.ExclusionSet
	registered bool

	onDevEvent func(devloop.Event)

	mu          sync.Mutex
	lastRestart *devloop.RestartRequest
}

// Option customizes engine construction.
type Option func(*Engine)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithToolchain replaces the default transform set, typically after
// plugin loading.
func WithToolchain(tools pipeline.Toolchain) Option {
	return func(e *Engine) {
		e.tools = tools
	}
}

// WithOptionsFile records which options file the configuration came
// from, so the dev loop watches that file rather than the default name.
func WithOptionsFile(path string) Option {
	return func(e *Engine) {
		if path != "" {
			e.optionsFile = path
		}
	}
}

// WithDevEventHook observes dev-loop transitions, used by the dashboard.
func WithDevEventHook(fn func(devloop.Event)) Option {
	return func(e *Engine) {
		e.onDevEvent = fn
	}
}

// New resolves the options over the defaults and wires the instance:
// configuration, file sets, scheduler, registry, toolchain, live reload.
func New(dir string, opts config.Options, options ...Option) (*Engine, error) {
	cfg := config.Resolve(opts)
	root := dir
	if cfg.Root != "" && cfg.Root != "." {
		root = filepath.Join(dir, cfg.Root)
	}

	e := &Engine{
		root:        root,
		cfg:         cfg,
		files:       config.BuildFiles(cfg),
		logger:      nopLogger{},
		optionsFile: config.OptionsFile,
		tools:       pipeline.DefaultToolchain(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(e)
		}
	}
	e.exec = procman.Exec{Logger: e.logger}
	e.sched = scheduler.New(root, scheduler.WithLogger(e.logger))
	registry, err := task.NewRegistry(e.sched,
		task.WithPrefix(cfg.Prefix), task.WithLogger(e.logger))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e.registry = registry
	e.reload = livereload.NewServer(
		livereload.SettingsFromConfig(cfg), livereload.WithLogger(e.logger))
	return e, nil
}

// Config returns the resolved configuration.
func (e *Engine) Config() config.Config {
	return e.cfg
}

// Root returns the resolved project root directory.
func (e *Engine) Root() string {
	return e.root
}

// Qualify applies the configured prefix to a base task name.
func (e *Engine) Qualify(base string) string {
	return e.registry.Qualify(base)
}

// Register mounts the full task graph against the scheduler, applying
// the exclusion policy. It must be called once before Run or Dev.
func (e *Engine) Register() error {
	if e.registered {
		return fmt.Errorf("engine: tasks already registered")
	}
	policy := task.ExclusionPolicy{
		Prefix:       e.cfg.Prefix,
		Exclude:      e.cfg.Exclude,
		ExcludeGiven: e.cfg.ExcludeGiven,
		Only:         e.cfg.Only,
	}
	e.excluded = policy.Set(TaskNames)

	if err := e.registry.Register(e.descriptors(), e.excluded, e.cfg.WarnExclusions); err != nil {
		return err
	}
	e.registered = true
	return nil
}

func (e *Engine) stage() pipeline.Stage {
	return pipeline.Stage{
		Root:   e.root,
		Cfg:    e.cfg,
		Files:  e.files,
		Tools:  e.tools,
		Logger: e.logger,
	}
}

func (e *Engine) descriptors() []task.Descriptor {
	stage := e.stage()
	return []task.Descriptor{
		{Name: "html", Body: stage.HTML()},
		{Name: "lint", Body: stage.Lint()},
		{Name: "scripts", DependsOn: []string{"lint"}, Body: stage.Scripts()},
		{Name: "styles", Body: stage.Styles()},
		{Name: "images", Body: stage.Images()},
		{Name: "build", DependsOn: []string{"html", "scripts", "styles", "images"},
			Body: func(ctx context.Context) error {
				e.logger.Printf("engine: build complete")
				return nil
			}},
		{Name: "server", Body: e.serverBody()},
		{Name: "demon", Body: e.demonBody()},
		{Name: "dev", Body: e.devBody()},
		{Name: "test", DependsOn: []string{"lint"}, Body: stage.Test(e.exec)},
		{Name: "autotest", Body: e.autotestBody(stage)},
		{Name: "docs", Body: stage.Docs()},
		{Name: "changelog", Body: stage.Changelog(e.exec)},
	}
}

// Run executes one registered task and its dependency closure. The name
// may be given with or without the prefix.
func (e *Engine) Run(ctx context.Context, name string) error {
	if !e.registered {
		return fmt.Errorf("engine: tasks not registered")
	}
	return e.sched.RunTask(ctx, e.resolveName(name))
}

func (e *Engine) resolveName(name string) string {
	for _, defined := range e.sched.Names() {
		if defined == name {
			return name
		}
	}
	return e.registry.Qualify(name)
}

func (e *Engine) serverArgv() []string {
	return []string{"node", e.cfg.Server.Main}
}

// serverBody supervises the subordinate server until it exits, restarting
// it after crashes.
func (e *Engine) serverBody() task.Func {
	return func(ctx context.Context) error {
		sup := procman.NewSupervisor(e.serverArgv(), e.root, e.logger)
		code, err := sup.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("engine: server: %w", err)
		}
		if code != 0 {
			return fmt.Errorf("engine: server exited with code %d", code)
		}
		return nil
	}
}

// demonBody supervises the server and additionally restarts it whenever a
// watched server source changes.
func (e *Engine) demonBody() task.Func {
	return func(ctx context.Context) error {
		w, err := watcher.New(e.root)
		if err != nil {
			return fmt.Errorf("engine: demon: %w", err)
		}
		defer w.Close()

		sup := procman.NewSupervisor(e.serverArgv(), e.root, e.logger)
		for _, pattern := range e.cfg.Server.Watch {
			unbind, err := w.BindDebounced(pattern, devloopDebounce, func(path string) {
				e.logger.Printf("engine: %s changed, restarting server", path)
				sup.Restart()
			})
			if err != nil {
				return fmt.Errorf("engine: demon: %w", err)
			}
			defer unbind()
		}
		code, err := sup.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("engine: demon: %w", err)
		}
		if code != 0 {
			return fmt.Errorf("engine: server exited with code %d", code)
		}
		return nil
	}
}

func (e *Engine) devBody() task.Func {
	return func(ctx context.Context) error {
		req, err := e.Dev(ctx)
		e.mu.Lock()
		e.lastRestart = &req
		e.mu.Unlock()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

// autotestBody runs the tests once, then reruns them whenever a test or
// server source changes, until the context ends.
func (e *Engine) autotestBody(stage pipeline.Stage) task.Func {
	testBody := stage.Test(e.exec)
	return func(ctx context.Context) error {
		if err := testBody(ctx); err != nil {
			e.logger.Printf("engine: autotest: %v", err)
		}
		patterns := append(append([]string{}, e.cfg.Test.Watch...), e.cfg.Server.Watch...)
		for _, pattern := range patterns {
			unbind, err := e.sched.Watch(pattern, func(path string) {
				e.logger.Printf("engine: %s changed, rerunning tests", path)
				if err := testBody(ctx); err != nil {
					e.logger.Printf("engine: autotest: %v", err)
				}
			})
			if err != nil {
				return fmt.Errorf("engine: autotest: %w", err)
			}
			defer unbind()
		}
		<-ctx.Done()
		return nil
	}
}

// LastRestart returns the restart request produced by the most recent dev
// run, if any.
func (e *Engine) LastRestart() *devloop.RestartRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRestart
}

// Close releases the scheduler's watcher and the live-reload listener.
func (e *Engine) Close() error {
	err := e.sched.Close()
	if shutdownErr := e.reload.Shutdown(context.Background()); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

// Install runs the package-manager install and prune sequence.
func (e *Engine) Install(ctx context.Context) error {
	return procman.Install(ctx, e.exec, e.cfg.Packages, e.root)
}

// InstallLibs runs the library-manager install.
func (e *Engine) InstallLibs(ctx context.Context) error {
	return procman.InstallLibs(ctx, e.exec, e.cfg.Packages, e.root)
}

// freshBuild re-runs the build in a detached copy of this executable, so
// freshly installed libraries are picked up by a clean process.
func (e *Engine) freshBuild(ctx context.Context) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return -1, fmt.Errorf("engine: locate executable: %w", err)
	}
	return e.exec.Spawn(ctx, []string{exe, e.Qualify("build")}, e.root)
}
