// Package devloop supervises the development cycle: an initial full
// build, watch bindings that map source changes back onto build tasks,
// restart handling for the subordinate server, manifest self-watches,
// and debounced live-reload notification of artifact changes.
package devloop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Beg-in/gulp-begin/internal/config"
)

const (
	// categoryDebounce coalesces editor save bursts per source file.
	categoryDebounce = 250 * time.Millisecond
	// reloadDebounce batches artifact writes into one browser reload.
	reloadDebounce = time.Second
)

// State is the supervisor's lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateBuilding
	StateWatching
	StateRestarting
	StateExited
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateWatching:
		return "watching"
	case StateRestarting:
		return "restarting"
	case StateExited:
		return "exited"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// RestartRequest tells the caller the process should exit with Code. The
// loop never terminates the process itself; translating the request into
// an exit is the entry point's job.
type RestartRequest struct {
	Code int
}

// TaskRunner executes registered tasks by qualified name.
type TaskRunner interface {
	RunTask(ctx context.Context, name string) error
}

// WatchBinder registers debounced change callbacks for glob patterns.
type WatchBinder interface {
	BindDebounced(pattern string, delay time.Duration, onChange func(path string)) (func(), error)
}

// Notifier receives the artifact paths a rebuild touched.
type Notifier interface {
	Notify(files []string)
}

// ServerProc is the supervised subordinate server.
type ServerProc interface {
	Run(ctx context.Context) (int, error)
	Restart()
}

// Installer shells out to the package managers when a manifest changes.
type Installer interface {
	Install(ctx context.Context) error
	InstallLibs(ctx context.Context) error
}

// Logger is the minimal logging sink the loop reports to.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Event is one observable loop transition, consumed by the dashboard.
type Event struct {
	State State
	Task  string
	Path  string
	Err   error
}

// Options carries everything the supervisor depends on. Runner and Watch
// are required; the rest degrade to no-ops when absent.
type Options struct {
	Cfg     config.Config
	Files   config.FileSets
	Runner  TaskRunner
	Watch   WatchBinder
	Notify  Notifier
	Server  ServerProc
	Install Installer

	// Qualify maps base task names onto registered names. Identity when
	// nil.
	Qualify func(base string) string

	// FreshBuild runs a full build in a detached process and reports its
	// exit code, used after a library manifest change invalidates the
	// current process's view of the libraries.
	FreshBuild func(ctx context.Context) (int, error)

	// OnEvent observes loop transitions. Called from watcher goroutines.
	OnEvent func(Event)

	// OptionsPath is the options file the running engine was resolved
	// from, relative to the project root. Defaults to config.OptionsFile.
	OptionsPath string

	Logger Logger
}

// Supervisor drives the development loop.
type Supervisor struct {
	opts     Options
	state    atomic.Int32
	requests chan RestartRequest
	unbind   []func()
}

// New validates the options and prepares a supervisor.
func New(opts Options) (*Supervisor, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("devloop: task runner is required")
	}
	if opts.Watch == nil {
		return nil, fmt.Errorf("devloop: watch binder is required")
	}
	if opts.Qualify == nil {
		opts.Qualify = func(base string) string { return base }
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	if opts.OptionsPath == "" {
		opts.OptionsPath = config.OptionsFile
	}
	s := &Supervisor{
		opts:     opts,
		requests: make(chan RestartRequest, 1),
	}
	s.state.Store(int32(StateIdle))
	return s, nil
}

// State reports the loop's current lifecycle position.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(state State, task, path string, err error) {
	s.state.Store(int32(state))
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(Event{State: state, Task: task, Path: path, Err: err})
	}
}

func (s *Supervisor) request(req RestartRequest) {
	select {
	case s.requests <- req:
	default:
	}
}

// Run builds once, installs the watch bindings, starts the subordinate
// server, and blocks until something ends the loop: a manifest change, a
// clean subordinate exit, or ctx cancellation.
func (s *Supervisor) Run(ctx context.Context) (RestartRequest, error) {
	defer s.setState(StateExited, "", "", nil)
	defer s.teardown()

	s.setState(StateBuilding, s.opts.Qualify("build"), "", nil)
	if err := s.opts.Runner.RunTask(ctx, s.opts.Qualify("build")); err != nil {
		// A broken tree still enters watch mode; the next save retries.
		s.opts.Logger.Printf("devloop: initial build failed: %v", err)
	}

	if err := s.bindAll(ctx); err != nil {
		return RestartRequest{Code: 1}, err
	}

	serverDone := make(chan RestartRequest, 1)
	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	if s.opts.Server != nil {
		go func() {
			code, err := s.opts.Server.Run(serverCtx)
			if err != nil && ctx.Err() == nil {
				s.opts.Logger.Printf("devloop: server supervisor: %v", err)
			}
			serverDone <- RestartRequest{Code: code}
		}()
	}

	s.setState(StateWatching, "", "", nil)
	select {
	case <-ctx.Done():
		return RestartRequest{Code: 0}, ctx.Err()
	case req := <-s.requests:
		return req, nil
	case req := <-serverDone:
		s.opts.Logger.Printf("devloop: server exited with code %d, ending loop", req.Code)
		return req, nil
	}
}

func (s *Supervisor) teardown() {
	for _, unbind := range s.unbind {
		unbind()
	}
	s.unbind = nil
}

func (s *Supervisor) bind(pattern string, delay time.Duration, onChange func(path string)) error {
	unbind, err := s.opts.Watch.BindDebounced(pattern, delay, onChange)
	if err != nil {
		return fmt.Errorf("devloop: bind %s: %w", pattern, err)
	}
	s.unbind = append(s.unbind, unbind)
	return nil
}

// bindAll installs every watch binding: one per asset category, the
// server and test watches, the manifest self-watches, and the artifact
// watch feeding live reload.
func (s *Supervisor) bindAll(ctx context.Context) error {
	for _, category := range s.categories() {
		category := category
		for _, pattern := range category.patterns {
			if err := s.bind(pattern, categoryDebounce, func(path string) {
				s.rebuild(ctx, category.task, path)
			}); err != nil {
				return err
			}
		}
	}

	if s.opts.Server != nil {
		for _, pattern := range s.opts.Cfg.Server.Watch {
			if err := s.bind(pattern, categoryDebounce, func(path string) {
				s.setState(StateRestarting, "", path, nil)
				s.opts.Logger.Printf("devloop: %s changed, restarting server", path)
				s.opts.Server.Restart()
				s.setState(StateWatching, "", "", nil)
			}); err != nil {
				return err
			}
		}
	}

	for _, pattern := range s.opts.Cfg.Test.Watch {
		if err := s.bind(pattern, categoryDebounce, func(path string) {
			s.rebuild(ctx, s.opts.Qualify("test"), path)
		}); err != nil {
			return err
		}
	}

	if err := s.bindSelfWatches(ctx); err != nil {
		return err
	}

	if s.opts.Notify != nil {
		// Reload clients resolve artifacts against the destination root,
		// so notified paths are relative to it.
		dest := s.opts.Cfg.Client.Dest
		if err := s.bind(dest+"/**", reloadDebounce, func(path string) {
			s.opts.Notify.Notify([]string{strings.TrimPrefix(path, dest+"/")})
		}); err != nil {
			return err
		}
	}
	return nil
}

// category pairs one task with the source patterns that should trigger
// it.
type category struct {
	task     string
	patterns []string
}

func (s *Supervisor) categories() []category {
	files := s.opts.Files
	return []category{
		{task: s.opts.Qualify("html"), patterns: files.HTML.Src},
		{task: s.opts.Qualify("scripts"), patterns: concat(files.Scripts.Src, files.Scripts.Lib, files.Templates.Src)},
		{task: s.opts.Qualify("styles"), patterns: concat(files.Styles.Src, includePatterns(files.StyleIncludes))},
		{task: s.opts.Qualify("images"), patterns: files.Images.Src},
	}
}

func (s *Supervisor) rebuild(ctx context.Context, name, path string) {
	s.setState(StateBuilding, name, path, nil)
	err := s.opts.Runner.RunTask(ctx, name)
	if err != nil {
		s.opts.Logger.Printf("devloop: %s failed after %s changed: %v", name, path, err)
	}
	s.setState(StateWatching, name, path, err)
}

// bindSelfWatches watches the engine's own inputs. A manifest change
// means the running process's dependency view is stale, so the loop asks
// for a restart instead of rebuilding in place.
func (s *Supervisor) bindSelfWatches(ctx context.Context) error {
	if err := s.bind(s.opts.OptionsPath, categoryDebounce, func(path string) {
		s.opts.Logger.Printf("devloop: %s changed, requesting restart", path)
		s.request(RestartRequest{Code: 0})
	}); err != nil {
		return err
	}

	if manifest := s.opts.Cfg.Packages.Manifest; manifest != "" {
		if err := s.bind(manifest, categoryDebounce, func(path string) {
			s.opts.Logger.Printf("devloop: %s changed, reinstalling packages", path)
			if s.opts.Install != nil {
				if err := s.opts.Install.Install(ctx); err != nil {
					s.opts.Logger.Printf("devloop: install: %v", err)
					s.request(RestartRequest{Code: installExitCode(err)})
					return
				}
			}
			s.request(RestartRequest{Code: 0})
		}); err != nil {
			return err
		}
	}

	if manifest := s.opts.Cfg.Packages.LibManifest; manifest != "" {
		if err := s.bind(manifest, categoryDebounce, func(path string) {
			s.opts.Logger.Printf("devloop: %s changed, reinstalling libraries", path)
			if s.opts.Install != nil {
				if err := s.opts.Install.InstallLibs(ctx); err != nil {
					s.opts.Logger.Printf("devloop: install libs: %v", err)
					s.request(RestartRequest{Code: installExitCode(err)})
					return
				}
			}
			code := 0
			if s.opts.FreshBuild != nil {
				freshCode, err := s.opts.FreshBuild(ctx)
				if err != nil {
					s.opts.Logger.Printf("devloop: fresh build: %v", err)
				}
				code = freshCode
			}
			s.request(RestartRequest{Code: code})
		}); err != nil {
			return err
		}
	}
	return nil
}

// installExitCode surfaces the failed install step's exit status so the
// restart request carries it onward; errors without one map to 1.
func installExitCode(err error) int {
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		if code := coder.ExitCode(); code != 0 {
			return code
		}
	}
	return 1
}

func concat(groups ...[]string) []string {
	var out []string
	for _, group := range groups {
		out = append(out, group...)
	}
	return out
}

func includePatterns(includes config.FileSet) []string {
	var out []string
	for _, dir := range append(append([]string{}, includes.Lib...), includes.Src...) {
		out = append(out, dir+"/**/*.scss", dir+"/**/*.css")
	}
	return out
}
