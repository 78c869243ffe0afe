package devloop

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Beg-in/gulp-begin/internal/config"
	"github.com/Beg-in/gulp-begin/internal/procman"
)

type fakeBinder struct {
	mu       sync.Mutex
	bindings map[string]func(path string)
}

func newFakeBinder() *fakeBinder {
	return &fakeBinder{bindings: map[string]func(path string){}}
}

func (b *fakeBinder) BindDebounced(pattern string, _ time.Duration, onChange func(path string)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bindings[pattern] = onChange
	return func() {}, nil
}

// fire invokes the callback bound to the pattern covering path.
func (b *fakeBinder) fire(t *testing.T, pattern, path string) {
	t.Helper()
	b.mu.Lock()
	fn, ok := b.bindings[pattern]
	b.mu.Unlock()
	if !ok {
		t.Fatalf("no binding for %s (have %v)", pattern, b.patterns())
	}
	fn(path)
}

func (b *fakeBinder) patterns() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.bindings))
	for p := range b.bindings {
		out = append(out, p)
	}
	return out
}

type recordingRunner struct {
	mu   sync.Mutex
	runs []string
}

func (r *recordingRunner) RunTask(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, name)
	return nil
}

func (r *recordingRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.runs...)
}

type recordingInstaller struct {
	mu       sync.Mutex
	installs []string
	err      error
}

func (i *recordingInstaller) Install(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.installs = append(i.installs, "install")
	return i.err
}

func (i *recordingInstaller) InstallLibs(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.installs = append(i.installs, "installLibs")
	return i.err
}

func (i *recordingInstaller) calls() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string{}, i.installs...)
}

type fakeServer struct {
	restarts chan struct{}
	exit     chan int
}

func newFakeServer() *fakeServer {
	return &fakeServer{restarts: make(chan struct{}, 8), exit: make(chan int, 1)}
}

func (s *fakeServer) Run(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case code := <-s.exit:
		return code, nil
	}
}

func (s *fakeServer) Restart() {
	s.restarts <- struct{}{}
}

func testOptions(runner *recordingRunner, binder *fakeBinder) Options {
	cfg := config.Default()
	return Options{
		Cfg:    cfg,
		Files:  config.BuildFiles(cfg),
		Runner: runner,
		Watch:  binder,
	}
}

// startLoop runs the supervisor in the background and waits until its
// bindings are installed.
func startLoop(t *testing.T, s *Supervisor) (<-chan RestartRequest, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan RestartRequest, 1)
	go func() {
		req, _ := s.Run(ctx)
		result <- req
	}()
	deadline := time.After(5 * time.Second)
	for s.State() != StateWatching {
		select {
		case <-deadline:
			t.Fatalf("loop never reached watching state")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	return result, cancel
}

func waitResult(t *testing.T, result <-chan RestartRequest) RestartRequest {
	t.Helper()
	select {
	case req := <-result:
		return req
	case <-time.After(5 * time.Second):
		t.Fatalf("loop never ended")
		return RestartRequest{}
	}
}

func TestInitialBuildRunsFirst(t *testing.T) {
	runner := &recordingRunner{}
	binder := newFakeBinder()
	s, err := New(testOptions(runner, binder))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, cancel := startLoop(t, s)
	cancel()
	waitResult(t, result)
	runs := runner.ran()
	if len(runs) == 0 || runs[0] != "build" {
		t.Fatalf("runs = %v", runs)
	}
}

func TestStyleChangeTriggersStylesOnly(t *testing.T) {
	runner := &recordingRunner{}
	binder := newFakeBinder()
	s, err := New(testOptions(runner, binder))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, cancel := startLoop(t, s)
	defer cancel()

	before := len(runner.ran())
	binder.fire(t, "client/src/styles/**/*.scss", "client/src/styles/main.scss")
	runs := runner.ran()[before:]
	if len(runs) != 1 || runs[0] != "styles" {
		t.Fatalf("style change reran %v", runs)
	}
	cancel()
	waitResult(t, result)
}

func TestManifestChangeInstallsAndRequestsRestart(t *testing.T) {
	runner := &recordingRunner{}
	binder := newFakeBinder()
	installer := &recordingInstaller{}
	opts := testOptions(runner, binder)
	opts.Install = installer
	s, err := New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, cancel := startLoop(t, s)
	defer cancel()

	before := len(runner.ran())
	binder.fire(t, "package.json", "package.json")
	req := waitResult(t, result)
	if req.Code != 0 {
		t.Fatalf("restart code = %d", req.Code)
	}
	if calls := installer.calls(); len(calls) != 1 || calls[0] != "install" {
		t.Fatalf("installer calls = %v", calls)
	}
	if extra := runner.ran()[before:]; len(extra) != 0 {
		t.Fatalf("manifest change triggered rebuilds %v", extra)
	}
}

func TestFailedInstallAbortsRestartChain(t *testing.T) {
	runner := &recordingRunner{}
	binder := newFakeBinder()
	installer := &recordingInstaller{err: fmt.Errorf("registry down")}
	opts := testOptions(runner, binder)
	opts.Install = installer
	s, err := New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, cancel := startLoop(t, s)
	defer cancel()

	binder.fire(t, "package.json", "package.json")
	req := waitResult(t, result)
	if req.Code == 0 {
		t.Fatalf("failed install must not request a clean restart")
	}
}

func TestFailedInstallForwardsStepExitCode(t *testing.T) {
	runner := &recordingRunner{}
	binder := newFakeBinder()
	installer := &recordingInstaller{err: &procman.StepError{Step: "npm", Code: 7}}
	opts := testOptions(runner, binder)
	opts.Install = installer
	s, err := New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, cancel := startLoop(t, s)
	defer cancel()

	binder.fire(t, "package.json", "package.json")
	req := waitResult(t, result)
	if req.Code != 7 {
		t.Fatalf("restart code = %d, want the install step's exit code 7", req.Code)
	}
}

func TestFailedLibInstallForwardsStepExitCode(t *testing.T) {
	runner := &recordingRunner{}
	binder := newFakeBinder()
	installer := &recordingInstaller{err: &procman.StepError{Step: "bower", Code: 3}}
	opts := testOptions(runner, binder)
	opts.Install = installer
	opts.FreshBuild = func(context.Context) (int, error) {
		t.Fatalf("fresh build ran after failed lib install")
		return 0, nil
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, cancel := startLoop(t, s)
	defer cancel()

	binder.fire(t, "bower.json", "bower.json")
	req := waitResult(t, result)
	if req.Code != 3 {
		t.Fatalf("restart code = %d, want the install step's exit code 3", req.Code)
	}
}

func TestLibManifestChangeRunsFreshBuild(t *testing.T) {
	runner := &recordingRunner{}
	binder := newFakeBinder()
	installer := &recordingInstaller{}
	opts := testOptions(runner, binder)
	opts.Install = installer
	opts.FreshBuild = func(context.Context) (int, error) { return 4, nil }
	s, err := New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, cancel := startLoop(t, s)
	defer cancel()

	binder.fire(t, "bower.json", "bower.json")
	req := waitResult(t, result)
	if req.Code != 4 {
		t.Fatalf("restart code = %d, want fresh build's code", req.Code)
	}
	if calls := installer.calls(); len(calls) != 1 || calls[0] != "installLibs" {
		t.Fatalf("installer calls = %v", calls)
	}
}

func TestServerWatchRestartsServer(t *testing.T) {
	runner := &recordingRunner{}
	binder := newFakeBinder()
	server := newFakeServer()
	opts := testOptions(runner, binder)
	opts.Server = server
	s, err := New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, cancel := startLoop(t, s)
	defer cancel()

	binder.fire(t, "server/**/*.js", "server/index.js")
	select {
	case <-server.restarts:
	case <-time.After(5 * time.Second):
		t.Fatalf("server never restarted")
	}
	cancel()
	waitResult(t, result)
}

func TestServerExitEndsLoopWithItsCode(t *testing.T) {
	runner := &recordingRunner{}
	binder := newFakeBinder()
	server := newFakeServer()
	opts := testOptions(runner, binder)
	opts.Server = server
	s, err := New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, cancel := startLoop(t, s)
	defer cancel()

	server.exit <- 5
	req := waitResult(t, result)
	if req.Code != 5 {
		t.Fatalf("loop code = %d, want subordinate's", req.Code)
	}
	if s.State() != StateExited {
		t.Fatalf("state = %s", s.State())
	}
}

func TestOptionsFileChangeRequestsCleanRestart(t *testing.T) {
	runner := &recordingRunner{}
	binder := newFakeBinder()
	s, err := New(testOptions(runner, binder))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, cancel := startLoop(t, s)
	defer cancel()

	binder.fire(t, config.OptionsFile, config.OptionsFile)
	req := waitResult(t, result)
	if req.Code != 0 {
		t.Fatalf("restart code = %d", req.Code)
	}
}

func TestCustomOptionsPathReplacesDefaultBinding(t *testing.T) {
	runner := &recordingRunner{}
	binder := newFakeBinder()
	opts := testOptions(runner, binder)
	opts.OptionsPath = "custom.yaml"
	s, err := New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, cancel := startLoop(t, s)
	defer cancel()

	for _, pattern := range binder.patterns() {
		if pattern == config.OptionsFile {
			t.Fatalf("default options file still bound alongside %q", opts.OptionsPath)
		}
	}
	binder.fire(t, "custom.yaml", "custom.yaml")
	req := waitResult(t, result)
	if req.Code != 0 {
		t.Fatalf("restart code = %d", req.Code)
	}
}

func TestQualifyPrefixesTaskNames(t *testing.T) {
	runner := &recordingRunner{}
	binder := newFakeBinder()
	opts := testOptions(runner, binder)
	opts.Qualify = func(base string) string { return "app_" + base }
	s, err := New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, cancel := startLoop(t, s)
	cancel()
	waitResult(t, result)
	if runs := runner.ran(); len(runs) == 0 || !strings.HasPrefix(runs[0], "app_") {
		t.Fatalf("runs = %v", runs)
	}
}

func TestNotifierBoundToArtifactTree(t *testing.T) {
	runner := &recordingRunner{}
	binder := newFakeBinder()
	notified := make(chan []string, 1)
	opts := testOptions(runner, binder)
	opts.Notify = notifyFunc(func(files []string) { notified <- files })
	s, err := New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, cancel := startLoop(t, s)
	defer cancel()

	binder.fire(t, "client/dist/**", "client/dist/index.html")
	select {
	case files := <-notified:
		if len(files) != 1 || files[0] != "index.html" {
			t.Fatalf("notified %v", files)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("reload never notified")
	}
	cancel()
	waitResult(t, result)
}

type notifyFunc func(files []string)

func (f notifyFunc) Notify(files []string) { f(files) }
