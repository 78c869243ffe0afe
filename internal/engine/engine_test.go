package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Beg-in/gulp-begin/internal/config"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) count(substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, contents := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func newEngine(t *testing.T, opts config.Options, files map[string]string, options ...Option) *Engine {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, files)
	e, err := New(root, opts, options...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(func() {
		_ = e.Close()
	})
	if err := e.Register(); err != nil {
		t.Fatalf("register: %v", err)
	}
	return e
}

func TestBuildProducesAllCategoryArtifacts(t *testing.T) {
	e := newEngine(t, nil, map[string]string{
		"client/src/index.html":       "<p>\n  hi\n</p>\n",
		"client/src/scripts/a.js":     "var a = 1;\n",
		"client/src/styles/main.scss": "body { color: red; }\n",
		"client/src/images/mark.png":  "png-bytes",
	})
	if err := e.Run(context.Background(), "build"); err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, artifact := range []string{
		"client/dist/index.html",
		"client/dist/scripts/app.js",
		"client/dist/scripts/app.js.map",
		"client/dist/styles/main.css",
		"client/dist/images/mark.png",
	} {
		if _, err := os.Stat(filepath.Join(e.Root(), filepath.FromSlash(artifact))); err != nil {
			t.Fatalf("missing artifact %s: %v", artifact, err)
		}
	}
}

func TestExcludedServerWarnsOnceAndWritesNothing(t *testing.T) {
	logger := &recordingLogger{}
	e := newEngine(t, config.Options{
		"exclude":        []any{"server"},
		"warnExclusions": true,
	}, nil, WithLogger(logger))

	if err := e.Run(context.Background(), "server"); err != nil {
		t.Fatalf("stubbed server task must not fail: %v", err)
	}
	if n := logger.count("server is excluded"); n != 1 {
		t.Fatalf("warning count = %d", n)
	}
	entries, err := os.ReadDir(e.Root())
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("excluded server wrote into the tree: %v", entries)
	}

	// A second invocation warns again; warnings are per run, not global.
	if err := e.Run(context.Background(), "server"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if n := logger.count("server is excluded"); n != 2 {
		t.Fatalf("warning count after second run = %d", n)
	}
}

func TestOnlyListStubsEverythingElse(t *testing.T) {
	logger := &recordingLogger{}
	e := newEngine(t, config.Options{
		"only":           []any{"html"},
		"warnExclusions": true,
	}, map[string]string{
		"client/src/scripts/a.js": "var a = 1;\n",
	}, WithLogger(logger))

	if err := e.Run(context.Background(), "scripts"); err != nil {
		t.Fatalf("scripts stub: %v", err)
	}
	if logger.count("scripts is excluded") != 1 {
		t.Fatalf("scripts was not stubbed")
	}
	if _, err := os.Stat(filepath.Join(e.Root(), "client", "dist")); !os.IsNotExist(err) {
		t.Fatalf("stub produced artifacts")
	}
}

func TestExplicitEmptyExcludeDisablesOnly(t *testing.T) {
	logger := &recordingLogger{}
	e := newEngine(t, config.Options{
		"exclude":        []any{},
		"only":           []any{"html"},
		"warnExclusions": true,
	}, map[string]string{
		"client/src/scripts/a.js": "var a = 1;\n",
	}, WithLogger(logger))

	if err := e.Run(context.Background(), "scripts"); err != nil {
		t.Fatalf("scripts: %v", err)
	}
	if logger.count("is excluded") != 0 {
		t.Fatalf("empty exclude list failed to disable only")
	}
	if _, err := os.Stat(filepath.Join(e.Root(), "client", "dist", "scripts", "app.js")); err != nil {
		t.Fatalf("scripts did not run for real: %v", err)
	}
}

func TestPrefixQualifiesRegisteredNames(t *testing.T) {
	e := newEngine(t, config.Options{"prefix": "app"}, map[string]string{
		"client/src/index.html": "<p>hi</p>",
	})
	if got := e.Qualify("build"); got != "app_build" {
		t.Fatalf("qualify = %s", got)
	}
	// Run accepts both the base and the qualified form.
	if err := e.Run(context.Background(), "html"); err != nil {
		t.Fatalf("run base name: %v", err)
	}
	if err := e.Run(context.Background(), "app_html"); err != nil {
		t.Fatalf("run qualified name: %v", err)
	}
}

func TestRunBeforeRegisterFails(t *testing.T) {
	e, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer e.Close()
	if err := e.Run(context.Background(), "build"); err == nil {
		t.Fatalf("expected unregistered error")
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	e := newEngine(t, nil, nil)
	if err := e.Register(); err == nil {
		t.Fatalf("expected double-register error")
	}
}

func TestRootOptionRebasesProject(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"nested/client/src/index.html": "<p>hi</p>",
	})
	e, err := New(dir, config.Options{"root": "nested"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer e.Close()
	if err := e.Register(); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := e.Run(context.Background(), "html"); err != nil {
		t.Fatalf("html: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "nested", "client", "dist", "index.html")); err != nil {
		t.Fatalf("artifact not under nested root: %v", err)
	}
}
