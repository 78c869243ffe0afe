// Package watcher turns fsnotify events into pattern-bound change
// callbacks. The dev-loop supervisor binds glob patterns or literal paths
// to actions; the watcher owns the recursive OS watches and dispatches
// matching events.
package watcher

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Beg-in/gulp-begin/internal/glob"
)

// ErrClosed is returned when binding against a closed watcher.
var ErrClosed = errors.New("watcher is closed")

// Watcher monitors a project tree and dispatches change events to pattern
// bindings. Paths handed to callbacks are slash-separated and relative to
// the watcher root.
type Watcher struct {
	root string
	fs   *fsnotify.Watcher

	mu       sync.Mutex
	bindings map[int]*binding
	nextID   int
	watched  map[string]bool
	closed   bool

	closeCh chan struct{}
	wg      sync.WaitGroup
}

type binding struct {
	pattern  string
	onChange func(path string)
	delay    time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a watcher rooted at the given directory.
func New(root string) (*Watcher, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     abs,
		fs:       fsw,
		bindings: make(map[int]*binding),
		watched:  make(map[string]bool),
		closeCh:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.processLoop()
	return w, nil
}

// Bind registers a change callback for a glob pattern or literal path and
// returns a function that removes the binding again.
func (w *Watcher) Bind(pattern string, onChange func(path string)) (func(), error) {
	return w.BindDebounced(pattern, 0, onChange)
}

// BindDebounced is Bind with per-path coalescing: rapid events on the same
// path within the delay window collapse into one callback.
func (w *Watcher) BindDebounced(pattern string, delay time.Duration, onChange func(path string)) (func(), error) {
	if onChange == nil {
		return nil, errors.New("watcher: onChange callback is required")
	}
	pattern = filepath.ToSlash(pattern)
	if strings.ContainsAny(pattern, "*?[") {
		if err := w.watchRoot(glob.Root(pattern)); err != nil {
			return nil, err
		}
	} else if err := w.watchLiteral(pattern); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	id := w.nextID
	w.nextID++
	b := &binding{
		pattern:  pattern,
		onChange: onChange,
		delay:    delay,
		pending:  make(map[string]*time.Timer),
	}
	w.bindings[id] = b
	return func() {
		w.mu.Lock()
		delete(w.bindings, id)
		w.mu.Unlock()
		b.cancelPending()
	}, nil
}

// Close stops the watcher and releases all OS watches.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	for _, b := range w.bindings {
		b.cancelPending()
	}
	w.mu.Unlock()
	err := w.fs.Close()
	w.wg.Wait()
	return err
}

// watchRoot establishes recursive watches under the given directory,
// tolerating paths that do not exist yet.
func (w *Watcher) watchRoot(rel string) error {
	dir := filepath.Join(w.root, filepath.FromSlash(rel))
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Watch the nearest existing ancestor so creation is seen.
			return w.watchNearestAncestor(dir)
		}
		return err
	}
	if !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return w.addWatch(path)
	})
}

// watchLiteral watches only the parent directory of a literal path, so a
// single-file binding never pulls the whole tree into the watch set.
func (w *Watcher) watchLiteral(rel string) error {
	dir := filepath.Dir(filepath.Join(w.root, filepath.FromSlash(rel)))
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return w.watchNearestAncestor(dir)
		}
		return err
	}
	return w.addWatch(dir)
}

func (w *Watcher) watchNearestAncestor(dir string) error {
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		if _, err := os.Stat(parent); err == nil {
			return w.addWatch(parent)
		}
		dir = parent
	}
}

func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.watched[path] {
		return nil
	}
	if err := w.fs.Add(path); err != nil {
		return err
	}
	w.watched[path] = true
	return nil
}

func (w *Watcher) processLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.closeCh:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case _, ok := <-w.fs.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New directories join the recursive watch.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addWatch(event.Name)
		}
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	w.mu.Lock()
	matched := make([]*binding, 0, len(w.bindings))
	for _, b := range w.bindings {
		if glob.Match(b.pattern, rel) {
			matched = append(matched, b)
		}
	}
	w.mu.Unlock()
	for _, b := range matched {
		b.fire(rel)
	}
}

func (b *binding) fire(path string) {
	if b.delay <= 0 {
		b.onChange(path)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if timer, ok := b.pending[path]; ok {
		timer.Reset(b.delay)
		return
	}
	b.pending[path] = time.AfterFunc(b.delay, func() {
		b.mu.Lock()
		delete(b.pending, path)
		b.mu.Unlock()
		b.onChange(path)
	})
}

func (b *binding) cancelPending() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for path, timer := range b.pending {
		timer.Stop()
		delete(b.pending, path)
	}
}

