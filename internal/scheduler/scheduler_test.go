package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Beg-in/gulp-begin/internal/task"
)

func define(t *testing.T, s *Scheduler, name string, deps []string, body task.Func) {
	t.Helper()
	if err := s.DefineTask(name, deps, body); err != nil {
		t.Fatalf("define %s: %v", name, err)
	}
}

func TestRunTaskOrdersDependencies(t *testing.T) {
	s := New(t.TempDir())
	var mu sync.Mutex
	var order []string
	record := func(name string) task.Func {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	define(t, s, "lint", nil, record("lint"))
	define(t, s, "scripts", []string{"lint"}, record("scripts"))
	define(t, s, "build", []string{"scripts"}, record("build"))

	if err := s.RunTask(context.Background(), "build"); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"lint", "scripts", "build"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRunTaskRunsSiblingsBeforeAggregate(t *testing.T) {
	s := New(t.TempDir())
	var done int32
	body := func(context.Context) error {
		atomic.AddInt32(&done, 1)
		return nil
	}
	define(t, s, "html", nil, body)
	define(t, s, "styles", nil, body)
	define(t, s, "scripts", nil, body)
	define(t, s, "images", nil, body)
	define(t, s, "build", []string{"html", "styles", "scripts", "images"}, func(context.Context) error {
		if n := atomic.LoadInt32(&done); n != 4 {
			return fmt.Errorf("aggregate ran with %d of 4 dependencies complete", n)
		}
		return nil
	})
	if err := s.RunTask(context.Background(), "build"); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunTaskFailureSkipsDependentsNotSiblings(t *testing.T) {
	s := New(t.TempDir())
	var siblingRan, dependentRan bool
	define(t, s, "bad", nil, func(context.Context) error {
		return fmt.Errorf("boom")
	})
	define(t, s, "sibling", nil, func(context.Context) error {
		siblingRan = true
		return nil
	})
	define(t, s, "dependent", []string{"bad"}, func(context.Context) error {
		dependentRan = true
		return nil
	})
	define(t, s, "all", []string{"sibling", "dependent"}, func(context.Context) error {
		return nil
	})
	err := s.RunTask(context.Background(), "all")
	if err == nil {
		t.Fatalf("expected aggregate failure")
	}
	if !siblingRan {
		t.Fatalf("sibling should have run despite unrelated failure")
	}
	if dependentRan {
		t.Fatalf("dependent of failed task should have been skipped")
	}
}

func TestRunTaskDetectsCycles(t *testing.T) {
	s := New(t.TempDir())
	define(t, s, "a", []string{"b"}, func(context.Context) error { return nil })
	define(t, s, "b", []string{"a"}, func(context.Context) error { return nil })
	if err := s.RunTask(context.Background(), "a"); err == nil {
		t.Fatalf("expected cycle error")
	}
}

func TestRunTaskRejectsUnknownTask(t *testing.T) {
	s := New(t.TempDir())
	if err := s.RunTask(context.Background(), "missing"); err == nil {
		t.Fatalf("expected unknown task error")
	}
}

func TestDefineTaskRejectsDuplicates(t *testing.T) {
	s := New(t.TempDir())
	define(t, s, "a", nil, func(context.Context) error { return nil })
	if err := s.DefineTask("a", nil, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected duplicate definition error")
	}
}

func TestSameTaskInvocationsAreSerialized(t *testing.T) {
	s := New(t.TempDir())
	var active, maxActive int32
	define(t, s, "styles", nil, func(context.Context) error {
		now := atomic.AddInt32(&active, 1)
		for {
			max := atomic.LoadInt32(&maxActive)
			if now <= max || atomic.CompareAndSwapInt32(&maxActive, max, now) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.RunTask(context.Background(), "styles")
		}()
	}
	wg.Wait()
	if atomic.LoadInt32(&maxActive) != 1 {
		t.Fatalf("same-name task ran concurrently: max active %d", maxActive)
	}
}

func TestRunTaskHonorsContextCancellation(t *testing.T) {
	s := New(t.TempDir())
	define(t, s, "slow", nil, func(ctx context.Context) error {
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.RunTask(ctx, "slow"); err == nil {
		t.Fatalf("expected context error")
	}
}
