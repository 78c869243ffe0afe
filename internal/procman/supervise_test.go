package procman

import (
	"context"
	"testing"
	"time"
)

func drainUntil(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("event %s never arrived", kind)
		}
	}
}

func TestSupervisorCleanExitEndsLoop(t *testing.T) {
	s := NewSupervisor([]string{"sh", "-c", "exit 0"}, "", nil)
	code, err := s.Run(context.Background())
	if err != nil || code != 0 {
		t.Fatalf("run: code=%d err=%v", code, err)
	}
	drainUntil(t, s.Events(), EventStarted)
	drainUntil(t, s.Events(), EventExited)
}

func TestSupervisorRestartsAfterCrash(t *testing.T) {
	dir := t.TempDir()
	// First run crashes, second run exits cleanly once the marker exists.
	script := "if [ -f marker ]; then exit 0; fi; touch marker; exit 1"
	s := NewSupervisor([]string{"sh", "-c", script}, dir, nil)
	done := make(chan int, 1)
	go func() {
		code, _ := s.Run(context.Background())
		done <- code
	}()
	drainUntil(t, s.Events(), EventCrashed)
	drainUntil(t, s.Events(), EventRestarted)
	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf("final code = %d", code)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("supervisor never finished")
	}
}

func TestSupervisorExplicitRestart(t *testing.T) {
	s := NewSupervisor([]string{"sleep", "30"}, "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_, _ = s.Run(ctx)
		close(done)
	}()
	drainUntil(t, s.Events(), EventStarted)
	s.Restart()
	drainUntil(t, s.Events(), EventRestarted)
	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("supervisor did not stop on cancel")
	}
}
