package procman

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// crashBackoff spaces out restart attempts after a crash so a child that
// dies immediately does not spin the supervisor.
const crashBackoff = time.Second

// EventKind classifies supervisor lifecycle events.
type EventKind int

const (
	// EventStarted fires once when the first child comes up.
	EventStarted EventKind = iota
	// EventRestarted fires on every subsequent start.
	EventRestarted
	// EventCrashed fires when a child exits non-zero without being asked.
	EventCrashed
	// EventExited fires when the supervision loop ends.
	EventExited
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventRestarted:
		return "restarted"
	case EventCrashed:
		return "crashed"
	case EventExited:
		return "exited"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event is one observable supervisor transition. Code is -1 while the
// child is running.
type Event struct {
	Kind EventKind
	Code int
}

// Supervisor keeps one command running: it restarts the child after a
// crash or an explicit Restart, and ends when the child exits cleanly.
type Supervisor struct {
	argv   []string
	dir    string
	logger Logger

	events  chan Event
	restart chan struct{}

	mu      sync.Mutex
	current *Child
}

// NewSupervisor prepares a supervisor for argv. Run starts the loop.
func NewSupervisor(argv []string, dir string, logger Logger) *Supervisor {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Supervisor{
		argv:    append([]string{}, argv...),
		dir:     dir,
		logger:  logger,
		events:  make(chan Event, 16),
		restart: make(chan struct{}, 1),
	}
}

// Events exposes lifecycle transitions. The channel is buffered; events
// are dropped rather than blocking the loop when nobody drains it.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// Restart asks the loop to replace the current child with a fresh one.
// Repeated calls while a restart is pending collapse into one.
func (s *Supervisor) Restart() {
	select {
	case s.restart <- struct{}{}:
	default:
	}
}

func (s *Supervisor) emit(kind EventKind, code int) {
	select {
	case s.events <- Event{Kind: kind, Code: code}:
	default:
	}
}

// Run blocks supervising the child until it exits cleanly or ctx is
// cancelled, and returns the final exit code.
func (s *Supervisor) Run(ctx context.Context) (int, error) {
	first := true
	for {
		child := NewChild(s.argv, s.dir, s.logger)
		if err := child.Start(); err != nil {
			s.emit(EventExited, -1)
			return -1, err
		}
		s.mu.Lock()
		s.current = child
		s.mu.Unlock()
		if first {
			s.emit(EventStarted, -1)
			first = false
		} else {
			s.emit(EventRestarted, -1)
		}

		select {
		case <-ctx.Done():
			_ = child.Stop()
			s.emit(EventExited, child.ExitCode())
			return child.ExitCode(), ctx.Err()
		case <-s.restart:
			if err := child.Stop(); err != nil {
				s.emit(EventExited, child.ExitCode())
				return child.ExitCode(), err
			}
			continue
		case <-child.Done():
			code := child.ExitCode()
			if code != 0 {
				s.emit(EventCrashed, code)
				s.logger.Printf("procman: %s crashed with code %d, restarting", s.argv[0], code)
				select {
				case <-ctx.Done():
					s.emit(EventExited, code)
					return code, ctx.Err()
				case <-time.After(crashBackoff):
				}
				continue
			}
			s.emit(EventExited, 0)
			return 0, nil
		}
	}
}
