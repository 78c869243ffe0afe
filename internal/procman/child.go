package procman

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// stopGrace is how long Stop waits for a terminated child before killing
// it outright.
const stopGrace = 5 * time.Second

// Child is one supervised long-running process, such as the subordinate
// server the dev loop keeps alive. A Child runs at most once; restarting
// means starting a fresh Child.
type Child struct {
	ID   string
	argv []string
	dir  string

	logger Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	started bool

	done     chan struct{}
	exitCode atomic.Int32
	stopped  atomic.Bool
}

// NewChild prepares a supervised process. The child is not running until
// Start is called.
func NewChild(argv []string, dir string, logger Logger) *Child {
	c := &Child{
		ID:     uuid.New().String(),
		argv:   append([]string{}, argv...),
		dir:    dir,
		logger: logger,
		done:   make(chan struct{}),
	}
	if c.logger == nil {
		c.logger = nopLogger{}
	}
	c.exitCode.Store(-1)
	return c
}

// Start launches the child. The process inherits the parent's stdio so
// server output lands on the developer's terminal.
func (c *Child) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("procman: child %s already started", c.ID)
	}
	if len(c.argv) == 0 {
		return fmt.Errorf("procman: child: empty argv")
	}
	cmd := exec.Command(c.argv[0], c.argv[1:]...)
	cmd.Dir = c.dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("procman: start %s: %w", c.argv[0], err)
	}
	c.cmd = cmd
	c.started = true
	c.logger.Printf("procman: started %v (pid %d)", c.argv, cmd.Process.Pid)

	go func() {
		err := cmd.Wait()
		code := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		c.exitCode.Store(int32(code))
		c.logger.Printf("procman: %s exited with code %d", c.argv[0], code)
		close(c.done)
	}()
	return nil
}

// Done is closed once the child has exited, whether on its own, from a
// crash, or through Stop.
func (c *Child) Done() <-chan struct{} {
	return c.done
}

// ExitCode reports the child's exit code, or -1 while it is still
// running.
func (c *Child) ExitCode() int {
	return int(c.exitCode.Load())
}

// Stopped reports whether the exit was requested through Stop, which
// distinguishes a deliberate restart from a crash.
func (c *Child) Stopped() bool {
	return c.stopped.Load()
}

// Stop terminates the child and waits for it to exit. Termination is
// polite first and forceful after the grace period.
func (c *Child) Stop() error {
	c.mu.Lock()
	cmd := c.cmd
	started := c.started
	c.mu.Unlock()
	if !started {
		return nil
	}
	select {
	case <-c.done:
		return nil
	default:
	}
	c.stopped.Store(true)
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone; the waiter goroutine will close done.
		<-c.done
		return nil
	}
	select {
	case <-c.done:
		return nil
	case <-time.After(stopGrace):
	}
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("procman: kill %s: %w", c.argv[0], err)
	}
	<-c.done
	return nil
}
