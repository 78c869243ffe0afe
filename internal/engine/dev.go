package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Beg-in/gulp-begin/internal/devloop"
	"github.com/Beg-in/gulp-begin/internal/procman"
	"github.com/Beg-in/gulp-begin/internal/watcher"
)

// devloopDebounce coalesces file-change bursts before a restart binding
// fires.
const devloopDebounce = 250 * time.Millisecond

// Dev runs the development loop: full build, watch bindings, supervised
// server, live reload. It blocks until the loop ends and returns the
// restart request the entry point should honor.
func (e *Engine) Dev(ctx context.Context) (devloop.RestartRequest, error) {
	if !e.registered {
		return devloop.RestartRequest{Code: 1}, fmt.Errorf("engine: tasks not registered")
	}

	w, err := watcher.New(e.root)
	if err != nil {
		return devloop.RestartRequest{Code: 1}, fmt.Errorf("engine: dev: %w", err)
	}
	defer w.Close()

	var notify devloop.Notifier
	if err := e.reload.Start(ctx); err == nil {
		notify = e.reload
		defer func() {
			_ = e.reload.Shutdown(context.Background())
		}()
	} else {
		e.logger.Printf("engine: live reload unavailable: %v", err)
	}

	var server devloop.ServerProc
	if !e.excluded.Has(e.Qualify("server")) {
		server = procman.NewSupervisor(e.serverArgv(), e.root, e.logger)
	}

	loop, err := devloop.New(devloop.Options{
		Cfg:         e.cfg,
		Files:       e.files,
		Runner:      e.sched,
		Watch:       w,
		Notify:      notify,
		Server:      server,
		Install:     e,
		Qualify:     e.Qualify,
		FreshBuild:  e.freshBuild,
		OnEvent:     e.onDevEvent,
		OptionsPath: e.optionsFile,
		Logger:      e.logger,
	})
	if err != nil {
		return devloop.RestartRequest{Code: 1}, err
	}
	return loop.Run(ctx)
}
