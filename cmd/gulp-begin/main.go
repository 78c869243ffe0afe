// cmd/gulp-begin/main.go
//
// Entry point for the gulp-begin CLI.
//
// Flow:
// 1. Load the YAML options file and resolve it over the defaults
// 2. Mount transform plugins over the toolchain
// 3. Register the task graph and run the named task
// 4. For the dev loop, translate the restart request into an exit code

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Beg-in/gulp-begin/internal/config"
	"github.com/Beg-in/gulp-begin/internal/devloop"
	"github.com/Beg-in/gulp-begin/internal/engine"
	"github.com/Beg-in/gulp-begin/internal/logging"
	"github.com/Beg-in/gulp-begin/internal/pipeline"
	"github.com/Beg-in/gulp-begin/internal/tui"
	"github.com/Beg-in/gulp-begin/plugins"
)

func main() {
	optionsFile := flag.String("c", config.OptionsFile, "path to the options file, relative to the project")
	projectDir := flag.String("project", "", "path to the project directory (defaults to cwd)")
	withTUI := flag.Bool("tui", false, "show the dev dashboard")
	flag.Parse()

	taskName := strings.TrimSpace(flag.Arg(0))
	if taskName == "" {
		taskName = "dev"
	}

	project := *projectDir
	if project == "" {
		var err error
		project, err = os.Getwd()
		if err != nil {
			die("determine working directory: %v", err)
		}
	}
	project, err := filepath.Abs(project)
	if err != nil {
		die("resolve project dir: %v", err)
	}

	opts, err := config.LoadOptions(filepath.Join(project, *optionsFile))
	if err != nil {
		die("load options: %v", err)
	}

	logger, err := logging.New(project)
	if err != nil {
		die("open log: %v", err)
	}
	defer logger.Close()
	logger = logger.WithEcho(os.Stderr)

	tools := pipeline.DefaultToolchain()
	if err := plugins.Apply(&tools, project); err != nil {
		die("load plugins: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var devEvents chan devloop.Event
	options := []engine.Option{
		engine.WithLogger(logger),
		engine.WithToolchain(tools),
		engine.WithOptionsFile(*optionsFile),
	}
	useTUI := *withTUI && taskName == "dev"
	if useTUI {
		devEvents = make(chan devloop.Event, 64)
		options = append(options, engine.WithDevEventHook(func(event devloop.Event) {
			select {
			case devEvents <- event:
			default:
			}
		}))
	}

	e, err := engine.New(project, opts, options...)
	if err != nil {
		die("build engine: %v", err)
	}
	defer e.Close()
	if err := e.Register(); err != nil {
		die("register tasks: %v", err)
	}

	if taskName == "dev" || taskName == e.Qualify("dev") {
		os.Exit(runDev(ctx, e, devEvents, useTUI))
	}

	if err := e.Run(ctx, taskName); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		die("%s: %v", taskName, err)
	}
}

// runDev drives the development loop and returns the process exit code
// the restart request asks for.
func runDev(ctx context.Context, e *engine.Engine, events chan devloop.Event, useTUI bool) int {
	dashboardDone := make(chan struct{})
	if useTUI {
		names := make([]string, 0, len(engine.TaskNames))
		for _, base := range engine.TaskNames {
			names = append(names, e.Qualify(base))
		}
		go func() {
			defer close(dashboardDone)
			if err := tui.Run(names, events); err != nil {
				fmt.Fprintf(os.Stderr, "dashboard: %v\n", err)
			}
		}()
	} else {
		close(dashboardDone)
	}

	req, err := e.Dev(ctx)
	if events != nil {
		close(events)
	}
	<-dashboardDone
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "dev: %v\n", err)
		if req.Code == 0 {
			return 1
		}
	}
	return req.Code
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
