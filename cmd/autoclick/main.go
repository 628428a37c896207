package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"jordanella.com/autoclick-go/internal/acquire"
	"jordanella.com/autoclick-go/internal/config"
	"jordanella.com/autoclick-go/internal/cv"
	"jordanella.com/autoclick-go/internal/display"
	"jordanella.com/autoclick-go/internal/events"
	"jordanella.com/autoclick-go/internal/input"
	"jordanella.com/autoclick-go/internal/logging"
)

// Exit codes
const (
	exitFound    = 0
	exitConfig   = 1
	exitNotFound = 2
	exitAborted  = 130
)

// desktop is the input side of the platform
type desktop interface {
	acquire.Executor
	input.Pointer
	input.Clipboard
}

// app carries resolved settings and platform hooks shared by all commands
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	logFormat  string
	journal    string

	settings config.Settings
	logger   *logging.Logger
	reporter *logging.ErrorReporter

	monitors display.Enumerator
	frames   cv.FrameSource
	desktop  desktop
	notify   func(chan<- os.Signal)
}

func newApp() *app {
	return &app{
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		settings: config.Default(),
		logger:   logging.NewLogger("autoclick"),
		monitors: display.NewScreenEnumerator(),
		frames:   cv.NewScreenSource(),
		desktop:  input.NewRobot(),
		notify: func(c chan<- os.Signal) {
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		},
	}
}

// exitError carries a process exit code through cobra
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func execute(a *app, args []string) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.Execute()
	if err == nil {
		return exitFound
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(a.stderr, "[error] %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(a.stderr, "[error] %v\n", err)
	return exitConfig
}

// signalContext maps OS signals onto control signals: SIGINT aborts, SIGTERM quits.
// Both cancel the returned context.
func (a *app) signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(contextOrBackground(parent))

	ctrl := events.NewController()
	ctrl.Handle(events.SignalAbort, func() {
		a.logger.Warn("interrupt received, aborting")
		cancel()
	})
	ctrl.Handle(events.SignalQuit, func() {
		a.logger.Info("shutting down")
		cancel()
	})

	osSignals := make(chan os.Signal, 1)
	if a.notify != nil {
		a.notify(osSignals)
	}
	control := make(chan events.Signal)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-osSignals:
				next := events.SignalAbort
				if sig == syscall.SIGTERM {
					next = events.SignalQuit
				}
				select {
				case control <- next:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	go ctrl.Run(ctx, control)

	return ctx, func() {
		signal.Stop(osSignals)
		cancel()
	}
}

func main() {
	os.Exit(execute(newApp(), os.Args[1:]))
}
