package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/vedantwpatil/FormFrame/internal/config"
	"github.com/vedantwpatil/FormFrame/internal/log"
)

// exitInterrupted is the status used when a second signal forces an exit.
const exitInterrupted = 130

// Application holds the process-wide state shared by the subcommands.
type Application struct {
	config *config.Config
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	stdout io.Writer
	stderr io.Writer
	exit   func(code int)

	mu     sync.Mutex
	active func()
}

func NewApplication(stdout, stderr io.Writer) *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		ctx:    ctx,
		cancel: cancel,
		stdout: stdout,
		stderr: stderr,
		exit:   os.Exit,
	}
}

// Run executes the command line in args, without the program name.
func (app *Application) Run(args []string) error {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go app.handleSignals(sigChan)
	defer app.cancel()

	root := app.rootCommand()
	root.SetArgs(args)
	root.SetOut(app.stdout)
	root.SetErr(app.stderr)
	return root.ExecuteContext(app.ctx)
}

// setup loads configuration and applies its logging settings.
func (app *Application) setup(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log.Configure(log.Config{Level: cfg.Log.Level, Output: app.stderr})
	app.config = cfg
	app.logger = log.WithComponent("cli")
	return nil
}

// track registers the cancel hook of the in-flight run for signal handling.
func (app *Application) track(cancel func()) {
	app.mu.Lock()
	app.active = cancel
	app.mu.Unlock()
}

// handleSignals cancels the active run on the first signal and exits on the second.
func (app *Application) handleSignals(sigChan <-chan os.Signal) {
	interrupted := false
	for {
		select {
		case <-app.ctx.Done():
			return
		case sig := <-sigChan:
			if interrupted {
				fmt.Fprintf(app.stderr, "\nReceived %v again, exiting\n", sig)
				app.exit(exitInterrupted)
				return
			}
			interrupted = true
			fmt.Fprintf(app.stderr, "\nReceived %v, stopping...\n", sig)

			app.mu.Lock()
			active := app.active
			app.mu.Unlock()
			if active != nil {
				active()
				continue
			}
			app.cancel()
		}
	}
}
