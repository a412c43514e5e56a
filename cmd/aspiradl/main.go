package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/simulot/aspiradl/pkg/tiers"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Process exit codes
const (
	exitOK          = 0
	exitFailed      = 1
	exitConfigError = 2
	exitCancelled   = 130
)

// exitError carries the process exit code up to main
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

func main() {
	// trap Ctrl+C and call cancel on the context
	ctx, cancel := context.WithCancel(context.Background())
	breakChannel := make(chan os.Signal, 1)
	signal.Notify(breakChannel, os.Interrupt)

	// waiting for interruption
	go func() {
		select {
		case <-breakChannel:
			cancel()
		case <-ctx.Done():
			return
		}
	}()

	code := run(ctx, os.Args[1:])

	// Normal end... cleaning up
	signal.Stop(breakChannel)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	a := newApp()
	defer a.close()
	cmd := a.rootCommand()
	cmd.SetArgs(args)
	return exitCode(cmd.ExecuteContext(ctx))
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s\n", filepath.Base(os.Args[0]), ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(os.Stderr, "%s: %s\n", filepath.Base(os.Args[0]), err)
	var ce *tiers.ConfigurationError
	if errors.As(err, &ce) {
		return exitConfigError
	}
	if errors.Is(err, context.Canceled) {
		return exitCancelled
	}
	return exitFailed
}
