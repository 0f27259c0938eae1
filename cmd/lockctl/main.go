package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bashhack/lockmux/internal/config"
	"github.com/bashhack/lockmux/internal/constants"
)

// Version information - injected at build time
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	versionInfo := config.VersionInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}

	app := NewDefaultApp(versionInfo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		sig := <-c
		_, _ = fmt.Fprintf(app.Stderr, "\nReceived signal %v, stopping %s...\n", sig, constants.AppName)

		cancel()

		// A blocking acquire does not observe the context. If we are still
		// running after the grace period, clean up and exit from here.
		time.Sleep(shutdownGrace)
		app.CleanupOnSignal()
		app.exit(exitInterrupted)
	}()

	err := app.Execute(ctx, os.Args[1:])
	if closeErr := app.Close(); closeErr != nil {
		_, _ = fmt.Fprintf(app.Stderr, "❌ Error during cleanup: %v\n", closeErr)
	}
	if err != nil {
		app.ReportError(err)
		app.exit(app.ExitCode(err))
	}
}
