// File: cmd/sirius/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/lyubovchubarova/SiriusAgentBrowser/cmd"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/observability"
)

const panicLogFile = "panic.log"

// Function variables allow mocking in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
	execute     = cmd.Execute
)

func main() {
	defer handlePanic()

	// Listen for interrupt signals (SIGINT, SIGTERM) for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run(ctx)
}

func run(ctx context.Context) {
	if err := execute(ctx); err != nil {
		defer observability.Sync()
		// A run aborted by Ctrl+C is a graceful shutdown, not a failure.
		if errors.Is(err, context.Canceled) {
			osExit(0)
			return
		}
		osExit(1)
		return
	}
	observability.Sync()
}

// handlePanic flushes logs and preserves the stack trace in a dedicated
// file before the process dies.
func handlePanic() {
	if r := recover(); r != nil {
		observability.Sync()

		stackTrace := debug.Stack()
		panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, stackTrace)

		if err := osWriteFile(panicLogFile, []byte(panicMessage), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
			fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
			osExit(1)
			return
		}

		fmt.Fprintf(os.Stderr, "CRASH DETECTED. Details logged to %s\n", panicLogFile)
		osExit(1)
	}
}
