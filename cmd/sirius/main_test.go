// File: cmd/sirius/main_test.go
package main

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyubovchubarova/SiriusAgentBrowser/cmd"
)

// resetMocks restores the original function implementations.
func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
	execute = cmd.Execute
}

func TestHandlePanic_WritesPanicLog(t *testing.T) {
	defer resetMocks()

	var written []byte
	var exitCode = -1
	osWriteFile = func(name string, data []byte, perm os.FileMode) error {
		assert.Equal(t, panicLogFile, name)
		written = data
		return nil
	}
	osExit = func(code int) { exitCode = code }

	func() {
		defer handlePanic()
		panic("boom")
	}()

	require.NotEmpty(t, written)
	assert.Contains(t, string(written), "panic: boom")
	// A stack trace follows the message.
	assert.Contains(t, string(written), "goroutine")
	assert.Equal(t, 1, exitCode)
}

func TestHandlePanic_LogWriteFailureStillExits(t *testing.T) {
	defer resetMocks()

	var exitCode = -1
	osWriteFile = func(string, []byte, os.FileMode) error {
		return errors.New("disk full")
	}
	osExit = func(code int) { exitCode = code }

	func() {
		defer handlePanic()
		panic("boom")
	}()

	assert.Equal(t, 1, exitCode)
}

func TestHandlePanic_NoPanicNoExit(t *testing.T) {
	defer resetMocks()

	called := false
	osExit = func(int) { called = true }

	func() {
		defer handlePanic()
	}()

	assert.False(t, called)
}

func TestRun_ExitCodes(t *testing.T) {
	defer resetMocks()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"canceled run exits cleanly", context.Canceled, 0},
		{"failed run exits nonzero", errors.New("no such task"), 1},
		{"success does not exit", nil, -1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exitCode := -1
			osExit = func(code int) { exitCode = code }
			execute = func(context.Context) error { return tc.err }

			run(context.Background())

			assert.Equal(t, tc.want, exitCode)
		})
	}
}
