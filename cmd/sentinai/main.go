package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/xkilldash9x/sentinai-cli/cmd"
	"github.com/xkilldash9x/sentinai-cli/internal/observability"
)

const crashLogFile = "sentinai-crash.log"

const banner = `
   ____             _   _             _
  / ___|  ___ _ __ | |_(_)_ __   __ _(_)
  \___ \ / _ \ '_ \| __| | '_ \ / _' | |
   ___) |  __/ | | | |_| | | | | (_| | |
  |____/ \___|_| |_|\__|_|_| |_|\__,_|_|

  Type a command (e.g. "dashboard --local"), or "exit".

`

// Seams for tests.
var (
	osWriteFile           = os.WriteFile
	osExit                = os.Exit
	stdin       io.Reader = os.Stdin
	stdout      io.Writer = os.Stdout
	stderr      io.Writer = os.Stderr
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		osExit(exitCode(cmd.Execute(ctx)))
		return
	}

	if err := runInteractive(ctx, stdin); err != nil {
		fmt.Fprintln(stderr, "Error reading from stdin:", err)
		osExit(1)
	}
}

// exitCode maps a command error to the process status. Interrupts are clean exits.
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	default:
		return 1
	}
}

// runInteractive reads one command per line until EOF, "exit" or "quit".
func runInteractive(ctx context.Context, in io.Reader) error {
	fmt.Fprint(stdout, banner)
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(stdout, "sentinai > ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		executeInteractiveCommand(ctx, line)
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Goodbye.")
	return nil
}

// executeInteractiveCommand runs one line on a fresh command tree so flags do
// not leak between commands. Errors and panics are reported without ending
// the session.
func executeInteractiveCommand(ctx context.Context, line string) {
	rootCmd := cmd.NewRootCommand()
	rootCmd.SetArgs(strings.Fields(line))
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(stderr, "Error: command panicked: %v\n", r)
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(stderr, "Error:", err)
	}
}

// handlePanic writes the panic and stack to crashLogFile and exits non-zero.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	report := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(crashLogFile, []byte(report), 0o600); err != nil {
		fmt.Fprintf(stderr, "CRITICAL: failed to write crash log: %v\n", err)
		fmt.Fprintf(stderr, "Panic details:\n%s\n", report)
		osExit(2)
		return
	}

	fmt.Fprintf(stderr, "\nsentinai crashed unexpectedly. Details were written to %s.\n", crashLogFile)
	fmt.Fprintln(stderr, "Please include that file when reporting the problem.")
	osExit(2)
}
