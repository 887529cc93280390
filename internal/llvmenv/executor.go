package llvmenv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// Executor provides a consistent interface for executing external commands.
// Every invocation blocks until the child terminates, and the terminal status
// is always classified into a *CommandError before any caller proceeds.
type Executor struct {
	Context context.Context // the context to use for cancellation
	Quiet   bool            // discard child stdout/stderr unless already wired
}

func NewExecutor(ctx context.Context) *Executor {
	return &Executor{Context: ctx}
}

// Command builds an exec.Cmd bound to the executor's context.
func (e *Executor) Command(name string, arg ...string) *exec.Cmd {
	return exec.CommandContext(e.Context, name, arg...)
}

// Run executes cmd and classifies its termination.
//
// - missing executable        -> CommandError{NotFound}
// - nonzero exit code         -> CommandError{Code}
// - killed by a signal        -> CommandError{Signaled}
//
// stdio left unset by the caller is wired to the process (or discarded in
// quiet mode) so interactive tools like svn can still prompt.
func (e *Executor) Run(cmd *exec.Cmd) error {
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		if e.Quiet {
			cmd.Stdout = io.Discard
		} else {
			cmd.Stdout = os.Stdout
		}
	}
	if cmd.Stderr == nil {
		if e.Quiet {
			cmd.Stderr = io.Discard
		} else {
			cmd.Stderr = os.Stderr
		}
	}

	name := strings.Join(cmd.Args, " ")
	debugf("exec: %s\n", name)

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return &CommandError{Cmd: name, NotFound: true, Err: err}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return &CommandError{Cmd: name, Signaled: true, Err: err}
		}
		return &CommandError{Cmd: name, Code: exitErr.ExitCode(), Err: err}
	}
	// Anything else is a start-up failure (permissions, bad dir, ...).
	return fmt.Errorf("failed to run %s: %w", name, err)
}
