package llvmenv

import (
	"errors"
	"fmt"
)

// Error kinds. Callers discriminate with errors.Is; everything else in the
// package wraps one of these (or a *CommandError) with context.
var (
	ErrUnresolvableURL    = errors.New("cannot resolve URL to svn/git/tar")
	ErrUnsupportedArchive = errors.New("unsupported archive format")
	ErrMarkerUnreadable   = errors.New("marker file is unreadable")
	ErrBuildNotFound      = errors.New("build does not exist")
	ErrEntryNotFound      = errors.New("no such entry")
	ErrVersionNotFound    = errors.New("no version string in tool output")
)

// CommandError reports how an external tool invocation terminated.
// Exactly one of NotFound, Signaled, or a nonzero Code applies.
type CommandError struct {
	Cmd      string // the command line, for the user
	Code     int    // exit code, when the process exited on its own
	Signaled bool   // terminated by a signal
	NotFound bool   // executable missing or not runnable
	Err      error  // underlying error, if any
}

func (e *CommandError) Error() string {
	switch {
	case e.NotFound:
		return fmt.Sprintf("external command not found: %s", e.Cmd)
	case e.Signaled:
		return fmt.Sprintf("terminated by signal: %s", e.Cmd)
	default:
		return fmt.Sprintf("exit with error-code(%d): %s", e.Code, e.Cmd)
	}
}

func (e *CommandError) Unwrap() error { return e.Err }
