package flattar

import (
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/flattar/fs"
)

/*
	Error categories for everything raised out of the Archiver.

	Every error returned from `Add`, `AddContext`, and `Create` carries
	one of these as its errcat category; switch on `errcat.Category(err)`.
	Categories from the fs package never escape directly: they're folded
	into these at the boundary.
*/
type ErrorCategory string

type ExitCode int

const (
	ExitSuccess = ExitCode(0)

	ExitUsage, ErrUsage = ExitCode(1), ErrorCategory("flattar-usage-error") // Bad arguments: archive paths escaping the root, duplicate or misordered entries, etc.
	ExitPanic           = ExitCode(2)                                        // Placeholder.  We use this code for uncaught panics.

	ExitNotFound, ErrNotFound             = ExitCode(3), ErrorCategory("flattar-not-found")       // A path given to Add, or the target of a symlink, doesn't exist.
	ExitIO, ErrIO                         = ExitCode(4), ErrorCategory("flattar-io-error")        // Stat, readlink, listing, or reading failed.
	ExitSink, ErrSink                     = ExitCode(5), ErrorCategory("flattar-sink-error")      // The archive sink refused a write (or failed to close).
	ExitCycleDetected, ErrCycleDetected   = ExitCode(6), ErrorCategory("flattar-cycle-detected")  // Symlinks lead a directory back into itself.
	ExitCancelled, ErrCancelled           = ExitCode(7), ErrorCategory("flattar-cancelled")       // The context was cancelled part-way through.
	ExitTerminalOutput, ErrTerminalOutput = ExitCode(8), ErrorCategory("flattar-terminal-output") // The CLI was asked to write binary archive data to a tty.
)

func ExitCodeForError(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	return ExitCodeForCategory(Category(err))
}

func ExitCodeForCategory(category interface{}) ExitCode {
	switch category {
	case nil:
		return ExitSuccess
	case ErrUsage:
		return ExitUsage
	case ErrNotFound:
		return ExitNotFound
	case ErrIO:
		return ExitIO
	case ErrSink:
		return ExitSink
	case ErrCycleDetected:
		return ExitCycleDetected
	case ErrCancelled:
		return ExitCancelled
	case ErrTerminalOutput:
		return ExitTerminalOutput
	default:
		return ExitPanic
	}
}

// Folds an error from the fs layer into one of our categories.
// Errors that already carry one of ours pass through.
func fsError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if _, ok := Category(err).(ErrorCategory); ok {
		return err
	}
	args = append(args, err)
	switch Category(err) {
	case fs.ErrNotExists, fs.ErrNotDir:
		return Errorf(ErrNotFound, format+": %s", args...)
	case fs.ErrRecursion:
		return Errorf(ErrCycleDetected, format+": %s", args...)
	case fs.ErrBreakout, fs.ErrInvalidPath:
		return Errorf(ErrUsage, format+": %s", args...)
	default:
		return Errorf(ErrIO, format+": %s", args...)
	}
}
