package fs

import (
	"errors"
	"os"
	"syscall"

	"github.com/warpfork/go-errcat"
)

type ErrorCategory string

const (
	ErrIOUnknown     ErrorCategory = "fs-unknown-io"     // Catchall.  Some IO error we didn't recognize.
	ErrNotExists     ErrorCategory = "fs-not-exists"     // The path does not exist.
	ErrAlreadyExists ErrorCategory = "fs-already-exists" // The path already exists (and the operation would have created it).
	ErrNotDir        ErrorCategory = "fs-not-dir"        // Some segment of the path isn't a dir.
	ErrPermission    ErrorCategory = "fs-permission"     // The OS refused us.
	ErrRecursion     ErrorCategory = "fs-recursion"      // Symlinks loop back on themselves.
	ErrBreakout      ErrorCategory = "fs-breakout"       // A path or link target departs the filesystem base.
	ErrInvalidPath   ErrorCategory = "fs-invalid-path"   // A path string that can't be parsed for the purpose it was offered for.
)

/*
	Map an error from the os or syscall packages to an errcat error
	with one of the fs categories.

	Errors that already have a category are returned unchanged.
*/
func NormalizeIOError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(errcat.Error); ok {
		return err
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ENOENT:
			return errcat.Errorf(ErrNotExists, "%s", err)
		case syscall.EEXIST:
			return errcat.Errorf(ErrAlreadyExists, "%s", err)
		case syscall.ENOTDIR:
			return errcat.Errorf(ErrNotDir, "%s", err)
		case syscall.EACCES, syscall.EPERM:
			return errcat.Errorf(ErrPermission, "%s", err)
		case syscall.ELOOP:
			return errcat.Errorf(ErrRecursion, "%s", err)
		}
	}
	switch {
	case errors.Is(err, os.ErrNotExist):
		return errcat.Errorf(ErrNotExists, "%s", err)
	case errors.Is(err, os.ErrExist):
		return errcat.Errorf(ErrAlreadyExists, "%s", err)
	case errors.Is(err, os.ErrPermission):
		return errcat.Errorf(ErrPermission, "%s", err)
	}
	return errcat.Errorf(ErrIOUnknown, "%s", err)
}
