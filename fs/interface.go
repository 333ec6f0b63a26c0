package fs

import (
	"io"
	"time"
)

/*
	Interface for all primitive functions we expect to be able to perform
	on a filesystem.

	All paths accepted are RelPath types; the FS instance is constructed
	with a base path, and all further operations are joined with it.
	Symlinks with absolute targets are interpreted relative to the base,
	so an FS rooted at "/" sees the host exactly as the host sees itself.

	Operations do not traverse a symlink in the final path segment unless
	they say so ('Stat', 'ReadDirNames', 'OpenFile').
	Symlinks in parent segments are traversed; '..' segments and link targets
	that climb above the base stop at the base.  Paths that begin with '..'
	are rejected outright with ErrBreakout.
*/
type FS interface {
	// The path this filesystem is rooted at.  Informational; may be "/" for non-host filesystems too.
	BasePath() AbsolutePath

	OpenFile(path RelPath, flag int, perms Perms) (File, error)
	Mkdir(path RelPath, perms Perms) error
	Mklink(path RelPath, target string) error
	Mkfifo(path RelPath, perms Perms) error
	Chmod(path RelPath, perms Perms) error
	SetTimesNano(path RelPath, mtime time.Time, atime time.Time) error
	SetTimesLNano(path RelPath, mtime time.Time, atime time.Time) error

	Stat(path RelPath) (*Metadata, error)
	LStat(path RelPath) (*Metadata, error)
	ReadDirNames(path RelPath) ([]string, error)

	// Returns the raw target string of a symlink; isLink is false (with nil error) if the path is some other type.
	Readlink(path RelPath) (target string, isLink bool, err error)

	// Resolves every symlink in the parent segments of path, leaving the final segment untouched.
	// Nothing need exist: past a missing parent, the rest of the path is kept as written (less any '..').
	ResolveParents(path RelPath) (RelPath, error)
}

type File interface {
	io.Reader
	io.Writer
	io.Closer
}

// A stand-in for atimes we don't care about.
var DefaultAtime = time.Unix(0, 0).UTC()
