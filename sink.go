package flattar

import (
	"io"

	"github.com/polydawn/flattar/fs"
)

/*
	Sink is the archive format writer the Archiver emits entries into.

	The Archiver only ever emits directories and regular files; other
	fs.Type values never reach a Sink.  Entry metadata arrives already
	flattened: Name is the archive path, Mtime is truncated to the second,
	and Uid and Gid are zero.

	Implementations live in the sink/ packages (tar, zip, and a digesting tee).
*/
type Sink interface {
	WriteDirectory(meta fs.Metadata) error

	// Streams exactly meta.Size bytes from body.
	WriteFile(meta fs.Metadata, body io.Reader) error

	// Finalizes the archive and flushes any buffered output.
	Close() error
}
