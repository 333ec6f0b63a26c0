package flattar

import (
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/flattar/fs"
)

/*
	EntryKind is how the Archiver sees a local path.

	Anything that exists and is neither a directory nor a symlink -- fifos,
	sockets, devices -- is a File: its bytes are read and copied verbatim.
*/
type EntryKind uint8

const (
	Kind_Invalid EntryKind = iota
	Kind_File
	Kind_Directory
	Kind_Symlink
	Kind_Nonexistent
)

func (k EntryKind) String() string {
	switch k {
	case Kind_File:
		return "file"
	case Kind_Directory:
		return "directory"
	case Kind_Symlink:
		return "symlink"
	case Kind_Nonexistent:
		return "nonexistent"
	default:
		return "invalid"
	}
}

/*
	Classify a path without following it.

	The metadata returned is from the same lstat, and is nil for Kind_Nonexistent.
	A path whose parent is a regular file is Kind_Nonexistent, not an error.
*/
func Classify(afs fs.FS, path fs.RelPath) (_ EntryKind, _ *fs.Metadata, err error) {
	defer RequireErrorHasCategory(&err, ErrorCategory(""))
	fmeta, err := afs.LStat(path)
	return classifyStat(path, fmeta, err)
}

func classifyStat(path fs.RelPath, fmeta *fs.Metadata, err error) (EntryKind, *fs.Metadata, error) {
	switch Category(err) {
	case nil:
		// pass
	case fs.ErrNotExists, fs.ErrNotDir:
		return Kind_Nonexistent, nil, nil
	default:
		return Kind_Invalid, nil, fsError(err, "cannot stat %s", path)
	}
	switch fmeta.Type {
	case fs.Type_Symlink:
		return Kind_Symlink, fmeta, nil
	case fs.Type_Dir:
		return Kind_Directory, fmeta, nil
	default:
		return Kind_File, fmeta, nil
	}
}

/*
	Resolve the symlink at 'link' to the path it points to, by reading it once.

	Relative targets are taken from the directory containing the link;
	absolute targets from the root of the filesystem.
	Symlinks in intermediate segments of the target are expanded before
	any '..' following them applies, as the kernel would.
	The last segment is left as-is: it may be another symlink, or nothing at all.
*/
func Resolve(afs fs.FS, link fs.RelPath) (_ fs.RelPath, err error) {
	defer RequireErrorHasCategory(&err, ErrorCategory(""))
	target, isLink, err := afs.Readlink(link)
	if err != nil {
		return fs.RelPath{}, fsError(err, "cannot read symlink %s", link)
	}
	if !isLink {
		return fs.RelPath{}, Errorf(ErrUsage, "cannot resolve %s: not a symlink", link)
	}
	resolved, err := fs.ResolveLinkTarget(afs.Readlink, link, target)
	if err != nil {
		return fs.RelPath{}, fsError(err, "cannot resolve symlink %s -> %q", link, target)
	}
	return resolved, nil
}
