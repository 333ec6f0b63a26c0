package fsOp

import (
	"io"
	"os"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/flattar/fs"
)

/*
	Places a file or directory on the filesystem, and applies its
	perms and mtime.

	No part of `fmeta.Name` may be a symlink; that's malformed input for
	an extraction, and yields ErrBreakout.
	The parent must already exist (see MkdirAll).

	Only the base dir may already exist; it just gets chmod+chtime'd.
	Anything other than a file or a dir is rejected with ErrInvalidPath:
	the archives we produce never contain them.
*/
func PlaceFile(afs fs.FS, fmeta fs.Metadata, body io.Reader) error {
	for path := fmeta.Name; ; path = path.Dir() {
		target, isLink, err := afs.Readlink(path)
		switch {
		case isLink:
			return Errorf(fs.ErrBreakout, "refusing to place %s: %s is a symlink to %q", fmeta.Name, path, target)
		case err == nil, Category(err) == fs.ErrNotExists:
			// fine.
		default:
			return err
		}
		if path == (fs.RelPath{}) {
			break
		}
	}

	switch fmeta.Type {
	case fs.Type_File:
		f, err := afs.OpenFile(fmeta.Name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, fmeta.Perms)
		if err != nil {
			return err
		}
		_, err = io.CopyN(f, body, fmeta.Size)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return Errorf(fs.ErrIOUnknown, "placing %s: %s", fmeta.Name, err)
		}
	case fs.Type_Dir:
		if fmeta.Name == (fs.RelPath{}) {
			if existing, err := afs.LStat(fmeta.Name); err == nil && existing.Type == fs.Type_Dir {
				break
			}
		}
		if err := afs.Mkdir(fmeta.Name, fmeta.Perms); err != nil {
			return err
		}
	default:
		return Errorf(fs.ErrInvalidPath, "refusing to place %s: type %s is not supported", fmeta.Name, fmeta.Type)
	}

	if err := afs.Chmod(fmeta.Name, fmeta.Perms); err != nil {
		return err
	}
	return afs.SetTimesNano(fmeta.Name, fmeta.Mtime, fs.DefaultAtime)
}
