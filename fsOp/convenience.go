package fsOp

import (
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/flattar/fs"
)

/*
	Makes dirs recursively so the requested path exists.

	Existing dirs are not mutated.

	Symlinks in the path are traversed without comment;
	use PlaceFile where that's not acceptable.
*/
func MkdirAll(afs fs.FS, path fs.RelPath, perms fs.Perms) error {
	stat, err := afs.Stat(path)
	switch Category(err) {
	case nil:
		if stat.Type == fs.Type_Dir {
			return nil
		}
		return Errorf(fs.ErrNotDir, "%s already exists and is a %s not %s", afs.BasePath().Join(path), stat.Type, fs.Type_Dir)
	case fs.ErrNotExists:
		if path == (fs.RelPath{}) {
			return Errorf(fs.ErrNotExists, "base path %s does not exist", afs.BasePath())
		}
		if err := MkdirAll(afs, path.Dir(), perms); err != nil {
			return err
		}
		if err := afs.Mkdir(path, perms); err != nil {
			switch Category(err) {
			case fs.ErrAlreadyExists:
				// Stat said it didn't exist, so this is a dangling symlink.
				return Errorf(fs.ErrNotDir, "%s already exists and is a %s not %s", afs.BasePath().Join(path), fs.Type_Symlink, fs.Type_Dir)
			default:
				return err
			}
		}
		return nil
	case fs.ErrNotDir:
		return Errorf(fs.ErrNotDir, "%s has parents which are not a directory", afs.BasePath().Join(path))
	default:
		return err
	}
}

/*
	Records the mtime currently set on a path and returns a function which
	will force it back to that value.

	The typical use is `defer RepairMtime(afs, somedir)()` right before
	placing files into that dir.
	If the path can't be stat'd now, the returned func does nothing.
*/
func RepairMtime(afs fs.FS, path fs.RelPath) func() error {
	fmeta, err := afs.LStat(path)
	if err != nil {
		return func() error { return nil }
	}
	return func() error {
		return afs.SetTimesLNano(path, fmeta.Mtime, fs.DefaultAtime)
	}
}
