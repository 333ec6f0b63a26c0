/*
	Adapts a go-billy filesystem to an fs.FS.

	This lets the archiver read from in-memory trees (billy's memfs)
	or any other billy implementation, with the same symlink semantics
	as the host: every path is resolved here, segment by segment, using only
	the billy Lstat and Readlink primitives.  That means implementations which
	don't themselves traverse symlinks in parent segments (memfs doesn't)
	still behave like a real filesystem.

	Only permission bits and mtimes that the billy implementation reports
	are carried.  Mkfifo is unsupported.
*/
package billyfs

import (
	"os"
	"time"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-billy.v4"

	"github.com/polydawn/flattar/fs"
)

const maxLinkHops = 40

func New(bfs billy.Filesystem) fs.FS {
	return &billyFS{bfs}
}

type billyFS struct {
	bfs billy.Filesystem
}

// Billy filesystems are self-rooted; we always report "/" as the base.
func (afs *billyFS) BasePath() fs.AbsolutePath {
	return fs.AbsolutePath{}
}

// billy paths are always given in rooted form, which memfs needs to find its root's children.
func bpath(path fs.RelPath) string {
	return "/" + path.Bare()
}

func (afs *billyFS) OpenFile(path fs.RelPath, flag int, perms fs.Perms) (fs.File, error) {
	rpath, err := afs.realpath(path, true)
	if err != nil {
		return nil, err
	}
	if flag&os.O_CREATE != 0 {
		if err := afs.requireParentDir(rpath); err != nil {
			return nil, err
		}
	}
	f, err := afs.bfs.OpenFile(bpath(rpath), flag, os.FileMode(perms&0777))
	if err != nil {
		return nil, fs.NormalizeIOError(err)
	}
	return f, nil
}

func (afs *billyFS) Mkdir(path fs.RelPath, perms fs.Perms) error {
	rpath, err := afs.realpath(path, false)
	if err != nil {
		return err
	}
	// billy only offers MkdirAll; check the preconditions a plain mkdir has.
	if err := afs.requireParentDir(rpath); err != nil {
		return err
	}
	if _, err := afs.bfs.Lstat(bpath(rpath)); err == nil {
		return Errorf(fs.ErrAlreadyExists, "mkdir %s: already exists", path)
	}
	return fs.NormalizeIOError(afs.bfs.MkdirAll(bpath(rpath), os.FileMode(perms&0777)))
}

func (afs *billyFS) Mklink(path fs.RelPath, target string) error {
	rpath, err := afs.realpath(path, false)
	if err != nil {
		return err
	}
	if err := afs.requireParentDir(rpath); err != nil {
		return err
	}
	return fs.NormalizeIOError(afs.bfs.Symlink(target, bpath(rpath)))
}

func (afs *billyFS) Mkfifo(path fs.RelPath, perms fs.Perms) error {
	return Errorf(fs.ErrIOUnknown, "mkfifo %s: not supported by billy filesystems", path)
}

func (afs *billyFS) Chmod(path fs.RelPath, perms fs.Perms) error {
	change, ok := afs.bfs.(billy.Change)
	if !ok {
		return Errorf(fs.ErrIOUnknown, "chmod %s: not supported by this billy filesystem", path)
	}
	rpath, err := afs.realpath(path, true)
	if err != nil {
		return err
	}
	return fs.NormalizeIOError(change.Chmod(bpath(rpath), os.FileMode(perms&0777)))
}

func (afs *billyFS) SetTimesNano(path fs.RelPath, mtime time.Time, atime time.Time) error {
	change, ok := afs.bfs.(billy.Change)
	if !ok {
		return Errorf(fs.ErrIOUnknown, "chtimes %s: not supported by this billy filesystem", path)
	}
	rpath, err := afs.realpath(path, true)
	if err != nil {
		return err
	}
	return fs.NormalizeIOError(change.Chtimes(bpath(rpath), atime, mtime))
}

func (afs *billyFS) SetTimesLNano(path fs.RelPath, mtime time.Time, atime time.Time) error {
	return Errorf(fs.ErrIOUnknown, "lchtimes %s: not supported by billy filesystems", path)
}

func (afs *billyFS) Stat(path fs.RelPath) (*fs.Metadata, error) {
	rpath, err := afs.realpath(path, true)
	if err != nil {
		return nil, err
	}
	return afs.lstat(path, rpath)
}

func (afs *billyFS) LStat(path fs.RelPath) (*fs.Metadata, error) {
	rpath, err := afs.realpath(path, false)
	if err != nil {
		return nil, err
	}
	return afs.lstat(path, rpath)
}

func (afs *billyFS) lstat(name fs.RelPath, rpath fs.RelPath) (*fs.Metadata, error) {
	if rpath == (fs.RelPath{}) {
		// Not every billy implementation can stat its own root; but it always exists.
		return &fs.Metadata{Name: name, Type: fs.Type_Dir, Perms: 0755}, nil
	}
	fi, err := afs.bfs.Lstat(bpath(rpath))
	if err != nil {
		return nil, fs.NormalizeIOError(err)
	}
	fmeta := &fs.Metadata{
		Name:  name,
		Mtime: fi.ModTime(),
		Perms: fs.Perms(fi.Mode().Perm()),
	}
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		fmeta.Type = fs.Type_Symlink
		target, err := afs.bfs.Readlink(bpath(rpath))
		if err != nil {
			return nil, fs.NormalizeIOError(err)
		}
		fmeta.Linkname = target
	case fi.IsDir():
		fmeta.Type = fs.Type_Dir
	case fi.Mode().IsRegular():
		fmeta.Type = fs.Type_File
		fmeta.Size = fi.Size()
	case fi.Mode()&os.ModeNamedPipe != 0:
		fmeta.Type = fs.Type_NamedPipe
	case fi.Mode()&os.ModeSocket != 0:
		fmeta.Type = fs.Type_Socket
	case fi.Mode()&os.ModeCharDevice != 0:
		fmeta.Type = fs.Type_CharDevice
	case fi.Mode()&os.ModeDevice != 0:
		fmeta.Type = fs.Type_Device
	default:
		fmeta.Type = fs.Type_Invalid
	}
	return fmeta, nil
}

func (afs *billyFS) ReadDirNames(path fs.RelPath) ([]string, error) {
	rpath, err := afs.realpath(path, true)
	if err != nil {
		return nil, err
	}
	fmeta, err := afs.lstat(path, rpath)
	if err != nil {
		return nil, err
	}
	if fmeta.Type != fs.Type_Dir {
		return nil, Errorf(fs.ErrNotDir, "readdir %s: not a dir", path)
	}
	fis, err := afs.bfs.ReadDir(bpath(rpath))
	if err != nil {
		return nil, fs.NormalizeIOError(err)
	}
	names := make([]string, len(fis))
	for i, fi := range fis {
		names[i] = fi.Name()
	}
	return names, nil
}

func (afs *billyFS) Readlink(path fs.RelPath) (string, bool, error) {
	rpath, err := afs.realpath(path, false)
	if err != nil {
		return "", false, err
	}
	return afs.rawReadlink(rpath)
}

func (afs *billyFS) ResolveParents(path fs.RelPath) (fs.RelPath, error) {
	return fs.ResolveParentSegments(afs.rawReadlink, path)
}

func (afs *billyFS) rawReadlink(path fs.RelPath) (string, bool, error) {
	if path == (fs.RelPath{}) {
		return "", false, nil
	}
	fi, err := afs.bfs.Lstat(bpath(path))
	if err != nil {
		return "", false, fs.NormalizeIOError(err)
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		return "", false, nil
	}
	target, err := afs.bfs.Readlink(bpath(path))
	if err != nil {
		return "", false, fs.NormalizeIOError(err)
	}
	return target, true, nil
}

func (afs *billyFS) requireParentDir(path fs.RelPath) error {
	parent := path.Dir()
	if parent == (fs.RelPath{}) {
		return nil
	}
	fi, err := afs.bfs.Lstat(bpath(parent))
	if err != nil {
		return fs.NormalizeIOError(err)
	}
	if !fi.IsDir() {
		return Errorf(fs.ErrNotDir, "%s is not a dir", parent)
	}
	return nil
}

func (afs *billyFS) realpath(path fs.RelPath, resolveLast bool) (fs.RelPath, error) {
	resolved, err := fs.ResolveParentSegments(afs.rawReadlink, path)
	if err != nil {
		return resolved, err
	}
	if !resolveLast {
		return resolved, nil
	}
	for hops := 0; ; hops++ {
		target, isLink, err := afs.rawReadlink(resolved)
		if err != nil || !isLink {
			return resolved, nil // if it doesn't exist, that's for the real operation to report.
		}
		if hops >= maxLinkHops {
			return resolved, Errorf(fs.ErrRecursion, "too many levels of symlinks at %q", path)
		}
		resolved, err = fs.ResolveLinkTarget(afs.rawReadlink, resolved, target)
		if err != nil {
			return resolved, err
		}
	}
}
