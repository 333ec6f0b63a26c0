package osfs

import (
	"errors"
	"os"
	"syscall"
	"time"

	. "github.com/warpfork/go-errcat"
	"golang.org/x/sys/unix"

	"github.com/polydawn/flattar/fs"
)

// How many symlinks in a row we'll follow before calling it a loop.
// Same number linux uses.
const maxLinkHops = 40

func New(basePath fs.AbsolutePath) fs.FS {
	return &osFS{basePath}
}

type osFS struct {
	basePath fs.AbsolutePath
}

func (afs *osFS) BasePath() fs.AbsolutePath {
	return afs.basePath
}

func (afs *osFS) OpenFile(path fs.RelPath, flag int, perms fs.Perms) (fs.File, error) {
	rpath, err := afs.realpath(path, true)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(rpath, flag, permsToOs(perms))
	if err != nil {
		return nil, fs.NormalizeIOError(err)
	}
	return f, nil
}

func (afs *osFS) Mkdir(path fs.RelPath, perms fs.Perms) error {
	rpath, err := afs.realpath(path, false)
	if err != nil {
		return err
	}
	err = os.Mkdir(rpath, permsToOs(perms))
	return fs.NormalizeIOError(err)
}

func (afs *osFS) Mklink(path fs.RelPath, target string) error {
	rpath, err := afs.realpath(path, false)
	if err != nil {
		return err
	}
	err = os.Symlink(target, rpath)
	return fs.NormalizeIOError(err)
}

func (afs *osFS) Mkfifo(path fs.RelPath, perms fs.Perms) error {
	rpath, err := afs.realpath(path, false)
	if err != nil {
		return err
	}
	err = unix.Mkfifo(rpath, uint32(perms&07777))
	return fs.NormalizeIOError(err)
}

func (afs *osFS) Chmod(path fs.RelPath, perms fs.Perms) error {
	rpath, err := afs.realpath(path, true)
	if err != nil {
		return err
	}
	err = os.Chmod(rpath, permsToOs(perms))
	return fs.NormalizeIOError(err)
}

func (afs *osFS) SetTimesNano(path fs.RelPath, mtime time.Time, atime time.Time) error {
	rpath, err := afs.realpath(path, true)
	if err != nil {
		return err
	}
	utimes := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	return fs.NormalizeIOError(unix.UtimesNano(rpath, utimes))
}

// Like SetTimesNano, but sets the times on a symlink itself rather than its target.
func (afs *osFS) SetTimesLNano(path fs.RelPath, mtime time.Time, atime time.Time) error {
	rpath, err := afs.realpath(path, false)
	if err != nil {
		return err
	}
	utimes := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	return fs.NormalizeIOError(unix.UtimesNanoAt(unix.AT_FDCWD, rpath, utimes, unix.AT_SYMLINK_NOFOLLOW))
}

func (afs *osFS) Stat(path fs.RelPath) (*fs.Metadata, error) {
	rpath, err := afs.realpath(path, true)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(rpath)
	if err != nil {
		return nil, fs.NormalizeIOError(err)
	}
	return afs.convertFileinfo(path, rpath, fi)
}

func (afs *osFS) LStat(path fs.RelPath) (*fs.Metadata, error) {
	rpath, err := afs.realpath(path, false)
	if err != nil {
		return nil, err
	}
	fi, err := os.Lstat(rpath)
	if err != nil {
		return nil, fs.NormalizeIOError(err)
	}
	return afs.convertFileinfo(path, rpath, fi)
}

func (afs *osFS) convertFileinfo(path fs.RelPath, rpath string, fi os.FileInfo) (*fs.Metadata, error) {
	// Copy over the easy 1-to-1 parts.
	fmeta := &fs.Metadata{
		Name:  path,
		Mtime: fi.ModTime(),
	}

	// Munge perms and mode to our types.
	fm := fi.Mode()
	switch fm & (os.ModeType | os.ModeCharDevice) {
	case 0:
		fmeta.Type = fs.Type_File
	case os.ModeDir:
		fmeta.Type = fs.Type_Dir
	case os.ModeSymlink:
		fmeta.Type = fs.Type_Symlink
		// If it's a symlink, get that info.
		//  It's an extra syscall, but we almost always want it.
		target, _, err := readlink(rpath)
		if err != nil {
			return nil, fs.NormalizeIOError(err)
		}
		fmeta.Linkname = target
	case os.ModeNamedPipe:
		fmeta.Type = fs.Type_NamedPipe
	case os.ModeSocket:
		fmeta.Type = fs.Type_Socket
	case os.ModeDevice:
		fmeta.Type = fs.Type_Device
	case os.ModeDevice | os.ModeCharDevice:
		fmeta.Type = fs.Type_CharDevice
	default:
		fmeta.Type = fs.Type_Invalid
	}
	fmeta.Perms = fs.Perms(fm.Perm())
	if fm&os.ModeSetuid != 0 {
		fmeta.Perms |= fs.Perms_Setuid
	}
	if fm&os.ModeSetgid != 0 {
		fmeta.Perms |= fs.Perms_Setgid
	}
	if fm&os.ModeSticky != 0 {
		fmeta.Perms |= fs.Perms_Sticky
	}

	// Copy over the size info... but only for file types.
	//  This is "system dependent" for others.  Knowing how many blocks a dir takes
	//  up is very rarely what we want...
	if fmeta.Type == fs.Type_File {
		fmeta.Size = fi.Size()
	}

	// UID and GID bits are platform dependent.
	if sys, ok := fi.Sys().(*syscall.Stat_t); ok {
		fmeta.Uid = sys.Uid
		fmeta.Gid = sys.Gid
	}

	return fmeta, nil
}

func (afs *osFS) ReadDirNames(path fs.RelPath) ([]string, error) {
	rpath, err := afs.realpath(path, true)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(rpath)
	if err != nil {
		return nil, fs.NormalizeIOError(err)
	}
	names, err := f.Readdirnames(-1)
	f.Close()
	if err != nil {
		return names, fs.NormalizeIOError(err)
	}
	return names, nil
}

func (afs *osFS) Readlink(path fs.RelPath) (string, bool, error) {
	rpath, err := afs.realpath(path, false)
	if err != nil {
		return "", false, err
	}
	target, isLink, err := readlink(rpath)
	return target, isLink, fs.NormalizeIOError(err)
}

func (afs *osFS) ResolveParents(path fs.RelPath) (fs.RelPath, error) {
	return fs.ResolveParentSegments(afs.rawReadlink, path)
}

func readlink(path string) (string, bool, error) {
	target, err := os.Readlink(path)
	switch {
	case err == nil:
		return target, true, nil
	case errors.Is(err, syscall.EINVAL):
		// EINVAL means "not a symlink".
		// We return this as false and a nil error because it's frequently useful to use
		// the readlink syscall blindly with an lstat first in order to save a syscall.
		return "", false, nil
	default:
		return "", false, err
	}
}

// Readlink without re-resolving parents; used while resolving.
func (afs *osFS) rawReadlink(path fs.RelPath) (string, bool, error) {
	target, isLink, err := readlink(afs.basePath.Join(path).String())
	return target, isLink, fs.NormalizeIOError(err)
}

// Resolves a path to a host path string.
// Symlinks in parent segments are resolved within the base path;
// if resolveLast is set, the final segment is followed too.
func (afs *osFS) realpath(path fs.RelPath, resolveLast bool) (string, error) {
	if path.GoesUp() {
		return "", Errorf(fs.ErrBreakout, "fs: invalid path %q: must not depart basepath", path)
	}
	// Fast path: with a root base, the kernel resolves exactly as we would.
	if afs.basePath == (fs.AbsolutePath{}) {
		return afs.basePath.Join(path).String(), nil
	}
	resolved, err := fs.ResolveParentSegments(afs.rawReadlink, path)
	if err != nil {
		return "", err
	}
	if resolveLast {
		for hops := 0; ; hops++ {
			target, isLink, err := afs.rawReadlink(resolved)
			if err != nil || !isLink {
				break // if it doesn't exist, that's for the real operation to report.
			}
			if hops >= maxLinkHops {
				return "", Errorf(fs.ErrRecursion, "fs: too many levels of symlinks at %q", path)
			}
			resolved, err = fs.ResolveLinkTarget(afs.rawReadlink, resolved, target)
			if err != nil {
				return "", err
			}
		}
	}
	return afs.basePath.Join(resolved).String(), nil
}

func permsToOs(perms fs.Perms) (mode os.FileMode) {
	mode = os.FileMode(perms & 0777)
	if perms&fs.Perms_Setuid != 0 {
		mode |= os.ModeSetuid
	}
	if perms&fs.Perms_Setgid != 0 {
		mode |= os.ModeSetgid
	}
	if perms&fs.Perms_Sticky != 0 {
		mode |= os.ModeSticky
	}
	return mode
}
