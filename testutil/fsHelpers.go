package testutil

import (
	"os"
	"path/filepath"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/flattar/fs"
)

/*
	Creates a new tempdir, invokes the given function with it, and removes
	the tempdir after.  The path is symlink-free (macs like to put tmp behind a link),
	so it's safe to compare against resolved paths.
*/
func WithTmpdir(fn func(tmpDir fs.AbsolutePath)) {
	tmpBase, err := os.MkdirTemp("", "flattar-test-")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpBase)
	tmpBase, err = filepath.EvalSymlinks(tmpBase)
	if err != nil {
		panic(err)
	}
	fn(fs.MustAbsolutePath(tmpBase))
}

func ShouldStat(afs fs.FS, path fs.RelPath) fs.Metadata {
	stat, err := afs.LStat(path)
	convey.So(err, convey.ShouldBeNil)
	stat.Mtime = stat.Mtime.UTC()
	return *stat
}

type fixtureOp func(afs fs.FS)

/*
	Applies a series of fixture-building ops, asserting each succeeds.

	Ops run in order, so parents must come before children.
*/
func Fixture(afs fs.FS, ops ...fixtureOp) {
	for _, op := range ops {
		op(afs)
	}
}

func Dir(path string) fixtureOp {
	return func(afs fs.FS) {
		convey.So(afs.Mkdir(fs.MustRelPath(path), 0755), convey.ShouldBeNil)
	}
}

func File(path string, body string) fixtureOp {
	return func(afs fs.FS) {
		f, err := afs.OpenFile(fs.MustRelPath(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		convey.So(err, convey.ShouldBeNil)
		_, err = f.Write([]byte(body))
		convey.So(err, convey.ShouldBeNil)
		convey.So(f.Close(), convey.ShouldBeNil)
	}
}

func Link(path string, target string) fixtureOp {
	return func(afs fs.FS) {
		convey.So(afs.Mklink(fs.MustRelPath(path), target), convey.ShouldBeNil)
	}
}

// Sets the mtime of a path (following links), to a whole number of seconds since the epoch.
func Mtime(path string, unix int64) fixtureOp {
	return func(afs fs.FS) {
		convey.So(afs.SetTimesNano(fs.MustRelPath(path), time.Unix(unix, 0), fs.DefaultAtime), convey.ShouldBeNil)
	}
}

// Sets the mtime of a symlink itself.
func LMtime(path string, unix int64) fixtureOp {
	return func(afs fs.FS) {
		convey.So(afs.SetTimesLNano(fs.MustRelPath(path), time.Unix(unix, 0), fs.DefaultAtime), convey.ShouldBeNil)
	}
}

func Chmod(path string, perms fs.Perms) fixtureOp {
	return func(afs fs.FS) {
		convey.So(afs.Chmod(fs.MustRelPath(path), perms), convey.ShouldBeNil)
	}
}
