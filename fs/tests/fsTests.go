/*
	Compliance checks any fs.FS implementation should pass.

	Each check creates its own fixture paths, so they may be run in sequence
	against one empty filesystem.  Call them from inside a Convey block.
*/
package tests

import (
	"io"
	"os"

	"github.com/warpfork/go-errcat"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/flattar/fs"
)

func CheckBaseLstat(afs fs.FS) {
	Convey("lstat of the base path should be a dir", func() {
		stat, err := afs.LStat(fs.RelPath{})
		So(err, ShouldBeNil)
		So(stat.Type, ShouldEqual, fs.Type_Dir)
	})
}

func CheckMkdirLstatRoundtrip(afs fs.FS) {
	Convey("mkdir and lstat should roundtrip", func() {
		d1 := fs.MustRelPath("d1")
		So(afs.Mkdir(d1, 0755), ShouldBeNil)
		stat, err := afs.LStat(d1)
		So(err, ShouldBeNil)
		So(stat.Type, ShouldEqual, fs.Type_Dir)
		So(stat.Name, ShouldResemble, d1)
	})
}

func CheckDeepMkdirError(afs fs.FS) {
	Convey("deep mkdir should error", func() {
		d1d2 := fs.MustRelPath("nope/d2")
		So(afs.Mkdir(d1d2, 0755), errcat.ErrorShouldHaveCategory, fs.ErrNotExists)
		_, err := afs.LStat(d1d2)
		So(err, errcat.ErrorShouldHaveCategory, fs.ErrNotExists)
	})
}

func CheckFileRoundtrip(afs fs.FS) {
	Convey("files written can be read back, and stat reports their size", func() {
		f1 := fs.MustRelPath("f1")
		So(MakeFile(afs, f1, "body"), ShouldBeNil)
		stat, err := afs.LStat(f1)
		So(err, ShouldBeNil)
		So(stat.Type, ShouldEqual, fs.Type_File)
		So(stat.Size, ShouldEqual, 4)
		So(ReadFile(afs, f1), ShouldEqual, "body")
	})
}

func CheckMklinkLstatRoundtrip(afs fs.FS) {
	Convey("mklink and lstat should roundtrip", func() {
		l1 := fs.MustRelPath("l1")
		So(afs.Mklink(l1, "./target"), ShouldBeNil)
		stat, err := afs.LStat(l1)
		So(err, ShouldBeNil)
		So(stat.Type, ShouldEqual, fs.Type_Symlink)
		So(stat.Linkname, ShouldEqual, "./target")

		Convey("readlink reports the raw target", func() {
			target, isLink, err := afs.Readlink(l1)
			So(err, ShouldBeNil)
			So(isLink, ShouldBeTrue)
			So(target, ShouldEqual, "./target")
		})
		Convey("stat of a dangling link reports not-exists", func() {
			_, err := afs.Stat(l1)
			So(err, errcat.ErrorShouldHaveCategory, fs.ErrNotExists)
		})
	})
	Convey("readlink of a non-link is not an error", func() {
		d1 := fs.MustRelPath("notalink")
		So(afs.Mkdir(d1, 0755), ShouldBeNil)
		_, isLink, err := afs.Readlink(d1)
		So(err, ShouldBeNil)
		So(isLink, ShouldBeFalse)
	})
}

func CheckReadDirNames(afs fs.FS) {
	Convey("readdirnames lists direct children only", func() {
		d := fs.MustRelPath("listing")
		So(afs.Mkdir(d, 0755), ShouldBeNil)
		So(afs.Mkdir(d.Join(fs.MustRelPath("sub")), 0755), ShouldBeNil)
		So(MakeFile(afs, d.Join(fs.MustRelPath("sub/deep")), ""), ShouldBeNil)
		So(MakeFile(afs, d.Join(fs.MustRelPath("b")), ""), ShouldBeNil)
		So(afs.Mklink(d.Join(fs.MustRelPath("a")), "b"), ShouldBeNil)
		names, err := afs.ReadDirNames(d)
		So(err, ShouldBeNil)
		So(names, ShouldHaveLength, 3)
		So(names, ShouldContain, "a")
		So(names, ShouldContain, "b")
		So(names, ShouldContain, "sub")
	})
}

func CheckSymlinks(afs fs.FS) {
	Convey("symlink resolve", func() {
		So(afs.Mkdir(fs.MustRelPath("res"), 0755), ShouldBeNil)
		So(afs.Mkdir(fs.MustRelPath("res/dir"), 0755), ShouldBeNil)
		So(afs.Mkdir(fs.MustRelPath("res/dir/sub"), 0755), ShouldBeNil)
		So(MakeFile(afs, fs.MustRelPath("res/target"), "body"), ShouldBeNil)

		Convey("short relative case", func() {
			l1 := fs.MustRelPath("res/l1")
			So(afs.Mklink(l1, "./target"), ShouldBeNil)
			resolved, err := fs.ResolveLinkTarget(afs.Readlink, l1, "./target")
			So(err, ShouldBeNil)
			So(resolved, ShouldResemble, fs.MustRelPath("res/target"))
		})
		Convey("absolute targets start at the base", func() {
			resolved, err := fs.ResolveLinkTarget(afs.Readlink, fs.MustRelPath("res/dir/l"), "/res/target")
			So(err, ShouldBeNil)
			So(resolved, ShouldResemble, fs.MustRelPath("res/target"))
		})
		Convey("climbing above the base stops at the base", func() {
			resolved, err := fs.ResolveLinkTarget(afs.Readlink, fs.MustRelPath("res/l"), "../../../../res/target")
			So(err, ShouldBeNil)
			So(resolved, ShouldResemble, fs.MustRelPath("res/target"))
		})
		Convey("dotdot after a symlinked segment applies to the link target", func() {
			// res/hop -> dir/sub; so res/hop/.. is res/dir, not res.
			So(afs.Mklink(fs.MustRelPath("res/hop"), "dir/sub"), ShouldBeNil)
			resolved, err := fs.ResolveLinkTarget(afs.Readlink, fs.MustRelPath("res/l"), "hop/../sub")
			So(err, ShouldBeNil)
			So(resolved, ShouldResemble, fs.MustRelPath("res/dir/sub"))
		})
		Convey("the final segment is not followed", func() {
			So(afs.Mklink(fs.MustRelPath("res/last"), "target"), ShouldBeNil)
			resolved, err := fs.ResolveLinkTarget(afs.Readlink, fs.MustRelPath("res/l"), "last")
			So(err, ShouldBeNil)
			So(resolved, ShouldResemble, fs.MustRelPath("res/last"))
		})
		Convey("missing intermediates stop resolution without error", func() {
			resolved, err := fs.ResolveLinkTarget(afs.Readlink, fs.MustRelPath("res/l"), "ghost/../target")
			So(err, ShouldBeNil)
			So(resolved, ShouldResemble, fs.MustRelPath("res/ghost/target"))
		})
		Convey("intermediate loops are detected", func() {
			So(afs.Mklink(fs.MustRelPath("res/loopA"), "loopB"), ShouldBeNil)
			So(afs.Mklink(fs.MustRelPath("res/loopB"), "loopA"), ShouldBeNil)
			_, err := fs.ResolveLinkTarget(afs.Readlink, fs.MustRelPath("res/l"), "loopA/x")
			So(err, errcat.ErrorShouldHaveCategory, fs.ErrRecursion)
		})
		Convey("parents are resolved, the leaf is left alone", func() {
			So(afs.Mklink(fs.MustRelPath("res/dirlink"), "dir"), ShouldBeNil)
			So(afs.Mklink(fs.MustRelPath("res/dir/leaflink"), "sub"), ShouldBeNil)
			resolved, err := afs.ResolveParents(fs.MustRelPath("res/dirlink/leaflink"))
			So(err, ShouldBeNil)
			So(resolved, ShouldResemble, fs.MustRelPath("res/dir/leaflink"))
		})
	})
}

func CheckOpsTraversingSymlinks(afs fs.FS) {
	Convey("ops traverse symlinks in parent segments", func() {
		So(afs.Mkdir(fs.MustRelPath("trav"), 0755), ShouldBeNil)
		So(MakeFile(afs, fs.MustRelPath("trav/f"), "xyz"), ShouldBeNil)
		So(afs.Mklink(fs.MustRelPath("travlink"), "trav"), ShouldBeNil)

		stat, err := afs.LStat(fs.MustRelPath("travlink/f"))
		So(err, ShouldBeNil)
		So(stat.Type, ShouldEqual, fs.Type_File)
		So(ReadFile(afs, fs.MustRelPath("travlink/f")), ShouldEqual, "xyz")

		Convey("stat follows the last segment; lstat does not", func() {
			stat, err := afs.Stat(fs.MustRelPath("travlink"))
			So(err, ShouldBeNil)
			So(stat.Type, ShouldEqual, fs.Type_Dir)
			stat, err = afs.LStat(fs.MustRelPath("travlink"))
			So(err, ShouldBeNil)
			So(stat.Type, ShouldEqual, fs.Type_Symlink)
		})
	})
}

func MakeFile(afs fs.FS, path fs.RelPath, body string) error {
	f, err := afs.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte(body))
	return err
}

func ReadFile(afs fs.FS, path fs.RelPath) string {
	f, err := afs.OpenFile(path, os.O_RDONLY, 0)
	So(err, ShouldBeNil)
	defer f.Close()
	body, err := io.ReadAll(f)
	So(err, ShouldBeNil)
	return string(body)
}
