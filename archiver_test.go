package flattar_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/otiai10/copy"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-billy.v4/memfs"

	"github.com/polydawn/flattar"
	"github.com/polydawn/flattar/fs"
	"github.com/polydawn/flattar/fs/billyfs"
	"github.com/polydawn/flattar/fs/osfs"
	"github.com/polydawn/flattar/sink/digest"
	"github.com/polydawn/flattar/sink/tarsink"
	. "github.com/polydawn/flattar/testutil"
)

// Runs one archive session into a tar, and decodes what came out.
// The entries are decoded even if the session failed, since the sink is closed either way.
func tarSession(body func(a *flattar.Archiver) error, opts ...flattar.Option) ([]Entry, error) {
	var buf bytes.Buffer
	err := flattar.Create(tarsink.New(&buf), body, opts...)
	return ReadTar(&buf), err
}

func adds(paths ...string) func(a *flattar.Archiver) error {
	return func(a *flattar.Archiver) error {
		for _, p := range paths {
			local, archive := p, []string(nil)
			if i := strings.IndexByte(p, '='); i >= 0 {
				local, archive = p[:i], []string{p[i+1:]}
			}
			if err := a.Add(local, archive...); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestArchivingPlainTrees(t *testing.T) {
	Convey("Archiving trees without symlinks", t, func() {
		WithTmpdir(func(tmpDir fs.AbsolutePath) {
			host := func(p string) string { return tmpDir.Join(fs.MustRelPath(p)).String() }
			Fixture(osfs.New(tmpDir),
				File("a_file", "file content"),
				Dir("a_subdir"),
				File("a_subdir/a_file", "nested content"),
				Dir("a_subdir/deeper"),
				File("a_subdir/deeper/z", "z"),
				File("a_subdir/b", "b"),
				Mtime("a_file", 1500000000),
				Mtime("a_subdir/a_file", 1500000001),
				Mtime("a_subdir/deeper", 1500000002),
				Mtime("a_subdir", 1500000003),
			)

			Convey("a file is archived under its base name by default", func() {
				entries, err := tarSession(adds(host("a_file")))
				So(err, ShouldBeNil)
				So(entries, ShouldResemble, []Entry{
					{Name: "./a_file", Type: fs.Type_File, Perms: 0644, Size: 12, Mtime: time.Unix(1500000000, 0).UTC(), Body: "file content"},
				})
			})
			Convey("a nested file is still archived under only its base name", func() {
				entries, err := tarSession(adds(host("a_subdir/a_file")))
				So(err, ShouldBeNil)
				So(Names(entries), ShouldResemble, []string{"./a_file"})
				So(entries[0].Body, ShouldEqual, "nested content")
			})
			Convey("an explicit archive path is used verbatim", func() {
				entries, err := tarSession(adds(host("a_subdir/a_file") + "=renamed/inner"))
				So(err, ShouldBeNil)
				So(Names(entries), ShouldResemble, []string{"./renamed/inner"})
			})
			Convey("a directory is written before everything under it, siblings in name order", func() {
				entries, err := tarSession(adds(host("a_subdir")))
				So(err, ShouldBeNil)
				So(Names(entries), ShouldResemble, []string{
					"./a_subdir",
					"./a_subdir/a_file",
					"./a_subdir/b",
					"./a_subdir/deeper",
					"./a_subdir/deeper/z",
				})
				So(Find(entries, "./a_subdir").Type, ShouldEqual, fs.Type_Dir)
				So(Find(entries, "./a_subdir").Mtime, ShouldEqual, time.Unix(1500000003, 0).UTC())
				So(Find(entries, "./a_subdir/deeper").Mtime, ShouldEqual, time.Unix(1500000002, 0).UTC())
			})
			Convey("a renamed directory has its whole subtree remapped", func() {
				entries, err := tarSession(adds(host("a_subdir") + "=x/y"))
				So(err, ShouldBeNil)
				So(Names(entries), ShouldResemble, []string{
					"./x/y",
					"./x/y/a_file",
					"./x/y/b",
					"./x/y/deeper",
					"./x/y/deeper/z",
				})
			})
			Convey("several adds share one archive", func() {
				entries, err := tarSession(adds(host("a_file"), host("a_subdir/deeper")))
				So(err, ShouldBeNil)
				So(Names(entries), ShouldResemble, []string{"./a_file", "./deeper", "./deeper/z"})
			})
			Convey("relative local paths resolve against the archiver's dir", func() {
				entries, err := tarSession(adds("a_subdir/b", "./a_file"), flattar.WithDir(tmpDir.String()))
				So(err, ShouldBeNil)
				So(Names(entries), ShouldResemble, []string{"./b", "./a_file"})
			})
			Convey("sub-second mtimes are truncated", func() {
				afs := osfs.New(tmpDir)
				So(afs.SetTimesNano(fs.MustRelPath("a_file"), time.Unix(1500000000, 999999999), fs.DefaultAtime), ShouldBeNil)
				sink := &RecordingSink{}
				So(flattar.Create(sink, adds(host("a_file"))), ShouldBeNil)
				So(sink.Entries[0].Mtime, ShouldEqual, time.Unix(1500000000, 0).UTC())
			})
		})
	})
}

func TestArchivingSymlinks(t *testing.T) {
	Convey("Archiving symlinks", t, func() {
		WithTmpdir(func(tmpDir fs.AbsolutePath) {
			host := func(p string) string { return tmpDir.Join(fs.MustRelPath(p)).String() }
			Fixture(osfs.New(tmpDir),
				File("target_file", "the target"),
				Chmod("target_file", 0640),
				Mtime("target_file", 1400000000),
				Link("file_link", "target_file"),
				LMtime("file_link", 1600000000),
				Dir("real_dir"),
				File("real_dir/inner", "inner content"),
				Dir("real_dir/sub"),
				File("real_dir/sub/leaf", "leaf"),
				Mtime("real_dir/sub", 1400000001),
				Mtime("real_dir", 1400000002),
				Link("dir_link", "real_dir"),
				Link("abs_link", host("target_file")),
				Link("chain_a", "chain_b"),
				Link("chain_b", "file_link"),
			)

			Convey("a link to a file carries the target's content, size, mode, and mtime", func() {
				entries, err := tarSession(adds(host("file_link")))
				So(err, ShouldBeNil)
				So(entries, ShouldResemble, []Entry{
					{Name: "./file_link", Type: fs.Type_File, Perms: 0640, Size: 10, Mtime: time.Unix(1400000000, 0).UTC(), Body: "the target"},
				})
			})
			Convey("a link with an absolute target works the same", func() {
				entries, err := tarSession(adds(host("abs_link")))
				So(err, ShouldBeNil)
				So(Names(entries), ShouldResemble, []string{"./abs_link"})
				So(entries[0].Body, ShouldEqual, "the target")
			})
			Convey("chains of links are followed to the end", func() {
				entries, err := tarSession(adds(host("chain_a")))
				So(err, ShouldBeNil)
				So(Names(entries), ShouldResemble, []string{"./chain_a"})
				So(entries[0].Body, ShouldEqual, "the target")
			})
			Convey("a link to a directory is inlined as that whole directory", func() {
				entries, err := tarSession(adds(host("dir_link")))
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 4)
				So(Names(entries), ShouldResemble, []string{
					"./dir_link",
					"./dir_link/inner",
					"./dir_link/sub",
					"./dir_link/sub/leaf",
				})
				So(Find(entries, "./dir_link").Type, ShouldEqual, fs.Type_Dir)
				So(Find(entries, "./dir_link").Mtime, ShouldEqual, time.Unix(1400000002, 0).UTC())
				So(Find(entries, "./dir_link/sub").Mtime, ShouldEqual, time.Unix(1400000001, 0).UTC())
				So(Find(entries, "./dir_link/sub/leaf").Body, ShouldEqual, "leaf")
			})
			Convey("a link to a directory archived under another name", func() {
				entries, err := tarSession(adds(host("dir_link") + "=elsewhere"))
				So(err, ShouldBeNil)
				So(Names(entries)[0], ShouldEqual, "./elsewhere")
				So(Names(entries)[3], ShouldEqual, "./elsewhere/sub/leaf")
			})
			Convey("no symlink entry is ever written", func() {
				entries, err := tarSession(adds(host("file_link"), host("dir_link"), host("abs_link"), host("chain_a")))
				So(err, ShouldBeNil)
				for _, e := range entries {
					So(e.Type, ShouldBeIn, fs.Type_File, fs.Type_Dir)
				}
			})
		})
	})
}

func TestArchivingLinksInsideTrees(t *testing.T) {
	Convey("Archiving trees which contain symlinks", t, func() {
		WithTmpdir(func(tmpDir fs.AbsolutePath) {
			host := func(p string) string { return tmpDir.Join(fs.MustRelPath(p)).String() }
			afs := osfs.New(tmpDir)

			Convey("sibling links are inlined like a deep copy would", func() {
				// The copy library resolves relative link targets against the
				// process cwd, so its source tree gets the same links made absolute.
				buildTree := func(root string, target func(linkDir, to string) string) {
					Fixture(afs,
						Dir(root),
						Dir(root+"/real"),
						File(root+"/real/f", "real file"),
						Dir(root+"/real/g"),
						File(root+"/real/g/h", "hhh"),
						Link(root+"/alias", target(root, "real")),
						Link(root+"/f_alias", target(root, "real/f")),
						Link(root+"/real/g/up", target(root+"/real/g", "../f")),
					)
				}
				buildTree("tree", func(_, to string) string { return to })
				Fixture(afs, Dir("oracle_src"))
				buildTree("oracle_src/tree", func(linkDir, to string) string {
					return filepath.Join(host(linkDir), to)
				})
				entries, err := tarSession(adds(host("tree")))
				So(err, ShouldBeNil)
				So(Names(entries), ShouldResemble, []string{
					"./tree",
					"./tree/alias",
					"./tree/alias/f",
					"./tree/alias/g",
					"./tree/alias/g/h",
					"./tree/alias/g/up",
					"./tree/f_alias",
					"./tree/real",
					"./tree/real/f",
					"./tree/real/g",
					"./tree/real/g/h",
					"./tree/real/g/up",
				})

				Extract(entries, tmpDir.Join(fs.MustRelPath("extracted")))
				So(copy.Copy(host("oracle_src/tree"), host("oracle/tree"), copy.Options{
					OnSymlink: func(string) copy.SymlinkAction { return copy.Deep },
				}), ShouldBeNil)
				So(treeListing(host("extracted/tree")), ShouldResemble, treeListing(host("oracle/tree")))
			})
			Convey("'..' in a link target applies after the link's own directory is resolved", func() {
				Fixture(afs,
					File("f", "shallow"),
					Dir("deep"),
					File("deep/f", "deep"),
					Dir("deep/sub"),
					Link("deep/sub/up", "../f"),
					Link("sublink", "deep/sub"),
				)
				Convey("reached by walking through the directory link", func() {
					entries, err := tarSession(adds(host("sublink")))
					So(err, ShouldBeNil)
					So(Names(entries), ShouldResemble, []string{"./sublink", "./sublink/up"})
					So(Find(entries, "./sublink/up").Body, ShouldEqual, "deep")
				})
				Convey("reached by adding a path through the directory link", func() {
					entries, err := tarSession(adds(host("sublink/up")))
					So(err, ShouldBeNil)
					So(entries[0].Body, ShouldEqual, "deep")
				})
			})
			Convey("two links to the same directory are both inlined", func() {
				Fixture(afs,
					Dir("shared"),
					File("shared/x", "x"),
					Dir("diamond"),
					Link("diamond/one", "../shared"),
					Link("diamond/two", host("shared")),
				)
				entries, err := tarSession(adds(host("diamond")))
				So(err, ShouldBeNil)
				So(Names(entries), ShouldResemble, []string{
					"./diamond",
					"./diamond/one",
					"./diamond/one/x",
					"./diamond/two",
					"./diamond/two/x",
				})
			})
			Convey("a link back up into a directory being archived is a cycle", func() {
				Fixture(afs,
					Dir("loop"),
					File("loop/a", "a"),
					Dir("loop/b"),
					Link("loop/b/back", ".."),
				)
				entries, err := tarSession(adds(host("loop")))
				So(err, errcat.ErrorShouldHaveCategory, flattar.ErrCycleDetected)
				So(Names(entries), ShouldResemble, []string{"./loop", "./loop/a", "./loop/b"})
			})
			Convey("a link to its own directory is a cycle", func() {
				Fixture(afs,
					Dir("selfish"),
					Link("selfish/me", "."),
				)
				_, err := tarSession(adds(host("selfish")))
				So(err, errcat.ErrorShouldHaveCategory, flattar.ErrCycleDetected)
			})
			Convey("links which point at each other are a cycle", func() {
				Fixture(afs,
					Link("ping", "pong"),
					Link("pong", "ping"),
				)
				_, err := tarSession(adds(host("ping")))
				So(err, errcat.ErrorShouldHaveCategory, flattar.ErrCycleDetected)
			})
		})
	})
}

func TestArchivingIdempotence(t *testing.T) {
	Convey("Archiving the same tree twice", t, func() {
		WithTmpdir(func(tmpDir fs.AbsolutePath) {
			host := func(p string) string { return tmpDir.Join(fs.MustRelPath(p)).String() }
			Fixture(osfs.New(tmpDir),
				Dir("d"),
				File("d/one", "1"),
				File("d/two", "22"),
				Link("d/three", "two"),
				Dir("d/e"),
				Link("d/e/f", "../../d"+"/one"),
				Mtime("d/e", 1234567890),
				Mtime("d", 1234567891),
			)
			session := func() ([]Entry, string) {
				var buf bytes.Buffer
				dsink := digest.New(tarsink.New(&buf))
				So(flattar.Create(dsink, adds(host("d"))), ShouldBeNil)
				return ReadTar(&buf), dsink.Digest()
			}
			entries1, digest1 := session()
			entries2, digest2 := session()

			Convey("produces identical entries", func() {
				So(entries2, ShouldResemble, entries1)
			})
			Convey("produces identical digests", func() {
				So(digest1, ShouldNotEqual, "")
				So(digest2, ShouldEqual, digest1)
			})
			Convey("but any change to the tree changes the digest", func() {
				Fixture(osfs.New(tmpDir),
					File("d/two", "23"),
					Mtime("d", 1234567891),
				)
				_, digest3 := session()
				So(digest3, ShouldNotEqual, digest1)
			})
		})
	})
}

func TestArchivingErrors(t *testing.T) {
	Convey("Archiving things which can't be archived", t, func() {
		WithTmpdir(func(tmpDir fs.AbsolutePath) {
			host := func(p string) string { return tmpDir.Join(fs.MustRelPath(p)).String() }
			afs := osfs.New(tmpDir)
			Fixture(afs,
				File("a_file", "content"),
				Dir("a_dir"),
				File("a_dir/x", "x"),
			)

			Convey("a missing path is NotFound, and the sink still closes", func() {
				sink := &RecordingSink{}
				err := flattar.Create(sink, adds(host("nope")))
				So(err, errcat.ErrorShouldHaveCategory, flattar.ErrNotFound)
				So(sink.Entries, ShouldHaveLength, 0)
				So(sink.Closed, ShouldEqual, 1)
			})
			Convey("a path beneath a file is NotFound", func() {
				_, err := tarSession(adds(host("a_file/beneath")))
				So(err, errcat.ErrorShouldHaveCategory, flattar.ErrNotFound)
			})
			Convey("a dangling link is NotFound when its target is classified", func() {
				Fixture(afs, Link("dangling", "nowhere/to/be/found"))
				_, err := tarSession(adds(host("dangling")))
				So(err, errcat.ErrorShouldHaveCategory, flattar.ErrNotFound)
				So(err.Error(), ShouldContainSubstring, "dangling")
			})
			Convey("a dangling link inside a tree aborts after the entries before it", func() {
				Fixture(afs, Link("a_dir/y", "../missing"))
				entries, err := tarSession(adds(host("a_dir")))
				So(err, errcat.ErrorShouldHaveCategory, flattar.ErrNotFound)
				So(Names(entries), ShouldResemble, []string{"./a_dir", "./a_dir/x"})
			})
			Convey("archive paths may not escape the archive", func() {
				for _, bad := range []string{"../out", "a/../../out", "/abs", ""} {
					_, err := tarSession(adds(host("a_file") + "=" + bad))
					So(err, errcat.ErrorShouldHaveCategory, flattar.ErrUsage)
				}
			})
			Convey("a local path is required", func() {
				_, err := tarSession(func(a *flattar.Archiver) error { return a.Add("") })
				So(err, errcat.ErrorShouldHaveCategory, flattar.ErrUsage)
			})
			Convey("the same archive path can't be written twice", func() {
				entries, err := tarSession(adds(host("a_file"), host("a_dir/x")+"=a_file"))
				So(err, errcat.ErrorShouldHaveCategory, flattar.ErrUsage)
				So(Names(entries), ShouldResemble, []string{"./a_file"})
			})
			Convey("a directory can't be written after entries inside it", func() {
				_, err := tarSession(adds(host("a_file")+"=a_dir/late", host("a_dir")))
				So(err, errcat.ErrorShouldHaveCategory, flattar.ErrUsage)
			})
			Convey("nothing can be written beneath a file", func() {
				_, err := tarSession(adds(host("a_file"), host("a_dir/x")+"=a_file/x"))
				So(err, errcat.ErrorShouldHaveCategory, flattar.ErrUsage)
			})
			Convey("a cancelled context stops before the next entry", func() {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				sink := &RecordingSink{}
				err := flattar.Create(sink, func(a *flattar.Archiver) error {
					return a.AddContext(ctx, host("a_dir"))
				})
				So(err, errcat.ErrorShouldHaveCategory, flattar.ErrCancelled)
				So(sink.Entries, ShouldHaveLength, 0)
			})
			Convey("a sink failure is ErrSink, and the sink is still closed", func() {
				sink := &RecordingSink{FailAt: 2, FailWith: fmt.Errorf("disk full")}
				err := flattar.Create(sink, adds(host("a_dir")))
				So(err, errcat.ErrorShouldHaveCategory, flattar.ErrSink)
				So(err.Error(), ShouldContainSubstring, "disk full")
				So(Names(sink.Entries), ShouldResemble, []string{"./a_dir"})
				So(sink.Closed, ShouldEqual, 1)
			})
			Convey("the body's error wins over a close error", func() {
				sink := &failingCloseSink{}
				err := flattar.Create(sink, adds(host("nope")))
				So(err, errcat.ErrorShouldHaveCategory, flattar.ErrNotFound)
				So(sink.closed, ShouldBeTrue)

				err = flattar.Create(sink, adds(host("a_file")))
				So(err, errcat.ErrorShouldHaveCategory, flattar.ErrSink)
			})
			Convey("the sink is closed even if the body panics", func() {
				sink := &RecordingSink{}
				So(func() {
					flattar.Create(sink, func(*flattar.Archiver) error { panic("oh no") })
				}, ShouldPanic)
				So(sink.Closed, ShouldEqual, 1)
			})
			Convey("an unreadable file is an IO error", Requires(RequiresCannotBypassPermissions, func() {
				Fixture(afs, Chmod("a_file", 0000))
				sink := &RecordingSink{}
				err := flattar.Create(sink, adds(host("a_file")))
				So(err, errcat.ErrorShouldHaveCategory, flattar.ErrIO)
				So(sink.Entries, ShouldHaveLength, 0)
			}))
			Convey("an unlistable directory is an IO error", Requires(RequiresCannotBypassPermissions, func() {
				Fixture(afs, Chmod("a_dir", 0000))
				_, err := tarSession(adds(host("a_dir")))
				So(err, errcat.ErrorShouldHaveCategory, flattar.ErrIO)
				Fixture(afs, Chmod("a_dir", 0755))
			}))
		})
	})
}

func TestArchivingOtherFileTypes(t *testing.T) {
	Convey("Archiving a named pipe reads it like a file", t, func() {
		WithTmpdir(func(tmpDir fs.AbsolutePath) {
			afs := osfs.New(tmpDir)
			So(afs.Mkfifo(fs.MustRelPath("pipe"), 0644), ShouldBeNil)
			go func() {
				os.WriteFile(tmpDir.Join(fs.MustRelPath("pipe")).String(), []byte("piped"), 0)
			}()
			entries, err := tarSession(adds(tmpDir.Join(fs.MustRelPath("pipe")).String()))
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 1)
			So(entries[0].Type, ShouldEqual, fs.Type_File)
			So(entries[0].Size, ShouldEqual, int64(5))
			So(entries[0].Body, ShouldEqual, "piped")
		})
	})
}

func TestVerboseTrace(t *testing.T) {
	Convey("Verbose tracing", t, func() {
		WithTmpdir(func(tmpDir fs.AbsolutePath) {
			host := func(p string) string { return tmpDir.Join(fs.MustRelPath(p)).String() }
			Fixture(osfs.New(tmpDir),
				File("f", "f"),
				Link("l", "f"),
			)
			events := make(chan flattar.Event, 100)
			mon := flattar.Monitor{Chan: events}

			Convey("sends a log event for each decision", func() {
				entries, err := tarSession(adds(host("l")), flattar.WithMonitor(mon), flattar.WithVerbose(true))
				So(err, ShouldBeNil)
				close(events)
				var msgs []string
				for ev := range events {
					So(ev.Log, ShouldNotBeNil)
					msgs = append(msgs, ev.Log.Msg)
				}
				So(msgs, ShouldHaveLength, 4)
				So(msgs[0], ShouldContainSubstring, "as symlink")
				So(msgs[1], ShouldContainSubstring, "resolved symlink")
				So(msgs[2], ShouldContainSubstring, "as file")
				So(msgs[3], ShouldContainSubstring, "add file")

				Convey("without changing the archive", func() {
					plain, err := tarSession(adds(host("l")))
					So(err, ShouldBeNil)
					So(plain, ShouldResemble, entries)
				})
			})
			Convey("is silent when not enabled", func() {
				_, err := tarSession(adds(host("l")), flattar.WithMonitor(mon))
				So(err, ShouldBeNil)
				So(events, ShouldHaveLength, 0)
			})
		})
	})
}

func TestClassifyAndResolve(t *testing.T) {
	Convey("Classify and Resolve", t, func() {
		WithTmpdir(func(tmpDir fs.AbsolutePath) {
			afs := osfs.New(tmpDir)
			Fixture(afs,
				File("f", ""),
				Dir("d"),
				Link("d/l", "../f"),
				Link("abs", "/d/l"),
				Link("up", "../../../f"),
			)
			classify := func(p string) flattar.EntryKind {
				kind, _, err := flattar.Classify(afs, fs.MustRelPath(p))
				So(err, ShouldBeNil)
				return kind
			}
			resolve := func(p string) string {
				target, err := flattar.Resolve(afs, fs.MustRelPath(p))
				So(err, ShouldBeNil)
				return target.String()
			}

			So(classify("f"), ShouldEqual, flattar.Kind_File)
			So(classify("d"), ShouldEqual, flattar.Kind_Directory)
			So(classify("d/l"), ShouldEqual, flattar.Kind_Symlink)
			So(classify("nope"), ShouldEqual, flattar.Kind_Nonexistent)
			So(classify("f/nope"), ShouldEqual, flattar.Kind_Nonexistent)

			So(resolve("d/l"), ShouldEqual, "./f")
			So(resolve("abs"), ShouldEqual, "./d/l")
			So(resolve("up"), ShouldEqual, "./f")

			_, err := flattar.Resolve(afs, fs.MustRelPath("f"))
			So(err, errcat.ErrorShouldHaveCategory, flattar.ErrUsage)
		})
	})
}

func TestArchivingVirtualFilesystems(t *testing.T) {
	Convey("Archiving from an in-memory filesystem", t, func() {
		afs := billyfs.New(memfs.New())
		Fixture(afs,
			Dir("proj"),
			File("proj/main.go", "package main"),
			Dir("vendor"),
			File("vendor/lib.go", "package lib"),
			Link("proj/vendor", "/vendor"),
			Link("proj/readme", "../docs/readme"),
		)

		Convey("absolute links are taken from that filesystem's root", func() {
			entries, err := tarSession(adds("proj/vendor"), flattar.WithFS(afs))
			So(err, ShouldBeNil)
			So(Names(entries), ShouldResemble, []string{"./vendor", "./vendor/lib.go"})
			So(Find(entries, "./vendor/lib.go").Body, ShouldEqual, "package lib")
		})
		Convey("relative paths are taken from that filesystem's root, or the dir given", func() {
			entries, err := tarSession(adds("main.go"), flattar.WithFS(afs), flattar.WithDir("/proj"))
			So(err, ShouldBeNil)
			So(Names(entries), ShouldResemble, []string{"./main.go"})
		})
		Convey("dangling links are still NotFound", func() {
			_, err := tarSession(adds("/proj"), flattar.WithFS(afs))
			So(err, errcat.ErrorShouldHaveCategory, flattar.ErrNotFound)
		})
		Convey("'..' can't climb above the root", func() {
			_, err := tarSession(adds("../../proj/main.go"), flattar.WithFS(afs))
			So(err, ShouldBeNil)
		})
	})
}

type failingCloseSink struct {
	RecordingSink
	closed bool
}

func (s *failingCloseSink) Close() error {
	s.closed = true
	return fmt.Errorf("no room left for the trailer")
}

// Lists a host tree as "path type content" lines, sorted, for comparing trees.
func treeListing(root string) []string {
	var lines []string
	So(filepath.Walk(root, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		switch {
		case fi.IsDir():
			lines = append(lines, rel+" dir")
		case fi.Mode().IsRegular():
			body, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			lines = append(lines, rel+" file "+string(body))
		default:
			lines = append(lines, rel+" "+fi.Mode().String())
		}
		return nil
	}), ShouldBeNil)
	sort.Strings(lines)
	return lines
}
