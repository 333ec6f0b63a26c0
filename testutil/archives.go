package testutil

import (
	"archive/tar"
	"io"
	"os"
	"strings"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/flattar/fs"
	"github.com/polydawn/flattar/fs/osfs"
	"github.com/polydawn/flattar/fsOp"
)

/*
	One archive entry, flattened for easy comparison in tests.
	Names are as written in the archive (so, "./"-prefixed, and dirs without the trailing slash).
*/
type Entry struct {
	Name  string
	Type  fs.Type
	Perms fs.Perms
	Size  int64
	Mtime time.Time
	Body  string
}

// Returns just the names of the entries, in order.
func Names(entries []Entry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

// Returns the entry with the given name, or a zero Entry if there is none.
func Find(entries []Entry, name string) Entry {
	for _, e := range entries {
		if e.Name == name {
			return e
		}
	}
	return Entry{}
}

/*
	A sink that just keeps everything it's given.

	If FailAt is nonzero, the FailAt'th write (counting from one) returns FailWith instead.
*/
type RecordingSink struct {
	Entries []Entry
	Closed  int

	FailAt   int
	FailWith error
	writes   int
}

func (s *RecordingSink) WriteDirectory(meta fs.Metadata) error {
	if err := s.maybeFail(); err != nil {
		return err
	}
	s.Entries = append(s.Entries, Entry{
		Name:  meta.Name.String(),
		Type:  meta.Type,
		Perms: meta.Perms,
		Mtime: meta.Mtime.UTC(),
	})
	return nil
}

func (s *RecordingSink) WriteFile(meta fs.Metadata, body io.Reader) error {
	if err := s.maybeFail(); err != nil {
		return err
	}
	content, err := io.ReadAll(io.LimitReader(body, meta.Size))
	if err != nil {
		return err
	}
	s.Entries = append(s.Entries, Entry{
		Name:  meta.Name.String(),
		Type:  meta.Type,
		Perms: meta.Perms,
		Size:  meta.Size,
		Mtime: meta.Mtime.UTC(),
		Body:  string(content),
	})
	return nil
}

func (s *RecordingSink) Close() error {
	s.Closed++
	return nil
}

func (s *RecordingSink) maybeFail() error {
	s.writes++
	if s.FailAt != 0 && s.writes == s.FailAt {
		return s.FailWith
	}
	return nil
}

// Decodes a whole tar stream into entries, asserting it's well formed.
func ReadTar(r io.Reader) []Entry {
	var entries []Entry
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return entries
		}
		convey.So(err, convey.ShouldBeNil)
		e := Entry{
			Name:  strings.TrimSuffix(hdr.Name, "/"),
			Perms: fs.Perms(hdr.Mode & 07777),
			Size:  hdr.Size,
			Mtime: hdr.ModTime.UTC(),
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			e.Type = fs.Type_Dir
		case tar.TypeReg:
			e.Type = fs.Type_File
			body, err := io.ReadAll(tr)
			convey.So(err, convey.ShouldBeNil)
			e.Body = string(body)
		case tar.TypeSymlink:
			e.Type = fs.Type_Symlink
		default:
			e.Type = fs.Type_Invalid
		}
		entries = append(entries, e)
	}
}

/*
	Unpacks entries (as from ReadTar) into a host directory, the way a plain
	'tar x' would: parents are created as needed, attributes are applied,
	and each parent's mtime is put back after a child is placed into it.
*/
func Extract(entries []Entry, dest fs.AbsolutePath) {
	convey.So(os.MkdirAll(dest.String(), 0755), convey.ShouldBeNil)
	afs := osfs.New(dest)
	for _, e := range entries {
		fmeta := fs.Metadata{
			Name:  fs.MustRelPath(e.Name),
			Type:  e.Type,
			Perms: e.Perms,
			Size:  int64(len(e.Body)),
			Mtime: e.Mtime,
		}
		convey.So(fsOp.MkdirAll(afs, fmeta.Name.Dir(), 0755), convey.ShouldBeNil)
		repair := fsOp.RepairMtime(afs, fmeta.Name.Dir())
		convey.So(fsOp.PlaceFile(afs, fmeta, strings.NewReader(e.Body)), convey.ShouldBeNil)
		if fmeta.Name != (fs.RelPath{}) {
			convey.So(repair(), convey.ShouldBeNil)
		}
	}
}
