package flattar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/flattar/fs"
	"github.com/polydawn/flattar/fs/osfs"
)

/*
	An Archiver writes local paths into a Sink, replacing every symlink it
	meets with whatever the link points to.

	One Archiver is one archive session: the archive paths written across
	all calls to Add are tracked, so a session can't write the same path
	twice, nor a directory after something inside it.

	Not safe for concurrent use.
*/
type Archiver struct {
	sink    Sink
	afs     fs.FS
	dir     fs.AbsolutePath
	dirSet  bool
	dirErr  error
	monitor Monitor
	verbose bool

	written  map[fs.RelPath]fs.Type
	occupied map[fs.RelPath]struct{} // paths with at least one entry written somewhere below them.
}

type Option func(*Archiver)

// Read local paths from the given filesystem instead of the host's.
// Relative paths then resolve against the filesystem's root, unless WithDir says otherwise.
func WithFS(afs fs.FS) Option {
	return func(a *Archiver) { a.afs = afs }
}

// Resolve relative local paths against dir instead of the process working directory.
func WithDir(dir string) Option {
	return func(a *Archiver) {
		a.dirSet = true
		a.dir, a.dirErr = fs.ParseAbsolutePath(filepath.ToSlash(dir))
		if a.dirErr != nil {
			a.dirErr = Errorf(ErrUsage, "invalid working directory %q: %s", dir, a.dirErr)
		}
	}
}

func WithMonitor(mon Monitor) Option {
	return func(a *Archiver) { a.monitor = mon }
}

// When set, every classification and dispatch decision is sent to the monitor as an Event_Log.
func WithVerbose(verbose bool) Option {
	return func(a *Archiver) { a.verbose = verbose }
}

/*
	Start an archive session writing into sink.

	The sink stays the caller's to close; see Create for a form that does it for you.
	The working directory used for relative local paths is captured now, once.
*/
func Open(sink Sink, opts ...Option) *Archiver {
	a := &Archiver{
		sink:     sink,
		written:  map[fs.RelPath]fs.Type{},
		occupied: map[fs.RelPath]struct{}{},
	}
	for _, opt := range opts {
		opt(a)
	}
	switch {
	case a.afs == nil:
		a.afs = osfs.New(fs.AbsolutePath{})
		if !a.dirSet {
			if cwd, err := os.Getwd(); err != nil {
				a.dirErr = Errorf(ErrIO, "cannot determine working directory: %s", err)
			} else {
				WithDir(cwd)(a)
			}
		}
	case !a.dirSet:
		a.dir = a.afs.BasePath()
	}
	return a
}

/*
	Run body against a fresh Archiver, then close the sink -- always,
	even if body fails or panics.

	Body's error is returned in preference to an error from closing;
	it's returned as-is, so errors body makes up itself keep their own categories.
*/
func Create(sink Sink, body func(*Archiver) error, opts ...Option) (err error) {
	a := Open(sink, opts...)
	defer func() {
		cerr := sink.Close()
		if err == nil && cerr != nil {
			err = Errorf(ErrSink, "cannot finish archive: %s", cerr)
		}
	}()
	return body(a)
}

// The filesystem local paths are read from.
func (a *Archiver) FS() fs.FS {
	return a.afs
}

func (a *Archiver) Add(localPath string, archivePath ...string) error {
	return a.AddContext(context.Background(), localPath, archivePath...)
}

/*
	Add localPath to the archive at archivePath.

	With no archivePath, the base name of localPath is used.
	Files become one file entry; directories become a directory entry and
	then everything below it, depth first, siblings in name order.
	A symlink is replaced by its target, under the symlink's own archive path:
	a link to a directory is archived as that whole directory.

	The context is checked before each entry is written.
	Any error aborts the Add where it stands; entries already written stay written.
*/
func (a *Archiver) AddContext(ctx context.Context, localPath string, archivePath ...string) (err error) {
	defer RequireErrorHasCategory(&err, ErrorCategory(""))

	// Sanitize arguments.
	if len(archivePath) > 1 {
		return Errorf(ErrUsage, "add takes at most one archive path (got %d)", len(archivePath))
	}
	local, err := a.parseLocalPath(localPath)
	if err != nil {
		return err
	}
	var dest fs.RelPath
	if len(archivePath) == 1 {
		dest, err = parseArchivePath(archivePath[0])
	} else {
		dest, err = defaultArchivePath(localPath)
	}
	if err != nil {
		return err
	}

	// Canonicalize the parents once.  Below here, every path we visit is
	// either reached by plain listing or is a resolved link target, so
	// all of them stay canonical without further work.
	local, err = a.afs.ResolveParents(local)
	if err != nil {
		return fsError(err, "cannot resolve %s", localPath)
	}

	w := &walker{
		Archiver:  a,
		ctx:       ctx,
		expanding: map[fs.RelPath]struct{}{},
	}
	return w.add(local, dest)
}

func (a *Archiver) parseLocalPath(localPath string) (fs.RelPath, error) {
	if localPath == "" {
		return fs.RelPath{}, Errorf(ErrUsage, "local path must not be empty")
	}
	slashed := filepath.ToSlash(localPath)
	var abs fs.AbsolutePath
	if path.IsAbs(slashed) {
		abs = fs.MustAbsolutePath(slashed)
	} else {
		if a.dirErr != nil {
			return fs.RelPath{}, a.dirErr
		}
		abs = a.dir.Join(fs.MustRelPath(slashed))
	}
	local, ok := a.afs.BasePath().Rel(abs)
	if !ok {
		return fs.RelPath{}, Errorf(ErrUsage, "local path %q is outside of the filesystem at %s", localPath, a.afs.BasePath())
	}
	return local, nil
}

func parseArchivePath(archivePath string) (fs.RelPath, error) {
	dest, err := fs.ParseRelPath(filepath.ToSlash(archivePath))
	if err != nil {
		return dest, Errorf(ErrUsage, "invalid archive path %q: %s", archivePath, err)
	}
	if dest.GoesUp() {
		return dest, Errorf(ErrUsage, "invalid archive path %q: must not depart the archive root", archivePath)
	}
	return dest, nil
}

func defaultArchivePath(localPath string) (fs.RelPath, error) {
	base := path.Base(path.Clean(filepath.ToSlash(localPath)))
	switch base {
	case "/":
		return fs.RelPath{}, nil
	case "..":
		return fs.RelPath{}, Errorf(ErrUsage, "local path %q has no usable base name; give an archive path", localPath)
	}
	return parseArchivePath(base)
}

// Claim an archive path for an entry of the given type, or explain why it can't be had.
func (a *Archiver) claim(dest fs.RelPath, typ fs.Type) error {
	if dest == (fs.RelPath{}) && typ != fs.Type_Dir {
		return Errorf(ErrUsage, "only a directory can be written at the archive root")
	}
	if _, ok := a.written[dest]; ok {
		return Errorf(ErrUsage, "duplicate entry: %s was already written to this archive", dest)
	}
	if _, ok := a.occupied[dest]; ok {
		if typ == fs.Type_Dir {
			return Errorf(ErrUsage, "directory %s must be written before the entries inside it", dest)
		}
		return Errorf(ErrUsage, "cannot write file %s: entries were already written inside it", dest)
	}
	parents := dest.SplitParent()
	for _, parent := range parents {
		if a.written[parent] == fs.Type_File {
			return Errorf(ErrUsage, "cannot write %s: %s was written as a file", dest, parent)
		}
	}
	a.written[dest] = typ
	for _, parent := range parents {
		a.occupied[parent] = struct{}{}
	}
	return nil
}

func (a *Archiver) trace(format string, args ...interface{}) {
	if !a.verbose || a.monitor.Chan == nil {
		return
	}
	a.monitor.Chan <- Event{Log: &Event_Log{
		Time:  time.Now(),
		Level: LogInfo,
		Msg:   fmt.Sprintf(format, args...),
	}}
}

/*
	State for one Add call.
*/
type walker struct {
	*Archiver
	ctx context.Context

	// The directories being expanded on the current recursion path.
	// Seeing one again means symlinks have led us back inside it.
	expanding map[fs.RelPath]struct{}
}

// Dispatch one local path.  Its archive path is already decided.
func (w *walker) add(local, dest fs.RelPath) error {
	kind, fmeta, err := Classify(w.afs, local)
	if err != nil {
		return err
	}
	w.trace("classified %s as %s", local, kind)
	return w.dispatch(kind, fmeta, local, dest)
}

func (w *walker) dispatch(kind EntryKind, fmeta *fs.Metadata, local, dest fs.RelPath) error {
	switch kind {
	case Kind_File:
		return w.addFile(local, fmeta, dest)
	case Kind_Directory:
		return w.addTree(local, dest)
	case Kind_Symlink:
		return w.addLink(local, dest, nil)
	case Kind_Nonexistent:
		return Errorf(ErrNotFound, "cannot archive %s: no such file or directory", local)
	default:
		panic(fmt.Errorf("unhandled entry kind %v", kind))
	}
}

// Replace the symlink at 'link' with its target.
// 'chain' holds the links followed so far to get here, if this link is itself a target.
func (w *walker) addLink(link, dest fs.RelPath, chain map[fs.RelPath]struct{}) error {
	target, err := Resolve(w.afs, link)
	if err != nil {
		return err
	}
	w.trace("resolved symlink %s -> %s", link, target)
	kind, fmeta, err := Classify(w.afs, target)
	if err != nil {
		return err
	}
	w.trace("classified %s as %s", target, kind)
	switch kind {
	case Kind_Symlink:
		if chain == nil {
			chain = map[fs.RelPath]struct{}{}
		}
		chain[link] = struct{}{}
		if _, ok := chain[target]; ok {
			return Errorf(ErrCycleDetected, "symlink loop: %s leads back to %s", link, target)
		}
		return w.addLink(target, dest, chain)
	case Kind_Nonexistent:
		return Errorf(ErrNotFound, "cannot archive %s: dangling symlink to %s", link, target)
	default:
		return w.dispatch(kind, fmeta, target, dest)
	}
}

// Archive the directory at 'root' and everything under it.
func (w *walker) addTree(root, dest fs.RelPath) error {
	preVisit := func(filenode *fs.FilewalkNode) error {
		local := root.Join(filenode.Path)
		to := dest.Join(filenode.Path)
		kind, fmeta, err := classifyStat(local, filenode.Info, filenode.Err)
		if err != nil {
			return err
		}
		if filenode.Path != (fs.RelPath{}) {
			w.trace("classified %s as %s", local, kind)
		}
		switch kind {
		case Kind_Directory:
			if _, ok := w.expanding[local]; ok {
				return Errorf(ErrCycleDetected, "symlink cycle: %s is already being archived, and was reached again at %s", local, to)
			}
			if err := w.writeDirectory(fmeta, to); err != nil {
				return err
			}
			w.expanding[local] = struct{}{}
			return nil
		case Kind_Nonexistent:
			// Listed by its parent, but gone by the time we got to it.
			return Errorf(ErrNotFound, "cannot archive %s: no such file or directory", local)
		default:
			return w.dispatch(kind, fmeta, local, to)
		}
	}
	postVisit := func(filenode *fs.FilewalkNode) error {
		if filenode.Err == nil && filenode.Info.Type == fs.Type_Dir {
			delete(w.expanding, root.Join(filenode.Path))
		}
		return nil
	}
	return fsError(fs.Walk(w.afs, root, preVisit, postVisit), "cannot list directory under %s", root)
}

func (w *walker) writeDirectory(fmeta *fs.Metadata, dest fs.RelPath) error {
	if w.ctx.Err() != nil {
		return Errorf(ErrCancelled, "cancelled")
	}
	if err := w.claim(dest, fs.Type_Dir); err != nil {
		return err
	}
	w.trace("add directory %s -> %s", fmeta.Name, dest)
	meta := fs.Metadata{
		Name:  dest,
		Type:  fs.Type_Dir,
		Perms: fmeta.Perms,
		Mtime: fmeta.Mtime.Truncate(time.Second),
	}
	if err := w.sink.WriteDirectory(meta); err != nil {
		return Errorf(ErrSink, "cannot write directory %s: %s", dest, err)
	}
	return nil
}

// Archive one file.  'fmeta' is from the lstat of 'local', which is not a link.
func (w *walker) addFile(local fs.RelPath, fmeta *fs.Metadata, dest fs.RelPath) error {
	if w.ctx.Err() != nil {
		return Errorf(ErrCancelled, "cancelled")
	}
	if err := w.claim(dest, fs.Type_File); err != nil {
		return err
	}
	w.trace("add file %s -> %s", local, dest)

	// Open before writing anything, so an unreadable file leaves no half an entry behind.
	file, err := w.afs.OpenFile(local, os.O_RDONLY, 0)
	if err != nil {
		return fsError(err, "cannot open %s", local)
	}
	defer file.Close()

	meta := fs.Metadata{
		Name:  dest,
		Type:  fs.Type_File,
		Perms: fmeta.Perms,
		Size:  fmeta.Size,
		Mtime: fmeta.Mtime.Truncate(time.Second),
	}
	body := &exactReader{r: file, remaining: meta.Size, path: local}
	if fmeta.Type != fs.Type_File {
		// Pipes and devices don't know their size until they've been read dry.
		content, err := io.ReadAll(file)
		if err != nil {
			return fsError(fs.NormalizeIOError(err), "cannot read %s", local)
		}
		meta.Size = int64(len(content))
		body = &exactReader{r: bytes.NewReader(content), remaining: meta.Size, path: local}
	}
	if err := w.sink.WriteFile(meta, body); err != nil {
		if body.err != nil {
			return body.err
		}
		return Errorf(ErrSink, "cannot write file %s: %s", dest, err)
	}
	return nil
}

/*
	Hands a sink exactly 'remaining' bytes of a file, and remembers any read
	failure, so it can be told apart from the sink failing on its own.
*/
type exactReader struct {
	r         io.Reader
	remaining int64
	path      fs.RelPath
	err       error
}

func (e *exactReader) Read(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	if e.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > e.remaining {
		p = p[:e.remaining]
	}
	n, err := e.r.Read(p)
	e.remaining -= int64(n)
	switch {
	case err == io.EOF && e.remaining > 0:
		e.err = Errorf(ErrIO, "cannot read %s: file shrank while being archived", e.path)
		return n, e.err
	case err != nil && err != io.EOF:
		e.err = fsError(fs.NormalizeIOError(err), "cannot read %s", e.path)
		return n, e.err
	}
	return n, nil
}
