package fs

import (
	"sort"
)

type WalkFunc func(filenode *FilewalkNode) error

/*
	Walks a filesystem, starting at 'root'.

	This is much like the standard library's `path/filepath.Walk`,
	except it supports both pre- and post-order visits,
	and uses fs.RelPath (of course) to normalize path names.

	Each node's `Path` is relative to 'root': the root itself is always `./`
	(or `.` if it's a file), so `root.Join(node.Path)` is the node's full path
	within the FS.  `Info.Name` holds that full path already.

	Each node is lstat'd immediately before its pre-visit, not in batches with
	its siblings; a node whose lstat fails is still visited, with `Err` set,
	and the pre-visit func decides whether that's fatal.
	Post-visits happen only for nodes whose pre-visit returned nil.

	Symlinks are not followed.

	Siblings are visited in sorted order by name (bytewise).
*/
func Walk(afs FS, root RelPath, preVisit WalkFunc, postVisit WalkFunc) error {
	return walk(afs, root, RelPath{}, preVisit, postVisit)
}

type FilewalkNode struct {
	Path RelPath // relative to the walk root
	Info *Metadata
	Err  error
}

func walk(afs FS, root RelPath, path RelPath, preVisit WalkFunc, postVisit WalkFunc) error {
	filenode := &FilewalkNode{Path: path}
	filenode.Info, filenode.Err = afs.LStat(root.Join(path))
	if preVisit != nil {
		if err := preVisit(filenode); err != nil {
			return err
		}
	}
	if filenode.Err == nil && filenode.Info.Type == Type_Dir {
		names, err := afs.ReadDirNames(root.Join(path))
		if err != nil {
			return err
		}
		sort.Strings(names)
		for _, name := range names {
			if err := walk(afs, root, path.Join(RelPath{name, -1}), preVisit, postVisit); err != nil {
				return err
			}
		}
	}
	if postVisit != nil {
		return postVisit(filenode)
	}
	return nil
}
