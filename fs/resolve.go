package fs

import (
	"strings"

	. "github.com/warpfork/go-errcat"
)

// Reads a single symlink without traversing it.
// 'path' must already have its parents resolved.
type ReadlinkFunc func(path RelPath) (target string, isLink bool, err error)

/*
	Resolve a symlink's target string, as found at 'link', to a path.

	Absolute targets begin at the filesystem base; relative targets begin at
	the directory containing the link.  Segments are walked physically:
	a segment that is itself a symlink is expanded before any following
	'..' is applied, the same way the kernel does it.
	The final segment is *not* followed, and need not exist.

	If some intermediate segment does not exist (or isn't a dir), resolution stops
	there; the remaining name segments are appended as-is (dropping any '..'),
	so the result names something which certainly doesn't exist either.
	That's for the caller to discover.

	Returns ErrRecursion if intermediate symlinks loop.
*/
func ResolveLinkTarget(readlink ReadlinkFunc, link RelPath, target string) (RelPath, error) {
	return resolveTarget(readlink, link, target, false, map[RelPath]struct{}{})
}

/*
	Resolve every symlink among the parent segments of 'path', leaving the last alone.
	Missing parents are not an error; see ResolveLinkTarget.
*/
func ResolveParentSegments(readlink ReadlinkFunc, path RelPath) (RelPath, error) {
	if path.GoesUp() {
		return path, Errorf(ErrBreakout, "fs: invalid path %q: must not depart basepath", path)
	}
	return resolveSegments(readlink, RelPath{}, strings.Split(path.Bare(), "/"), false, map[RelPath]struct{}{})
}

func resolveTarget(readlink ReadlinkFunc, link RelPath, target string, resolveLast bool, seen map[RelPath]struct{}) (RelPath, error) {
	start := link.Dir()
	if strings.HasPrefix(target, "/") {
		start = RelPath{}
	}
	return resolveSegments(readlink, start, strings.Split(target, "/"), resolveLast, seen)
}

func resolveSegments(readlink ReadlinkFunc, start RelPath, segments []string, resolveLast bool, seen map[RelPath]struct{}) (RelPath, error) {
	// Find the last segment that names something; trailing slashes and dots don't.
	iLast := -1
	for i, s := range segments {
		if s != "" && s != "." {
			iLast = i
		}
	}
	path := start
	for i, s := range segments {
		switch s {
		case "", ".":
			continue
		case "..":
			// Excessive up segments aren't an error; they simply no-op when already at root.
			path = path.Dir()
			continue
		}
		path = path.Join(RelPath{s, -1})
		if i == iLast && !resolveLast {
			return path, nil
		}
		morelink, isLink, err := readlink(path)
		if err != nil {
			switch Category(err) {
			case ErrNotExists, ErrNotDir:
				for _, rest := range segments[i+1:] {
					switch rest {
					case "", ".", "..":
						continue
					}
					path = path.Join(RelPath{rest, -1})
				}
				return path, nil
			default:
				return path, err
			}
		}
		if !isLink {
			continue
		}
		if _, isSeen := seen[path]; isSeen {
			return path, Errorf(ErrRecursion, "cyclic symlinks detected at %q", path)
		}
		seen[path] = struct{}{}
		linkPath := path
		path, err = resolveTarget(readlink, linkPath, morelink, true, seen)
		delete(seen, linkPath)
		if err != nil {
			return path, err
		}
	}
	return path, nil
}
