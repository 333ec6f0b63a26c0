package fs

import (
	"path"
	"strings"

	. "github.com/warpfork/go-errcat"
)

// Meta: yep, these *are not* interchangeable.
// It's expected that if you *can* accept an AbsolutePath,
//  then you should normalize to that ASAP;
// and if you can't, then clearly it's correct to use the RelPath,
//  through and through the whole way.
//
// Both types are always in cleaned form and always use '/' as separator.
// Archive entry names are RelPath too: that's how we know they can't escape.

type RelPath struct {
	path      string
	lastSplit int
}

func newRelPath(p string) RelPath {
	if p == "." || p == "" { // We can't stop people from using the zero value, so, use it.
		return RelPath{}
	}
	return RelPath{p, strings.LastIndexByte(p, '/')}
}

func MustRelPath(p string) RelPath {
	rp, err := ParseRelPath(p)
	if err != nil {
		panic(err)
	}
	return rp
}

func ParseRelPath(p string) (RelPath, error) {
	if p == "" {
		return RelPath{}, Errorf(ErrInvalidPath, "empty path")
	}
	p = path.Clean(p)
	if p[0] == '/' {
		return RelPath{}, Errorf(ErrInvalidPath, "path %q is absolute; a relative path is required", p)
	}
	return newRelPath(p), nil
}

func (p RelPath) String() string {
	if p.path == "" {
		return "."
	} else if p.GoesUp() {
		return p.path
	} else {
		return "./" + p.path
	}
}

// Returns the path without the "./" prefix that String applies.
// The zero value yields the empty string.
func (p RelPath) Bare() string {
	return p.path
}

// True if the path begins with a '..' segment.
func (p RelPath) GoesUp() bool {
	return p.path == ".." || strings.HasPrefix(p.path, "../")
}

func (p RelPath) Dir() RelPath {
	if p.path == "" {
		return p
	} else if p.lastSplit == -1 {
		return RelPath{}
	} else {
		return newRelPath(p.path[0:p.lastSplit])
	}
}

func (p RelPath) Last() string {
	if p.path == "" {
		return "."
	} else if p.lastSplit == -1 {
		return p.path
	} else {
		return p.path[p.lastSplit+1:]
	}
}

func (p RelPath) Join(p2 RelPath) RelPath {
	switch {
	case p2.path == "":
		return p
	case p.path == "":
		return p2
	default:
		return newRelPath(path.Clean(p.path + "/" + p2.path))
	}
}

// Returns every path from the zero path down to and including this one.
func (p RelPath) Split() []RelPath {
	return append(p.SplitParent(), p)
}

// Like Split, but excludes the path itself.
func (p RelPath) SplitParent() []RelPath {
	if p.path == "" {
		return []RelPath{}
	}
	segments := strings.Split(p.path, "/")
	result := make([]RelPath, len(segments))
	result[0] = RelPath{}
	for i := 1; i < len(segments); i++ {
		result[i] = newRelPath(strings.Join(segments[:i], "/"))
	}
	return result
}

// True if p2 is this path or a path beneath it.
func (p RelPath) Contains(p2 RelPath) bool {
	switch {
	case p.path == "":
		return !p2.GoesUp()
	case p2.path == p.path:
		return true
	default:
		return strings.HasPrefix(p2.path, p.path+"/")
	}
}

type AbsolutePath struct {
	path      string
	lastSplit int
}

func newAbsolutePath(p string) AbsolutePath {
	if p == "/" { // We can't stop people from using the zero value, so, use it.
		return AbsolutePath{}
	}
	return AbsolutePath{p, strings.LastIndexByte(p, '/')}
}

func MustAbsolutePath(p string) AbsolutePath {
	ap, err := ParseAbsolutePath(p)
	if err != nil {
		panic(err)
	}
	return ap
}

func ParseAbsolutePath(p string) (AbsolutePath, error) {
	if p == "" {
		return AbsolutePath{}, Errorf(ErrInvalidPath, "empty path")
	}
	p = path.Clean(p)
	if p[0] != '/' {
		return AbsolutePath{}, Errorf(ErrInvalidPath, "path %q is relative; an absolute path is required", p)
	}
	return newAbsolutePath(p), nil
}

func (p AbsolutePath) String() string {
	if p.path == "" {
		return "/"
	}
	return p.path
}

func (p AbsolutePath) Dir() AbsolutePath {
	if p.path == "" {
		return p
	} else if p.lastSplit == 0 {
		return AbsolutePath{}
	} else {
		return newAbsolutePath(p.path[0:p.lastSplit])
	}
}

func (p AbsolutePath) Last() string {
	if p.path == "" {
		return "/"
	} else {
		return p.path[p.lastSplit+1:]
	}
}

func (p AbsolutePath) Join(p2 RelPath) AbsolutePath {
	switch {
	case p2.path == "":
		return p
	default:
		return newAbsolutePath(path.Clean(p.path + "/" + p2.path))
	}
}

// Returns the path of p2 relative to this one.
// The boolean is false if p2 is not this path or beneath it.
func (p AbsolutePath) Rel(p2 AbsolutePath) (RelPath, bool) {
	switch {
	case p.path == p2.path:
		return RelPath{}, true
	case p.path == "":
		return newRelPath(p2.path[1:]), true
	case strings.HasPrefix(p2.path, p.path+"/"):
		return newRelPath(p2.path[len(p.path)+1:]), true
	default:
		return RelPath{}, false
	}
}
