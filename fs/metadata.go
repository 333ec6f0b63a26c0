package fs

import (
	"time"
)

type Metadata struct {
	Name     RelPath   // filename
	Type     Type      // type enum
	Perms    Perms     // permission bits
	Uid      uint32    // user id of owner
	Gid      uint32    // group id of owner
	Size     int64     // length in bytes
	Linkname string    // if symlink: target name of link
	Mtime    time.Time // modified time
}

/*
	FS object type enum.

	Contrast with os.FileMode, which mixes permission bits with type bits;
	we keep them apart.
*/
type Type string

const (
	Type_Invalid    Type = "\000"
	Type_File       Type = "F"
	Type_Dir        Type = "D"
	Type_Symlink    Type = "L"
	Type_NamedPipe  Type = "P"
	Type_Socket     Type = "S"
	Type_Device     Type = "B"
	Type_CharDevice Type = "C"
)

func (t Type) String() string {
	switch t {
	case Type_File:
		return "file"
	case Type_Dir:
		return "dir"
	case Type_Symlink:
		return "symlink"
	case Type_NamedPipe:
		return "fifo"
	case Type_Socket:
		return "socket"
	case Type_Device:
		return "blockdev"
	case Type_CharDevice:
		return "chardev"
	default:
		return "invalid"
	}
}

/*
	Permission bits, in the same layout the tar and posix specs use:
	the low nine bits are rwx for user/group/other, and above those
	sit the setuid, setgid, and sticky bits.
*/
type Perms uint16

const (
	Perms_Setuid Perms = 04000
	Perms_Setgid Perms = 02000
	Perms_Sticky Perms = 01000
)
