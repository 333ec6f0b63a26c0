package tarsink

import (
	"archive/tar"
	"fmt"

	"github.com/polydawn/flattar/fs"
)

// Mutate tar.Header fields to match the given fmeta.
// Ownership is left blank: archives carry mode bits and mtimes only.
func MetadataToTarHdr(fmeta *fs.Metadata, hdr *tar.Header) {
	hdr.Name = fmeta.Name.String()
	if fmeta.Type == fs.Type_Dir {
		hdr.Name += "/"
	}
	hdr.Typeflag = fsTypeToTarType(fmeta.Type)
	hdr.Mode = int64(fmeta.Perms & 07777)
	hdr.Size = fmeta.Size
	if fmeta.Type == fs.Type_Dir {
		hdr.Size = 0
	}
	hdr.ModTime = fmeta.Mtime
}

func fsTypeToTarType(fsType fs.Type) byte {
	switch fsType {
	case fs.Type_File:
		return tar.TypeReg
	case fs.Type_Dir:
		return tar.TypeDir
	default:
		// Everything else was dereferenced or read as plain content before getting here.
		panic(fmt.Errorf("tar sink only writes files and dirs, not fs.Type %q", fsType))
	}
}
