package zipsink

import (
	"archive/zip"
	"os"

	"github.com/polydawn/flattar/fs"
)

// MetadataToZipHdr mutates zip.FileHeader fields to match the given fmeta.
func MetadataToZipHdr(fmeta *fs.Metadata, hdr *zip.FileHeader) {
	hdr.Name = fmeta.Name.Bare()
	if fmeta.Type == fs.Type_Dir {
		if hdr.Name == "" {
			hdr.Name = "."
		}
		hdr.Name += "/"
	}
	hdr.Method = zip.Store
	hdr.UncompressedSize64 = uint64(fmeta.Size)
	hdr.SetMode(fileMode(fmeta))
	hdr.Modified = fmeta.Mtime
}

// ZipHdrToMetadata is the inverse of MetadataToZipHdr, as far as the zip format keeps things.
func ZipHdrToMetadata(hdr *zip.FileHeader, fmeta *fs.Metadata) error {
	name, err := fs.ParseRelPath(hdr.Name)
	if err != nil {
		return err
	}
	fmeta.Name = name
	mode := hdr.Mode()
	fmeta.Type = fs.Type_File
	if mode.IsDir() {
		fmeta.Type = fs.Type_Dir
	}
	fmeta.Perms = fs.Perms(mode.Perm())
	if mode&os.ModeSetuid != 0 {
		fmeta.Perms |= fs.Perms_Setuid
	}
	if mode&os.ModeSetgid != 0 {
		fmeta.Perms |= fs.Perms_Setgid
	}
	if mode&os.ModeSticky != 0 {
		fmeta.Perms |= fs.Perms_Sticky
	}
	fmeta.Size = int64(hdr.UncompressedSize64)
	fmeta.Mtime = hdr.Modified
	return nil
}

func fileMode(fmeta *fs.Metadata) (mode os.FileMode) {
	mode = os.FileMode(fmeta.Perms & 0777)
	if fmeta.Perms&fs.Perms_Setuid != 0 {
		mode |= os.ModeSetuid
	}
	if fmeta.Perms&fs.Perms_Setgid != 0 {
		mode |= os.ModeSetgid
	}
	if fmeta.Perms&fs.Perms_Sticky != 0 {
		mode |= os.ModeSticky
	}
	if fmeta.Type == fs.Type_Dir {
		mode |= os.ModeDir
	}
	return mode
}
