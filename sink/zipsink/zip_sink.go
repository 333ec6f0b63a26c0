package zipsink

import (
	"archive/zip"
	"io"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/flattar"
	"github.com/polydawn/flattar/fs"
)

/*
	Sink writes a zip stream to an io.Writer.

	Close writes the central directory, but does not close the underlying writer.
*/
type Sink struct {
	zw     *zip.Writer
	closed bool
}

func New(w io.Writer) *Sink {
	return &Sink{zw: zip.NewWriter(w)}
}

func (s *Sink) WriteDirectory(fmeta fs.Metadata) error {
	_, err := s.createHeader(&fmeta)
	return err
}

func (s *Sink) WriteFile(fmeta fs.Metadata, body io.Reader) error {
	fw, err := s.createHeader(&fmeta)
	if err != nil {
		return err
	}
	n, err := io.CopyN(fw, body, fmeta.Size)
	switch {
	case err == io.EOF:
		return Errorf(flattar.ErrSink, "zip sink: %s: body ended after %d of %d bytes", fmeta.Name, n, fmeta.Size)
	case err != nil:
		return err
	}
	return nil
}

func (s *Sink) createHeader(fmeta *fs.Metadata) (io.Writer, error) {
	if s.closed {
		return nil, Errorf(flattar.ErrSink, "zip sink: write of %s after close", fmeta.Name)
	}
	hdr := &zip.FileHeader{}
	MetadataToZipHdr(fmeta, hdr)
	return s.zw.CreateHeader(hdr)
}

// Close is idempotent; only the first call writes the central directory.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.zw.Close()
}
