package tarsink

import (
	"archive/tar"
	"io"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/flattar"
	"github.com/polydawn/flattar/fs"
)

/*
	Sink writes a tar stream to an io.Writer.

	Close writes the end-of-archive trailer and flushes, but does not close
	the underlying writer; that stays with whoever opened it.
*/
type Sink struct {
	tw     *tar.Writer
	closed bool
}

func New(w io.Writer) *Sink {
	return &Sink{tw: tar.NewWriter(w)}
}

func (s *Sink) WriteDirectory(fmeta fs.Metadata) error {
	return s.writeHeader(&fmeta)
}

func (s *Sink) WriteFile(fmeta fs.Metadata, body io.Reader) error {
	if err := s.writeHeader(&fmeta); err != nil {
		return err
	}
	n, err := io.CopyN(s.tw, body, fmeta.Size)
	switch {
	case err == io.EOF:
		return Errorf(flattar.ErrSink, "tar sink: %s: body ended after %d of %d bytes", fmeta.Name, n, fmeta.Size)
	case err != nil:
		return err
	}
	return nil
}

func (s *Sink) writeHeader(fmeta *fs.Metadata) error {
	if s.closed {
		return Errorf(flattar.ErrSink, "tar sink: write of %s after close", fmeta.Name)
	}
	hdr := &tar.Header{}
	MetadataToTarHdr(fmeta, hdr)
	return s.tw.WriteHeader(hdr)
}

// Close is idempotent; only the first call writes the trailer.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.tw.Close()
}
