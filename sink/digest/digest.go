/*
	Package digest computes a deterministic digest over the entries of an
	archive session, as they pass through on their way to another sink.

	Every entry is expressed as a cbor (rfc7049) map of its metadata, plus
	the sha384 of its content for files, and fed in emission order into one
	running sha384.  Since the Archiver visits siblings in sorted order,
	two sessions over an unchanged tree produce the same digest, regardless
	of the archive format the entries end up in.

	The serial structure per entry is:

		{"m": {"n": $name, "t": $type, "p": $perms, "m": $mtimeSec, "mn": $mtimeNsec},
		 "h": $contentHash}

	with "h" present only for files.
*/
package digest

import (
	"crypto/sha512"
	"hash"
	"io"

	"github.com/polydawn/refmt/cbor"
	"github.com/polydawn/refmt/misc"
	"github.com/polydawn/refmt/tok"

	"github.com/polydawn/flattar"
	"github.com/polydawn/flattar/fs"
)

var _ flattar.Sink = &Sink{}

type Sink struct {
	inner  flattar.Sink
	hasher hash.Hash
	count  int
}

// Wrap inner, digesting everything written to it.
// A nil inner just digests, and discards the content.
func New(inner flattar.Sink) *Sink {
	return &Sink{
		inner:  inner,
		hasher: sha512.New384(),
	}
}

func (s *Sink) WriteDirectory(fmeta fs.Metadata) error {
	if s.inner != nil {
		if err := s.inner.WriteDirectory(fmeta); err != nil {
			return err
		}
	}
	s.record(fmeta, nil)
	return nil
}

func (s *Sink) WriteFile(fmeta fs.Metadata, body io.Reader) error {
	contentHasher := sha512.New384()
	if s.inner != nil {
		if err := s.inner.WriteFile(fmeta, io.TeeReader(body, contentHasher)); err != nil {
			return err
		}
	} else if _, err := io.CopyN(contentHasher, body, fmeta.Size); err != nil {
		return err
	}
	s.record(fmeta, contentHasher.Sum(nil))
	return nil
}

func (s *Sink) Close() error {
	if s.inner != nil {
		return s.inner.Close()
	}
	return nil
}

// Base58 rendering of the digest over every entry so far.
func (s *Sink) Digest() string {
	return misc.Base58Encode(s.hasher.Sum(nil))
}

// How many entries have passed through.
func (s *Sink) Count() int {
	return s.count
}

func (s *Sink) record(fmeta fs.Metadata, contentHash []byte) {
	s.count++
	// One encoder per entry: each entry is a complete cbor value of its own.
	enc := cbor.NewEncoder(s.hasher)
	if fmeta.Type == fs.Type_File {
		enc.Step(&tok.Token{Type: tok.TMapOpen, Length: 2})
	} else {
		enc.Step(&tok.Token{Type: tok.TMapOpen, Length: 1})
	}
	enc.Step(&tok.Token{Type: tok.TString, Str: "m"})
	marshalMetadata(enc, fmeta)
	if fmeta.Type == fs.Type_File {
		enc.Step(&tok.Token{Type: tok.TString, Str: "h"})
		enc.Step(&tok.Token{Type: tok.TBytes, Bytes: contentHash})
	}
}

func marshalMetadata(enc *cbor.Encoder, m fs.Metadata) {
	enc.Step(&tok.Token{Type: tok.TMapOpen, Length: 5})
	// Full archive path, not the basename: entries are a flat list here, not a tree.
	enc.Step(&tok.Token{Type: tok.TString, Str: "n"})
	enc.Step(&tok.Token{Type: tok.TString, Str: m.Name.String()})
	enc.Step(&tok.Token{Type: tok.TString, Str: "t"})
	enc.Step(&tok.Token{Type: tok.TString, Str: string(m.Type)})
	enc.Step(&tok.Token{Type: tok.TString, Str: "p"})
	enc.Step(&tok.Token{Type: tok.TInt, Int: int64(m.Perms)})
	// Skipped: size -- the content hash covers it.  Ownership isn't archived at all.
	enc.Step(&tok.Token{Type: tok.TString, Str: "m"})
	enc.Step(&tok.Token{Type: tok.TInt, Int: m.Mtime.Unix()})
	enc.Step(&tok.Token{Type: tok.TString, Str: "mn"})
	enc.Step(&tok.Token{Type: tok.TInt, Int: int64(m.Mtime.Nanosecond())})
}
