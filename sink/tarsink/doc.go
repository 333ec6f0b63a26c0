/*
	The tar sink writes archive entries into the widely-recognized "tar" format,
	using the standard library's archive/tar for the byte-level encoding.
*/
package tarsink

import (
	"github.com/polydawn/flattar"
)

const PackType = "tar"

var _ flattar.Sink = &Sink{}
