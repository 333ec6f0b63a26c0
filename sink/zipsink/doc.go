/*
	Package zipsink writes archive entries into the ZIP archive format.
	Entries are stored uncompressed; directories are trailing-slash entries.
*/
package zipsink

import (
	"github.com/polydawn/flattar"
)

// PackType names this as the zip packing type.
const PackType = "zip"

var _ flattar.Sink = &Sink{}
