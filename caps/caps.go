/*
	Provides helper functions for checking if we have some functional sets of capabilities.

	Only tests consult these: flattar itself runs with whatever it's given.
*/
package caps

import (
	"os"
	"runtime"

	"github.com/syndtr/gocapability/capability"
)

func Scan() *Fulcrum {
	var err error
	f := &Fulcrum{}
	f.onLinux = runtime.GOOS == "linux"
	f.ourUID = os.Getuid()
	if f.onLinux {
		f.ourCaps, err = capability.NewPid(0) // zero means self
		if err != nil {
			panic(err)
		}
	}
	return f
}

type Fulcrum struct {
	onLinux bool
	ourUID  int
	ourCaps capability.Capabilities // valid on linux; nil on mac (causing completely different logic).
}

// Whether we can read files regardless of their permission bits.
// We sum this up as "have CAP_DAC_OVERRIDE" (or CAP_DAC_READ_SEARCH, which suffices for reading);
// or, on mac, is uid==0.
func (f Fulcrum) CanBypassPermissions() bool {
	if !f.onLinux {
		return f.ourUID == 0
	}
	return f.ourCaps.Get(capability.EFFECTIVE, capability.CAP_DAC_OVERRIDE) ||
		f.ourCaps.Get(capability.EFFECTIVE, capability.CAP_DAC_READ_SEARCH)
}
