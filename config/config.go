/*
	Helpers for loading contextual config.

	Config for flattar means "things that are the host machine operator's concerns":
	defaults a person sets once in their environment, as opposed to parameters
	given on each invocation.  Only the CLI consults these; the library never does.
*/
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/polydawn/flattar/fs"
)

/*
	Return whether verbose tracing is on by default.

	The default is off; the `FLATTAR_VERBOSE` environment variable turns it on
	with any value strconv.ParseBool accepts as true.
	Unparsable values count as off.
*/
func GetVerbose() bool {
	v, err := strconv.ParseBool(os.Getenv("FLATTAR_VERBOSE"))
	return err == nil && v
}

/*
	Return the directory relative local paths are resolved against.

	The default value is the process working directory;
	this can be overriden by the `FLATTAR_DIR` environment variable.
*/
func GetWorkDir() fs.AbsolutePath {
	pth := os.Getenv("FLATTAR_DIR")
	if pth == "" {
		pth = "."
	}
	pth, err := filepath.Abs(pth)
	if err != nil {
		panic(err)
	}
	return fs.MustAbsolutePath(filepath.ToSlash(pth))
}
