package dsid

import (
	"fmt"
	"path"
)

const (
	// DatasetDepth is the number of path elements from a tier base directory
	// down to a dataset directory: facility/cycle/investigation/visit/data/dataset.
	// Must be in sync with Resolver.Resolve.
	DatasetDepth = 6

	// DataDirName is the fixed fifth path element.
	DataDirName = "data"

	// DefaultCycle is used when an investigation pattern has no cycle group.
	DefaultCycle = "000"

	// substituteChar replaces '/' in investigation names and visit ids.
	substituteChar = '_'
)

// Identity identifies a dataset the way the catalog names it. The storage
// engine never invents these values, it only validates and maps them.
type Identity struct {
	Facility      string `json:"facility"`
	Investigation string `json:"investigation"`
	Visit         string `json:"visit"`
	Dataset       string `json:"dataset"`
}

func (id Identity) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", id.Facility, id.Investigation, id.Visit, id.Dataset)
}

// Location is a validated path relative to a tier base directory. It always
// uses '/' as separator regardless of the platform.
type Location string

func (l Location) String() string {
	return string(l)
}

// Join appends elements to the location, eg a file name inside a dataset.
func (l Location) Join(elems ...string) string {
	return path.Join(append([]string{string(l)}, elems...)...)
}

// Parent returns the location of the directory holding l.
func (l Location) Parent() Location {
	return Location(path.Dir(string(l)))
}

// Name returns the last element of the location.
func (l Location) Name() string {
	return path.Base(string(l))
}
