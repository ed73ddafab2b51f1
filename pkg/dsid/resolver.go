package dsid

import (
	"path"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidName is returned for any identity field, file name or location
// that does not satisfy the grammar. It is permanent: retrying with the same
// input fails the same way.
var ErrInvalidName = errors.New("invalid name")

// Resolver maps identities to locations. It never touches the filesystem.
type Resolver struct {
	grammar Grammar
}

func NewResolver(g Grammar) *Resolver {
	if g.Name == nil {
		g.Name = NamePattern
	}

	if g.Investigation == nil {
		g.Investigation = DefaultInvestigationPattern
	}

	if g.Visit == nil {
		g.Visit = DefaultVisitPattern
	}

	return &Resolver{grammar: g}
}

// CheckName validates a single path element such as a file name.
func (r *Resolver) CheckName(name string) error {
	if !r.grammar.Name.MatchString(name) {
		return errors.Wrapf(ErrInvalidName, "%q", name)
	}

	return nil
}

// Resolve returns the location of the dataset directory for id. The result is
// facility/cycle/investigation/visit/data/dataset where '/' inside the
// investigation and visit fields has been replaced by '_'.
func (r *Resolver) Resolve(id Identity) (Location, error) {
	if err := r.CheckName(id.Facility); err != nil {
		return "", errors.Wrap(err, "facility")
	}

	cycle, err := r.cycle(id.Facility, id.Investigation)
	if err != nil {
		return "", err
	}

	if err := r.checkSubstituted(id.Visit, r.grammar.Visit); err != nil {
		return "", errors.Wrap(err, "visit")
	}

	if err := r.CheckName(id.Dataset); err != nil {
		return "", errors.Wrap(err, "dataset")
	}

	return Location(path.Join(id.Facility, cycle, substitute(id.Investigation),
		substitute(id.Visit), DataDirName, id.Dataset)), nil
}

// ResolveFile returns the location of a named file inside the dataset.
func (r *Resolver) ResolveFile(id Identity, name string) (string, error) {
	if err := r.CheckName(name); err != nil {
		return "", errors.Wrap(err, "file")
	}

	loc, err := r.Resolve(id)
	if err != nil {
		return "", err
	}

	return loc.Join(name), nil
}

// IdentityFromPath is the inverse of Resolve. rel must have exactly
// DatasetDepth slash separated elements. The elements are not validated,
// the scanner uses this on whatever it finds in the tree.
func IdentityFromPath(rel string) (Identity, error) {
	parts := strings.Split(rel, "/")
	if len(parts) != DatasetDepth {
		return Identity{}, errors.Wrapf(ErrInvalidName, "%q is not a dataset path", rel)
	}

	return Identity{
		Facility:      parts[0],
		Investigation: unsubstitute(parts[2]),
		Visit:         unsubstitute(parts[3]),
		Dataset:       parts[5],
	}, nil
}

// ParseLocation validates the location of a file stored inside a dataset and
// splits it into the dataset identity and the file name. The location must be
// exactly what ResolveFile would produce for that identity.
func (r *Resolver) ParseLocation(location string) (Identity, string, error) {
	if location == "" || strings.HasPrefix(location, "/") || path.Clean(location) != location {
		return Identity{}, "", errors.Wrapf(ErrInvalidName, "location %q", location)
	}

	dir, name := path.Split(location)
	if err := r.CheckName(name); err != nil {
		return Identity{}, "", err
	}

	id, err := IdentityFromPath(strings.TrimSuffix(dir, "/"))
	if err != nil {
		return Identity{}, "", err
	}

	resolved, err := r.ResolveFile(id, name)
	if err != nil {
		return Identity{}, "", err
	}

	if resolved != location {
		return Identity{}, "", errors.Wrapf(ErrInvalidName, "location %q is not canonical", location)
	}

	return id, name, nil
}

func (r *Resolver) cycle(facility, investigation string) (string, error) {
	pattern := r.grammar.investigationPattern(facility)
	if err := r.checkSubstituted(investigation, pattern); err != nil {
		return "", errors.Wrap(err, "investigation")
	}

	m := pattern.FindStringSubmatch(investigation)
	if len(m) < 2 {
		return DefaultCycle, nil
	}

	if err := r.CheckName(m[1]); err != nil {
		return "", errors.Wrap(err, "cycle")
	}

	return m[1], nil
}

// checkSubstituted validates a field whose '/' characters are replaced on the
// way to the filesystem. The replacement character itself is refused so two
// different fields can never map to the same path element.
func (r *Resolver) checkSubstituted(value string, pattern *regexp.Regexp) error {
	switch {
	case value == "", !pattern.MatchString(value):
		return errors.Wrapf(ErrInvalidName, "%q", value)
	case strings.ContainsRune(value, substituteChar):
		return errors.Wrapf(ErrInvalidName, "%q contains %q", value, substituteChar)
	}

	substituted := substitute(value)
	if substituted == "." || substituted == ".." || strings.HasPrefix(substituted, ".") {
		return errors.Wrapf(ErrInvalidName, "%q", value)
	}

	return nil
}

func substitute(s string) string {
	return strings.ReplaceAll(s, "/", string(substituteChar))
}

func unsubstitute(s string) string {
	return strings.ReplaceAll(s, string(substituteChar), "/")
}
