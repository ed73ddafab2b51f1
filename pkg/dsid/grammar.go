package dsid

import (
	"regexp"
)

var (
	// NamePattern is the grammar for facility names, dataset names and file
	// names: an alphanumeric first character followed by alphanumerics and
	// the safe punctuation "~._+-". It excludes separators, so none of these
	// names can ever escape its directory.
	NamePattern = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z~._+-]*$`)

	// DefaultInvestigationPattern matches proposal numbers like
	// "18201234-ST" or "18201234-ST/PP". The first group is the cycle.
	DefaultInvestigationPattern = regexp.MustCompile(`^(\d{3})\d{5}-[A-Z]+(?:/[A-Z]+)?$`)

	// DefaultVisitPattern matches visit ids like "1.1-P" or "2.0-NP/SP".
	DefaultVisitPattern = regexp.MustCompile(`^\d+\.\d+-[A-Z]+(?:/[A-Z]+)?$`)
)

// Grammar is the set of patterns a Resolver validates identities against.
//
// Investigations holds optional per-facility investigation patterns. A
// facility not listed there uses Investigation. When an investigation
// pattern has a capturing group, the first group is the cycle path element,
// otherwise the cycle is DefaultCycle.
type Grammar struct {
	Name           *regexp.Regexp
	Investigation  *regexp.Regexp
	Investigations map[string]*regexp.Regexp
	Visit          *regexp.Regexp
}

// DefaultGrammar returns the grammar used by the catalog at the time of
// writing. Each call returns a fresh value so callers may extend
// Investigations without affecting anyone else.
func DefaultGrammar() Grammar {
	return Grammar{
		Name:           NamePattern,
		Investigation:  DefaultInvestigationPattern,
		Investigations: make(map[string]*regexp.Regexp),
		Visit:          DefaultVisitPattern,
	}
}

func (g Grammar) investigationPattern(facility string) *regexp.Regexp {
	if p, ok := g.Investigations[facility]; ok && p != nil {
		return p
	}

	return g.Investigation
}
