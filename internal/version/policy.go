package version

import (
	"fmt"
	"strings"
)

// Policy orders release tags.
type Policy interface {
	// Newer reports whether latest should replace installed.
	Newer(latest, installed string) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(latest, installed string) bool

// Newer calls f.
func (f PolicyFunc) Newer(latest, installed string) bool {
	return f(latest, installed)
}

// Lexical compares tags as plain strings. It is the default policy.
var Lexical Policy = PolicyFunc(func(latest, installed string) bool {
	return latest > installed
})

// Semantic compares tags as semantic versions. When either tag does not
// parse it falls back to Lexical.
var Semantic Policy = PolicyFunc(func(latest, installed string) bool {
	l, err := Parse(latest)
	if err != nil {
		return Lexical.Newer(latest, installed)
	}
	i, err := Parse(installed)
	if err != nil {
		return Lexical.Newer(latest, installed)
	}
	return l.Compare(i) > 0
})

// Policy names accepted by ByName.
const (
	NameLexical  = "lexical"
	NameSemantic = "semver"
)

// Names lists the accepted policy names.
func Names() []string {
	return []string{NameLexical, NameSemantic}
}

// ByName returns the policy registered under name. An empty name selects Lexical.
func ByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameLexical:
		return Lexical, nil
	case NameSemantic, "semantic":
		return Semantic, nil
	default:
		return nil, fmt.Errorf("unknown version comparator: %s (expected one of %s)", name, strings.Join(Names(), ", "))
	}
}

// ShouldUpdate reports whether latest should be installed over installed.
// An empty installed version means nothing usable is installed, so any
// non-empty latest wins.
func ShouldUpdate(p Policy, installed, latest string) bool {
	if latest == "" {
		return false
	}
	if installed == "" {
		return true
	}
	if p == nil {
		p = Lexical
	}
	return p.Newer(latest, installed)
}
