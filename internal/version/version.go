// Package version decides whether a published release should replace the
// installed one.
//
// Release tags are opaque strings. The default Lexical policy compares them
// as plain strings, so "v10.0" sorts before "v2.0". Semantic is available for
// repositories whose tags follow MAJOR[.MINOR[.PATCH]][-PRERELEASE].
package version

import (
	"fmt"
	"regexp"
	"strconv"
)

var versionRegex = regexp.MustCompile(`^v?(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:-([a-zA-Z0-9.-]+))?$`)

// Version is a parsed semantic version. Missing minor or patch parts are zero.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
}

// Parse parses tags like "1", "v1.2", "0.8.2" and "0.9.0-rc.1".
func Parse(s string) (*Version, error) {
	matches := versionRegex.FindStringSubmatch(s)
	if matches == nil {
		return nil, fmt.Errorf("invalid version format: %s", s)
	}

	major, _ := strconv.Atoi(matches[1])
	minor, _ := strconv.Atoi(matches[2])
	patch, _ := strconv.Atoi(matches[3])

	return &Version{
		Major:      major,
		Minor:      minor,
		Patch:      patch,
		Prerelease: matches[4],
	}, nil
}

// String returns the normalized MAJOR.MINOR.PATCH form.
func (v *Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// Compare returns 1 if v > other, 0 if equal and -1 if v < other.
// A release without a prerelease suffix is greater than one with it.
func (v *Version) Compare(other *Version) int {
	if c := compareInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := compareInt(v.Patch, other.Patch); c != 0 {
		return c
	}

	switch {
	case v.Prerelease == other.Prerelease:
		return 0
	case v.Prerelease == "":
		return 1
	case other.Prerelease == "":
		return -1
	case v.Prerelease > other.Prerelease:
		return 1
	default:
		return -1
	}
}

func compareInt(a, b int) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}
