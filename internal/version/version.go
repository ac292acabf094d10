package version

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrInvalidVersion is returned when a string is not a strict semantic version.
var ErrInvalidVersion = errors.New("invalid semantic version")

// Zero is the 0.0.0 sentinel used when no usable version is available.
var Zero = Version{v: semver.New(0, 0, 0, "", "")}

// Version is an immutable semantic version.
type Version struct {
	v *semver.Version
}

// Parse parses a strict MAJOR.MINOR.PATCH[-PRERELEASE][+BUILD] string.
// On failure it returns Zero together with an error wrapping ErrInvalidVersion.
func Parse(s string) (Version, error) {
	v, err := semver.StrictNewVersion(strings.TrimSpace(s))
	if err != nil {
		return Zero, fmt.Errorf("%w %q: %v", ErrInvalidVersion, s, err)
	}
	return Version{v: v}, nil
}

// MustParse is like Parse but panics on invalid input.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) sv() *semver.Version {
	if v.v == nil {
		return Zero.v
	}
	return v.v
}

func (v Version) Major() uint64      { return v.sv().Major() }
func (v Version) Minor() uint64      { return v.sv().Minor() }
func (v Version) Patch() uint64      { return v.sv().Patch() }
func (v Version) Prerelease() string { return v.sv().Prerelease() }

// String returns the normalized version text.
func (v Version) String() string { return v.sv().String() }

// IsZero reports whether v is the 0.0.0 sentinel.
func (v Version) IsZero() bool { return v.Equal(Zero) }

// Compare returns -1, 0 or 1 under semantic version precedence.
func (v Version) Compare(o Version) int { return v.sv().Compare(o.sv()) }

func (v Version) Equal(o Version) bool       { return v.Compare(o) == 0 }
func (v Version) GreaterThan(o Version) bool { return v.Compare(o) > 0 }

// Max returns the greatest version in vs, or Zero when vs is empty.
func Max(vs []Version) Version {
	best := Zero
	for i, v := range vs {
		if i == 0 || v.GreaterThan(best) {
			best = v
		}
	}
	return best
}

func (v Version) incMajor() Version { n := v.sv().IncMajor(); return Version{v: &n} }
func (v Version) incMinor() Version { n := v.sv().IncMinor(); return Version{v: &n} }

// incPatch always moves to the next patch. semver's IncPatch only strips the
// prerelease of 1.2.3-beta, which would leave the plugin on 1.2.3.
func (v Version) incPatch() Version {
	s := v.sv()
	return Version{v: semver.New(s.Major(), s.Minor(), s.Patch()+1, "", "")}
}
