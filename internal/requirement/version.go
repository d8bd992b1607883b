package requirement

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// pep440Pattern is the public version grammar plus an optional local label.
var pep440Pattern = regexp.MustCompile(`(?i)^v?` +
	`(?:(\d+)!)?` + // epoch
	`(\d+(?:\.\d+)*)` + // release
	`(?:[-_.]?(alpha|a|beta|b|preview|pre|c|rc)[-_.]?(\d+)?)?` +
	`(?:-(\d+)|[-_.]?(post|rev|r)[-_.]?(\d+)?)?` +
	`(?:[-_.]?(dev)[-_.]?(\d+)?)?` +
	`(?:\+([a-z0-9]+(?:[-_.][a-z0-9]+)*))?$`)

// Pre-release phases in ascending order. noPre sorts above all of them and
// devOnly, a bare .devN, below.
const (
	devOnly = iota - 1
	phaseA
	phaseB
	phaseRC
	noPre
)

const absent = -1

// Version is one release of a package, ordered by PEP 440 rules. The raw
// spelling is what gets handed to the installer. A local label (+ubuntu1) is
// kept in the spelling and ignored in ordering.
type Version struct {
	raw     string
	epoch   int
	release []int
	phase   int
	preNum  int
	post    int
	dev     int

	// core holds the first three release segments for wildcard matching.
	core *semver.Version
}

// ParseVersion parses a PEP 440 version string.
func ParseVersion(raw string) (Version, error) {
	raw = strings.TrimSpace(raw)
	m := pep440Pattern.FindStringSubmatch(raw)
	if m == nil {
		return Version{}, fmt.Errorf("version %q is not a valid PEP 440 version", raw)
	}

	v := Version{raw: raw, phase: noPre, post: absent, dev: absent}
	if m[1] != "" {
		v.epoch = atoi(m[1])
	}
	for _, seg := range strings.Split(m[2], ".") {
		v.release = append(v.release, atoi(seg))
	}
	if m[3] != "" {
		v.phase = phaseOf(m[3])
		v.preNum = atoi(m[4])
	}
	switch {
	case m[5] != "":
		v.post = atoi(m[5])
	case m[6] != "":
		v.post = atoi(m[7])
	}
	if m[8] != "" {
		v.dev = atoi(m[9])
		if v.phase == noPre && v.post == absent {
			v.phase = devOnly
		}
	}

	v.core = semver.New(v.segment(0), v.segment(1), v.segment(2), "", "")
	return v, nil
}

// MustParseVersion is ParseVersion for literals; it panics on error.
func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func phaseOf(label string) int {
	switch strings.ToLower(label) {
	case "a", "alpha":
		return phaseA
	case "b", "beta":
		return phaseB
	default:
		return phaseRC
	}
}

// atoi parses a digit run; an empty run is 0 and overflow saturates.
func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return math.MaxInt
	}
	return n
}

// segment returns release segment i, zero-padded.
func (v Version) segment(i int) uint64 {
	if i < len(v.release) {
		return uint64(v.release[i])
	}
	return 0
}

// String returns the version as published.
func (v Version) String() string {
	return v.raw
}

// IsZero reports whether v is the zero Version.
func (v Version) IsZero() bool {
	return v.release == nil
}

// IsPrerelease reports whether v is an alpha, beta, candidate or dev release.
func (v Version) IsPrerelease() bool {
	return !v.IsZero() && (v.phase != noPre || v.dev != absent)
}

// IsPostrelease reports whether v carries a post-release number.
func (v Version) IsPostrelease() bool {
	return v.post != absent
}

// Compare returns -1, 0 or 1. The zero Version sorts below everything.
func (v Version) Compare(o Version) int {
	switch {
	case v.IsZero() && o.IsZero():
		return 0
	case v.IsZero():
		return -1
	case o.IsZero():
		return 1
	}
	if c := cmpInt(v.epoch, o.epoch); c != 0 {
		return c
	}
	if c := v.compareRelease(o); c != 0 {
		return c
	}
	if c := cmpInt(v.phase, o.phase); c != 0 {
		return c
	}
	if v.phase != noPre && v.phase != devOnly {
		if c := cmpInt(v.preNum, o.preNum); c != 0 {
			return c
		}
	}
	if c := cmpInt(v.post, o.post); c != 0 {
		return c
	}
	return cmpInt(devKey(v.dev), devKey(o.dev))
}

// compareRelease compares release segments, padding the shorter with zeros.
func (v Version) compareRelease(o Version) int {
	n := max(len(v.release), len(o.release))
	for i := range n {
		if c := cmpInt(int(v.segment(i)), int(o.segment(i))); c != 0 {
			return c
		}
	}
	return 0
}

// devKey puts a release without .devN above all of its dev releases.
func devKey(dev int) int {
	if dev == absent {
		return math.MaxInt
	}
	return dev
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// Equal reports whether v and o denote the same release.
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.raw), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(b []byte) error {
	parsed, err := ParseVersion(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
