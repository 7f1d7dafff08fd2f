package mcu

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrVersionFormat is returned for strings that are not major.minor[.rev][-tag].
var ErrVersionFormat = errors.New("mcu: invalid version format")

var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?(?:-.*)?$`)

// Version is a firmware or hardware version. Tags are ignored.
type Version struct {
	Major    int
	Minor    int
	Revision int
}

// ParseVersion parses "1.2", "1.2.3" or "1.2.3-tag".
func ParseVersion(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("%w: %q", ErrVersionFormat, s)
	}
	var v Version
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		v.Revision, _ = strconv.Atoi(m[3])
	}
	return v, nil
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmpInt(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpInt(v.Minor, o.Minor)
	default:
		return cmpInt(v.Revision, o.Revision)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Revision)
}
