package codepush

import (
	"strconv"
	"strings"
)

// matchesVersion reports whether a release targeting target applies to a
// client running binary version client. "*" targets every binary.
func matchesVersion(target, client string) bool {
	target = strings.TrimSpace(target)
	if target == "*" {
		return true
	}
	return compareVersions(target, client) == 0
}

// compareVersions compares dotted numeric versions; missing components count
// as zero, so "1.2" equals "1.2.0". Non-numeric components compare as strings.
func compareVersions(a, b string) int {
	as := strings.Split(strings.TrimPrefix(strings.TrimSpace(a), "v"), ".")
	bs := strings.Split(strings.TrimPrefix(strings.TrimSpace(b), "v"), ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		x, y := "0", "0"
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		if c := compareComponent(x, y); c != 0 {
			return c
		}
	}
	return 0
}

func compareComponent(x, y string) int {
	xi, errX := strconv.Atoi(x)
	yi, errY := strconv.Atoi(y)
	if errX == nil && errY == nil {
		switch {
		case xi < yi:
			return -1
		case xi > yi:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(x, y)
}
