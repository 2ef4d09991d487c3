package persist

import (
	"strconv"
	"strings"
)

const (
	// CurrentVersion is the schema version written by Encode.
	CurrentVersion = "1.1.0"
	// LegacyVersion is assumed for payloads that carry no version.
	LegacyVersion = "1.0.0"
)

// CompareVersions orders dotted numeric versions. Missing components count as
// zero and non-numeric components compare lexically.
func CompareVersions(a, b string) int {
	as := strings.Split(strings.TrimPrefix(strings.TrimSpace(a), "v"), ".")
	bs := strings.Split(strings.TrimPrefix(strings.TrimSpace(b), "v"), ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y string
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
	xi, xerr := atoiDefault(x)
	yi, yerr := atoiDefault(y)
	if xerr == nil && yerr == nil {
		switch {
		case xi < yi:
			return -1
		case xi > yi:
			return 1
		}
		return 0
	}
	return strings.Compare(x, y)
}

func atoiDefault(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
