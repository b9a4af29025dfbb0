package catalog

import (
	"sort"
	"strconv"
	"strings"
)

// parseVersion splits a semantic version string into numeric components.
// Non-standard formats sort lowest, matching the vendor's release tooling.
func parseVersion(version string) [3]int {
	version = strings.TrimPrefix(version, "v")

	var parts [3]int
	for i, field := range strings.SplitN(version, ".", 3) {
		n, err := strconv.Atoi(field)
		if err != nil {
			return [3]int{}
		}
		parts[i] = n
	}
	return parts
}

// lessVersion reports whether version a orders before version b.
func lessVersion(a, b string) bool {
	va, vb := parseVersion(a), parseVersion(b)
	for i := 0; i < 3; i++ {
		if va[i] != vb[i] {
			return va[i] < vb[i]
		}
	}
	return false
}

// sortNewestFirst orders infos by version, latest first.
func sortNewestFirst(infos []ArtifactInfo) {
	sort.SliceStable(infos, func(i, j int) bool {
		return lessVersion(infos[j].Version, infos[i].Version)
	})
}

// isPrerelease reports whether a version tag marks a development build.
// Development tags carry a hyphenated suffix and are excluded from listings.
func isPrerelease(tag string) bool {
	return strings.Contains(strings.TrimPrefix(tag, "v"), "-")
}
