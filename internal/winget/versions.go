package winget

import (
	"sort"

	"github.com/Masterminds/semver/v3"
)

// sortVersionsDescending sorts in place, newest first. Versions that fail
// to parse as semver sort after all parseable ones, in reverse lexical
// order, so a manifest with an unusual version string is never dropped.
func sortVersionsDescending(versions []string) {
	sort.Slice(versions, func(i, j int) bool {
		vi, erri := semver.NewVersion(versions[i])
		vj, errj := semver.NewVersion(versions[j])
		switch {
		case erri == nil && errj == nil:
			return vi.GreaterThan(vj)
		case erri == nil:
			return true
		case errj == nil:
			return false
		default:
			return versions[i] > versions[j]
		}
	})
}
