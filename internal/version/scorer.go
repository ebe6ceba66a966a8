package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// floatingScore is returned by Score for floating tags. CanonicalTag filters
// floating tags before scoring, so this value only matters to callers that
// score tags directly.
const floatingScore = -1000

// versionPrefix returns the part of a tag before the first dash.
func versionPrefix(tag string) string {
	if i := strings.Index(tag, "-"); i >= 0 {
		return tag[:i]
	}
	return tag
}

// tagSuffix returns the part of a tag after the first dash, and whether a
// dash was present at all.
func tagSuffix(tag string) (string, bool) {
	if i := strings.Index(tag, "-"); i >= 0 {
		return tag[i+1:], true
	}
	return "", false
}

// normalizedPrefix strips an optional leading "v" from the version prefix.
func normalizedPrefix(tag string) string {
	return strings.TrimPrefix(versionPrefix(tag), "v")
}

// numericDepth counts purely-numeric dot-separated segments in the
// normalized prefix. "1.2.3" has depth 3, "1.2" depth 2, "8" depth 1.
func numericDepth(tag string) int {
	depth := 0
	for _, segment := range strings.Split(normalizedPrefix(tag), ".") {
		if segment == "" {
			continue
		}
		numeric := true
		for _, r := range segment {
			if r < '0' || r > '9' {
				numeric = false
				break
			}
		}
		if numeric {
			depth++
		}
	}
	return depth
}

// containsDigit reports whether s has at least one ASCII digit.
func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

// Score ranks a tag by how version-like it is:
//
//   - +50 when the pre-dash prefix parses as a strict semantic version
//     (after an optional leading "v")
//   - +10 per purely-numeric dot-separated segment, rewarding deeper
//     precision ("1.2.3" over "1.2" over "1")
//   - +5 when the tag carries a dash suffix at all
//   - +5 more when that suffix contains a digit ("-r3" over "-alpine")
//
// Floating tags score floatingScore and lose against any non-floating tag.
func Score(tag string) int {
	if IsFloating(tag) {
		return floatingScore
	}

	tag = StripKnownPrefix(tag)
	score := 0

	if _, err := semver.StrictNewVersion(normalizedPrefix(tag)); err == nil {
		score += 50
	}

	score += 10 * numericDepth(tag)

	if suffix, ok := tagSuffix(tag); ok {
		score += 5
		if containsDigit(suffix) {
			score += 5
		}
	}

	return score
}

// CanonicalTag selects the most version-like tag from candidates. Floating
// tags are filtered out before scoring and can never win. Ties are broken
// by input order: the earliest-encountered maximal score wins, so the
// result is deterministic for a given input sequence.
//
// The second return value is false when no non-floating candidate remains.
func CanonicalTag(candidates []string) (string, bool) {
	best := ""
	bestScore := 0
	found := false

	for _, tag := range candidates {
		if IsFloating(tag) {
			continue
		}
		score := Score(tag)
		if !found || score > bestScore {
			best = tag
			bestScore = score
			found = true
		}
	}

	return best, found
}
