// Package version classifies image tags and selects the tag a human would
// call "the version" from a set of aliases pointing at the same digest.
package version

import "strings"

// floatingTags are tags whose meaning changes over time. They are never
// acceptable as a canonical version, either as a tag or as the value of a
// version label.
var floatingTags = map[string]bool{
	"latest":   true,
	"stable":   true,
	"mainline": true,
	"nightly":  true,
	"edge":     true,
	"main":     true,
	"master":   true,
	"develop":  true,
	"dev":      true,
	"rolling":  true,
	// architecture tags published as aliases on multi-arch repositories
	"amd64": true,
	"arm64": true,
	"armhf": true,
	"armv7": true,
	"i386":  true,
}

// knownPrefixes are ref-path prefixes that some publishers leak into tags
// and version labels.
var knownPrefixes = []string{
	"refs/tags/",
	"release-",
}

// knownSuffixes are OS-codename suffixes that carry no version information.
var knownSuffixes = []string{
	"-bookworm",
	"-bullseye",
	"-buster",
	"-stretch",
	"-trixie",
	"-noble",
	"-jammy",
	"-focal",
	"-bionic",
}

// IsFloating reports whether a tag is a known non-version token.
func IsFloating(tag string) bool {
	return floatingTags[tag]
}

// StripKnownPrefix removes a recognized ref-path prefix from a tag.
// The tag is returned unchanged when no prefix matches or when stripping
// would leave an empty string.
func StripKnownPrefix(tag string) string {
	for _, prefix := range knownPrefixes {
		if strings.HasPrefix(tag, prefix) {
			stripped := strings.TrimPrefix(tag, prefix)
			if stripped == "" {
				return tag
			}
			return stripped
		}
	}
	return tag
}

// StripKnownSuffix removes a recognized OS-codename suffix from a tag.
// The tag is returned unchanged when no suffix matches or when stripping
// would leave an empty string.
func StripKnownSuffix(tag string) string {
	for _, suffix := range knownSuffixes {
		if strings.HasSuffix(tag, suffix) {
			stripped := strings.TrimSuffix(tag, suffix)
			if stripped == "" {
				return tag
			}
			return stripped
		}
	}
	return tag
}

// Normalize applies both prefix and suffix stripping.
func Normalize(tag string) string {
	return StripKnownSuffix(StripKnownPrefix(tag))
}
