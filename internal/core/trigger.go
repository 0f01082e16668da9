package core

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/mod/semver"
)

// Matches reports whether ev starts a run of this workflow. Tag pushes are
// matched against tag patterns; branch pushes only against branch patterns.
// Deletions never match.
func (w *Workflow) Matches(ev Event) bool {
	if ev.Deleted {
		return false
	}
	if tag := ev.Tag(); tag != "" {
		return matchAny(w.On.Push.Tags, tag)
	}
	if branch := ev.Branch(); branch != "" {
		return matchAny(w.On.Push.Branches, branch)
	}
	return false
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		ok, err := doublestar.Match(p, name)
		if err == nil && ok {
			return true
		}
	}
	return false
}

func validPattern(p string) bool {
	return p != "" && doublestar.ValidatePattern(p)
}

// IsVersionTag reports whether tag looks like a semantic version
// ("v1.2.3" or "1.2.3").
func IsVersionTag(tag string) bool {
	return semver.IsValid(canonicalTag(tag))
}

// ReleaseVersion strips a leading "v" from version tags. Other tags are
// returned unchanged.
func ReleaseVersion(tag string) string {
	if IsVersionTag(tag) {
		return strings.TrimPrefix(tag, "v")
	}
	return tag
}

func canonicalTag(tag string) string {
	if strings.HasPrefix(tag, "v") {
		return tag
	}
	return "v" + tag
}
