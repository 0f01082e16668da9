package core

import "testing"

func TestMatches(t *testing.T) {
	wf := mustDefault(t)
	cases := []struct {
		name string
		ev   Event
		want bool
	}{
		{"semver tag", Event{Ref: "refs/tags/v1.2.3", Commit: "a"}, true},
		{"nightly tag", Event{Ref: "refs/tags/nightly-2024-01-01", Commit: "a"}, true},
		{"nested tag", Event{Ref: "refs/tags/release/2024/1", Commit: "a"}, true},
		{"branch", Event{Ref: "refs/heads/main", Commit: "a"}, false},
		{"tag deletion", Event{Ref: "refs/tags/v1.2.3", Deleted: true}, false},
		{"pull ref", Event{Ref: "refs/pull/1/head", Commit: "a"}, false},
		{"empty tag", Event{Ref: "refs/tags/", Commit: "a"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := wf.Matches(tc.ev); got != tc.want {
				t.Errorf("Matches(%s) = %v, want %v", tc.ev.Ref, got, tc.want)
			}
		})
	}
}

func TestMatchesNarrowPatterns(t *testing.T) {
	wf := &Workflow{On: Trigger{Push: PushTrigger{Tags: []string{"v*"}, Branches: []string{"release/**"}}}}
	if !wf.Matches(Event{Ref: "refs/tags/v1.0.0", Commit: "a"}) {
		t.Error("v* should match v1.0.0")
	}
	if wf.Matches(Event{Ref: "refs/tags/nightly", Commit: "a"}) {
		t.Error("v* should not match nightly")
	}
	if !wf.Matches(Event{Ref: "refs/heads/release/1.x", Commit: "a"}) {
		t.Error("branch pattern should match")
	}
	if wf.Matches(Event{Ref: "refs/heads/main", Commit: "a"}) {
		t.Error("main is not a release branch")
	}
}

func TestReleaseVersion(t *testing.T) {
	cases := map[string]string{
		"v1.2.3":             "1.2.3",
		"1.2.3":              "1.2.3",
		"v2.0.0-rc.1":        "2.0.0-rc.1",
		"nightly-2024-01-01": "nightly-2024-01-01",
	}
	for tag, want := range cases {
		if got := ReleaseVersion(tag); got != want {
			t.Errorf("ReleaseVersion(%q) = %q, want %q", tag, got, want)
		}
	}
	if IsVersionTag("nightly") {
		t.Error("nightly is not a version")
	}
}
