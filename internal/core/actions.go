package core

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ActionPlan is what a built-in action contributes to a run: the script to
// execute, directories later steps should find on PATH and variables they
// should see.
type ActionPlan struct {
	Script      string
	PathPrepend []string
	Env         map[string]string
}

// ActionContext is what an action may look at when planning.
type ActionContext struct {
	Event     Event
	Workspace string
	With      map[string]string
}

// ActionFunc turns a `uses:` step into a script.
type ActionFunc func(ac ActionContext) (ActionPlan, error)

// ActionRegistry holds the built-in actions by short name.
type ActionRegistry map[string]ActionFunc

// DefaultActions wires up checkout and setup-python.
func DefaultActions() ActionRegistry {
	return ActionRegistry{
		"checkout":     checkoutAction,
		"setup-python": setupPythonAction,
	}
}

// Lookup accepts short names ("checkout") and GitHub-style references
// ("actions/checkout@v4").
func (r ActionRegistry) Lookup(uses string) (ActionFunc, bool) {
	fn, ok := r[actionName(uses)]
	return fn, ok
}

func actionName(uses string) string {
	name := strings.TrimSpace(uses)
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// checkoutAction fetches exactly the triggering commit into the workspace.
func checkoutAction(ac ActionContext) (ActionPlan, error) {
	repo := ac.Event.Repository
	if v := ac.With["repository"]; v != "" {
		repo = v
	}
	if repo == "" {
		return ActionPlan{}, fmt.Errorf("checkout: no repository for %s", ac.Event.Ref)
	}
	rev := ac.Event.Commit
	if rev == "" {
		rev = ac.Event.Ref
	}
	script := strings.Join([]string{
		"git init -q .",
		"git fetch -q --depth 1 " + shellQuote(repo) + " " + shellQuote(rev),
		"git checkout -q FETCH_HEAD",
	}, "\n")
	return ActionPlan{Script: script}, nil
}

var pythonVersion = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// setupPythonAction creates a virtualenv from python<version>, puts it first
// on PATH and exports VIRTUAL_ENV, so later `pip` and `poetry` install into
// it instead of creating their own.
func setupPythonAction(ac ActionContext) (ActionPlan, error) {
	version := ac.With["python-version"]
	if version == "" {
		version = "3.11"
	}
	if !pythonVersion.MatchString(version) {
		return ActionPlan{}, fmt.Errorf("setup-python: bad python-version %q", version)
	}
	interp := "python" + version
	script := strings.Join([]string{
		interp + " --version",
		interp + " -m venv .venv",
	}, "\n")
	venv := filepath.Join(ac.Workspace, ".venv")
	return ActionPlan{
		Script:      script,
		PathPrepend: []string{filepath.Join(venv, "bin")},
		Env:         map[string]string{"VIRTUAL_ENV": venv},
	}, nil
}
