package core

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultWorkflow(t *testing.T) {
	wf := mustDefault(t)
	if len(wf.Steps) != 6 {
		t.Fatalf("expected 6 steps, got %d", len(wf.Steps))
	}
	if wf.On.Push.Tags[0] != "**" {
		t.Errorf("expected ** tag pattern, got %v", wf.On.Push.Tags)
	}
	if len(wf.On.Push.Branches) != 0 {
		t.Errorf("default workflow must not trigger on branches")
	}
	if wf.Permissions["contents"] != "write" || len(wf.Permissions) != 1 {
		t.Errorf("expected only contents: write, got %v", wf.Permissions)
	}
	if wf.Steps[1].With["python-version"] != "3.11" {
		t.Errorf("expected python 3.11")
	}
	if !strings.Contains(wf.Steps[5].Run, "--username __token__") {
		t.Errorf("publish must use the token username: %q", wf.Steps[5].Run)
	}
	phases := []Phase{PhaseProvision, PhaseProvision, PhaseBuild, PhaseBuild, PhaseBuild, PhasePublish}
	for i, p := range phases {
		if got := wf.Steps[i].EffectivePhase(); got != p {
			t.Errorf("step %d: phase %s, want %s", i+1, got, p)
		}
	}
}

func TestParseWorkflowRejects(t *testing.T) {
	cases := map[string]string{
		"no steps": `
name: x
on: {push: {tags: ["**"]}}
steps: []`,
		"no trigger": `
name: x
steps: [{run: echo}]`,
		"run and uses": `
name: x
on: {push: {tags: ["**"]}}
steps: [{run: echo, uses: checkout}]`,
		"unknown action": `
name: x
on: {push: {tags: ["**"]}}
steps: [{uses: actions/cache@v3}]`,
		"undeclared secret": `
name: x
on: {push: {tags: ["**"]}}
steps: [{run: "echo ${{ secrets.NOPE }}"}]`,
		"bad permission": `
name: x
on: {push: {tags: ["**"]}}
permissions: {contents: admin}
steps: [{run: echo}]`,
		"publish before build": `
name: x
on: {push: {tags: ["**"]}}
steps:
  - {run: upload, phase: publish}
  - {run: make}`,
		"bad phase": `
name: x
on: {push: {tags: ["**"]}}
steps: [{run: echo, phase: deploy}]`,
		"bad yaml": `steps: [`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseWorkflow([]byte(doc))
			if !errors.Is(err, ErrInvalidWorkflow) {
				t.Fatalf("expected ErrInvalidWorkflow, got %v", err)
			}
		})
	}
}

func TestLoadWorkflowFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "release.yaml")
	doc := "name: custom\non:\n  push:\n    tags: [\"v*\"]\nsteps:\n  - name: build\n    run: make\n    timeout: 2m\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	wf, err := LoadWorkflow(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if wf.Name != "custom" || wf.Steps[0].Timeout.Minutes() != 2 {
		t.Errorf("unexpected workflow: %+v", wf)
	}

	if _, err := LoadWorkflow(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
