package storage

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveLogLayout(t *testing.T) {
	base := t.TempDir()
	ls := NewLogStorage(base)

	path, err := ls.SaveLog("run-1", 2, "install poetry", "hello")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	want := filepath.Join(base, "run-1", "03_install-poetry.log")
	if path != want {
		t.Errorf("got %s want %s", path, want)
	}
	got, err := ls.ReadLog(path)
	if err != nil || got != "hello" {
		t.Errorf("read back %q, %v", got, err)
	}
}

func TestReadLogOutsideBase(t *testing.T) {
	ls := NewLogStorage(t.TempDir())
	if _, err := ls.ReadLog("/etc/passwd"); err == nil || !strings.Contains(err.Error(), "outside") {
		t.Errorf("expected outside error, got %v", err)
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"set up python":       "set-up-python",
		"actions/checkout@v4": "actions-checkoutv4",
		"$$$":                 "step",
	}
	for in, want := range cases {
		if got := sanitize(in); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
