package core

import (
	"errors"
	"testing"
)

func TestEventRefs(t *testing.T) {
	ev := Event{Ref: "refs/tags/v1.2.3", Commit: "abc"}
	if ev.Tag() != "v1.2.3" || ev.Branch() != "" || !ev.IsTagPush() {
		t.Errorf("unexpected tag parsing: %q %q", ev.Tag(), ev.Branch())
	}
	br := Event{Ref: "refs/heads/main", Commit: "abc"}
	if br.Tag() != "" || br.Branch() != "main" || br.IsTagPush() {
		t.Errorf("unexpected branch parsing")
	}
}

func TestEventKey(t *testing.T) {
	ev := Event{Ref: "refs/tags/v1", Commit: "abc"}
	if ev.Key() != "refs/tags/v1@abc" {
		t.Errorf("unexpected key %q", ev.Key())
	}
	ev.DeliveryID = "d-1"
	if ev.Key() != "d-1" {
		t.Errorf("delivery id should win")
	}
}

func TestEventValidate(t *testing.T) {
	if err := (Event{}).Validate(); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent, got %v", err)
	}
	if err := (Event{Ref: "refs/tags/v1"}).Validate(); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("missing commit should be invalid")
	}
	if err := (Event{Ref: "refs/tags/v1", Deleted: true}).Validate(); err != nil {
		t.Errorf("deletions carry no commit: %v", err)
	}
}

func TestNormalizeRef(t *testing.T) {
	if NormalizeRef("v1.0.0") != "refs/tags/v1.0.0" {
		t.Error("bare names are tags")
	}
	if NormalizeRef("refs/heads/main") != "refs/heads/main" {
		t.Error("full refs pass through")
	}
}
