package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	tagRefPrefix    = "refs/tags/"
	branchRefPrefix = "refs/heads/"
)

// Event is a repository push notification
type Event struct {
	Ref        string    `json:"ref"`    // full ref, e.g. refs/tags/v1.2.3
	Commit     string    `json:"commit"` // sha the ref points at
	Repository string    `json:"repository"`
	DeliveryID string    `json:"delivery_id,omitempty"`
	Deleted    bool      `json:"deleted,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Tag returns the tag name for tag refs, "" otherwise.
func (e Event) Tag() string {
	if !strings.HasPrefix(e.Ref, tagRefPrefix) {
		return ""
	}
	return strings.TrimPrefix(e.Ref, tagRefPrefix)
}

// Branch returns the branch name for branch refs, "" otherwise.
func (e Event) Branch() string {
	if !strings.HasPrefix(e.Ref, branchRefPrefix) {
		return ""
	}
	return strings.TrimPrefix(e.Ref, branchRefPrefix)
}

// IsTagPush reports a tag being created or moved (not deleted).
func (e Event) IsTagPush() bool {
	return e.Tag() != "" && !e.Deleted
}

// Key identifies the event for de-duplication.
func (e Event) Key() string {
	if e.DeliveryID != "" {
		return e.DeliveryID
	}
	return e.Ref + "@" + e.Commit
}

func (e Event) Validate() error {
	if e.Ref == "" {
		return fmt.Errorf("%w: ref is empty", ErrInvalidEvent)
	}
	if !e.Deleted && e.Commit == "" {
		return fmt.Errorf("%w: commit is empty for %s", ErrInvalidEvent, e.Ref)
	}
	return nil
}

// TagEvent builds a tag push event; used by the CLI and tests.
func TagEvent(tag, commit, repository string) Event {
	return Event{
		Ref:        tagRefPrefix + tag,
		Commit:     commit,
		Repository: repository,
		ReceivedAt: time.Now().UTC(),
	}
}

// NormalizeRef accepts "v1.2.3", "refs/tags/v1.2.3" or "refs/heads/main".
// Bare names are taken as tags.
func NormalizeRef(ref string) string {
	if strings.HasPrefix(ref, "refs/") {
		return ref
	}
	return tagRefPrefix + ref
}
