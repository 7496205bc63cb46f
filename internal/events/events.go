package events

import (
	"context"
	"errors"
	"time"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
)

// Type names an event on the real-time channel.
type Type string

const (
	NewIssue     Type = "new_issue"
	IssueUpdated Type = "issue_updated"
	IssueClosed  Type = "issue_closed"
	NoteAdded    Type = "note_added"

	Connected  Type = "connected"
	JoinedRoom Type = "joined_room"
	LeftRoom   Type = "left_room"
)

// Lifecycle lists the event types emitted by issue mutations.
var Lifecycle = []Type{NewIssue, IssueUpdated, IssueClosed, NoteAdded}

// IsLifecycle reports whether name is one of the Lifecycle types.
func IsLifecycle(name string) bool {
	for _, t := range Lifecycle {
		if string(t) == name {
			return true
		}
	}
	return false
}

// Event is one message pushed to observers. An empty Room means every connection.
type Event struct {
	Type Type      `json:"event"`
	Room string    `json:"room,omitempty"`
	Data any       `json:"data"`
	TS   time.Time `json:"ts"`
}

// NotePayload is the data of a note_added event.
type NotePayload struct {
	IssueID string      `json:"issue_id"`
	Note    domain.Note `json:"note"`
}

// Publisher delivers events. Implementations are best effort; callers log and continue on error.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Fanout publishes to every member and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
