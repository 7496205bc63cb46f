package engine

import (
	"errors"
	"fmt"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func required(field string) ValidationError {
	return ValidationError{Field: field, Reason: "is required"}
}

var ErrInvalidTransition = errors.New("invalid status transition")

// ErrAlreadyClosed is the InvalidTransition raised when closing a closed issue.
var ErrAlreadyClosed = fmt.Errorf("issue is already closed: %w", ErrInvalidTransition)

// TransitionError is an illegal lifecycle move.
type TransitionError struct {
	IssueID string
	From    domain.Status
	To      domain.Status
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("issue %s cannot move from %s to %s", e.IssueID, e.From, e.To)
}

func (e TransitionError) Unwrap() error { return ErrInvalidTransition }
