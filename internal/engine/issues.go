package engine

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/engine/auth"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/events"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/repo"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

type CreateIssueInput struct {
	MachineID   string
	Description string
	Urgency     domain.Urgency
}

type CloseIssueInput struct {
	Resolution         string
	ProblemDescription string
}

// ListQuery carries raw listing parameters as received from a caller.
type ListQuery struct {
	Status    string // single value or comma separated set
	Urgency   string
	MachineID string
	Date      string // YYYY-MM-DD, ignored when unparseable
	Page      int
	PerPage   int
}

// canView is the single-issue visibility rule. It keys on role, unlike
// listing which keys on service.
func canView(p domain.Principal, is domain.Issue) bool {
	return p.Role != domain.Role(domain.ServiceProduction) || is.ReporterID == p.ID
}

// mayUpdate restricts non-privileged principals to issues assigned to them.
func mayUpdate(p domain.Principal, is domain.Issue) bool {
	return auth.Privileged(p) || is.AssignedTechID == p.ID
}

// summary converts a detail view to the list form carried by events.
func summary(is domain.Issue) domain.Issue {
	n := len(is.Notes)
	is.Notes = nil
	is.NotesCount = &n
	return is
}

// CreateIssue reports a new issue against a machine.
func (e Engine) CreateIssue(ctx context.Context, p domain.Principal, in CreateIssueInput) (domain.Issue, error) {
	if err := auth.CreateIssue.Check(p); err != nil {
		return domain.Issue{}, err
	}
	in.MachineID = strings.TrimSpace(in.MachineID)
	switch {
	case in.MachineID == "":
		return domain.Issue{}, required("machine_id")
	case strings.TrimSpace(in.Description) == "":
		return domain.Issue{}, required("description")
	case !in.Urgency.Valid():
		return domain.Issue{}, ValidationError{Field: "urgency", Reason: "must be one of low, medium, high"}
	}

	var id string
	var err error
	for attempt := 1; ; attempt++ {
		id, err = e.insertIssue(ctx, p, in)
		if err == nil || !repo.IsUniqueViolation(err) || attempt >= maxIDAttempts {
			break
		}
	}
	if err != nil {
		return domain.Issue{}, err
	}
	is, err := e.Repo.GetIssue(ctx, id)
	if err != nil {
		return domain.Issue{}, err
	}
	e.publish(ctx, events.NewIssue, is)
	return is, nil
}

func (e Engine) insertIssue(ctx context.Context, p domain.Principal, in CreateIssueInput) (string, error) {
	var id string
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		ok, err := e.Repo.MachineExists(ctx, tx, in.MachineID)
		if err != nil {
			return err
		}
		if !ok {
			return ValidationError{Field: "machine_id", Reason: fmt.Sprintf("%s does not reference a known machine", in.MachineID)}
		}
		existing, err := e.Repo.IssueIDsWithPrefix(ctx, tx, IssueSequence.Prefix)
		if err != nil {
			return err
		}
		id, err = IssueSequence.Allocate(ctx, existing, func(ctx context.Context, candidate string) (bool, error) {
			return e.Repo.IssueExists(ctx, tx, candidate)
		})
		if err != nil {
			return err
		}
		return e.Repo.InsertIssue(ctx, tx, domain.Issue{
			ID:          id,
			MachineID:   in.MachineID,
			Description: strings.TrimSpace(in.Description),
			Urgency:     in.Urgency,
			Status:      domain.StatusReported,
			ReporterID:  p.ID,
			CreatedAt:   e.now(),
		})
	})
	return id, err
}

// AssignIssue makes the caller the assigned technician of a reported or assigned issue.
func (e Engine) AssignIssue(ctx context.Context, p domain.Principal, issueID string) (domain.Issue, error) {
	if err := auth.AssignIssue.Check(p); err != nil {
		return domain.Issue{}, err
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		is, err := e.Repo.GetIssueTx(ctx, tx, issueID)
		if err != nil {
			return err
		}
		if is.Status != domain.StatusReported && is.Status != domain.StatusAssigned {
			return TransitionError{IssueID: is.ID, From: is.Status, To: domain.StatusAssigned}
		}
		now := e.now()
		is.AssignedTechID = p.ID
		is.Status = domain.StatusAssigned
		is.AcceptedAt = &now
		if err := e.Repo.UpdateIssueState(ctx, tx, is); err != nil {
			return err
		}
		return e.auditNote(ctx, tx, p, is.ID, "Issue accepted and assigned")
	})
	if err != nil {
		return domain.Issue{}, err
	}
	return e.afterMutation(ctx, issueID, events.IssueUpdated)
}

// UpdateStatus sets any of the four statuses directly. It stamps no timestamps
// and does not touch the assignment.
func (e Engine) UpdateStatus(ctx context.Context, p domain.Principal, issueID string, status domain.Status) (domain.Issue, error) {
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		is, err := e.Repo.GetIssueTx(ctx, tx, issueID)
		if err != nil {
			return err
		}
		if p.Service == domain.ServiceProduction {
			return auth.ForbiddenError{Action: "issue.status", Reason: "production users cannot update status"}
		}
		if !mayUpdate(p, is) {
			return auth.ForbiddenError{Action: "issue.status", Reason: "you can only update your assigned issues"}
		}
		if !status.Valid() {
			return ValidationError{Field: "status", Reason: "must be one of reported, assigned, in_progress, closed"}
		}
		is.Status = status
		if err := e.Repo.UpdateIssueState(ctx, tx, is); err != nil {
			return err
		}
		return e.auditNote(ctx, tx, p, is.ID, fmt.Sprintf("Status changed to %s", status))
	})
	if err != nil {
		return domain.Issue{}, err
	}
	return e.afterMutation(ctx, issueID, events.IssueUpdated)
}

// CloseIssue records the resolution and closes a non-closed issue.
func (e Engine) CloseIssue(ctx context.Context, p domain.Principal, issueID string, in CloseIssueInput) (domain.Issue, error) {
	if err := auth.CloseIssue.Check(p); err != nil {
		return domain.Issue{}, err
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		is, err := e.Repo.GetIssueTx(ctx, tx, issueID)
		if err != nil {
			return err
		}
		if is.Status == domain.StatusClosed {
			return ErrAlreadyClosed
		}
		if !mayUpdate(p, is) {
			return auth.ForbiddenError{Action: "issue.close", Reason: "you can only close your assigned issues"}
		}
		resolution := strings.TrimSpace(in.Resolution)
		if resolution == "" {
			return required("resolution")
		}
		now := e.now()
		is.Status = domain.StatusClosed
		is.ClosedAt = &now
		is.Resolution = resolution
		if pd := strings.TrimSpace(in.ProblemDescription); pd != "" {
			is.ProblemDescription = pd
		}
		if err := e.Repo.UpdateIssueState(ctx, tx, is); err != nil {
			return err
		}
		return e.auditNote(ctx, tx, p, is.ID, fmt.Sprintf("Issue closed. Resolution: %s", resolution))
	})
	if err != nil {
		return domain.Issue{}, err
	}
	return e.afterMutation(ctx, issueID, events.IssueClosed)
}

// AddNote appends a user-authored note to an issue the caller can view.
func (e Engine) AddNote(ctx context.Context, p domain.Principal, issueID, text string) (domain.Note, error) {
	var note domain.Note
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		is, err := e.Repo.GetIssueTx(ctx, tx, issueID)
		if err != nil {
			return err
		}
		if !canView(p, is) {
			return auth.ForbiddenError{Action: "issue.note", Reason: "access denied"}
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return required("text")
		}
		id, err := e.Repo.InsertNote(ctx, tx, domain.Note{IssueID: is.ID, AuthorID: p.ID, Text: text, CreatedAt: e.now()})
		if err != nil {
			return err
		}
		note, err = e.Repo.GetNote(ctx, tx, id)
		return err
	})
	if err != nil {
		return domain.Note{}, err
	}
	e.publish(ctx, events.NoteAdded, events.NotePayload{IssueID: issueID, Note: note})
	return note, nil
}

// GetIssue returns an issue with its notes oldest first.
func (e Engine) GetIssue(ctx context.Context, p domain.Principal, issueID string) (domain.Issue, error) {
	is, err := e.issueDetail(ctx, issueID)
	if err != nil {
		return domain.Issue{}, err
	}
	if !canView(p, is) {
		return domain.Issue{}, auth.ForbiddenError{Action: "issue.read", Reason: "access denied"}
	}
	return is, nil
}

// ListIssues returns one page of the issues visible to the caller.
func (e Engine) ListIssues(ctx context.Context, p domain.Principal, q ListQuery) (domain.IssuePage, error) {
	f, err := issueFilter(q.Status, q.Urgency, q.MachineID, q.Date)
	if err != nil {
		return domain.IssuePage{}, err
	}
	if p.Service == domain.ServiceProduction {
		f.ReporterID = p.ID
	}
	page, perPage := q.Page, q.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	f.Limit = perPage
	f.Offset = (page - 1) * perPage
	items, total, err := e.Repo.ListIssues(ctx, f)
	if err != nil {
		return domain.IssuePage{}, err
	}
	if items == nil {
		items = []domain.Issue{}
	}
	pages := int(math.Ceil(float64(total) / float64(perPage)))
	return domain.IssuePage{
		Issues:      items,
		Total:       total,
		Pages:       pages,
		CurrentPage: page,
		PerPage:     perPage,
		HasNext:     page < pages,
		HasPrev:     page > 1,
	}, nil
}

// ExportIssues returns every issue matching the export filters, newest first.
func (e Engine) ExportIssues(ctx context.Context, date, machineID string) ([]domain.Issue, error) {
	f, err := issueFilter("", "", machineID, date)
	if err != nil {
		return nil, err
	}
	items, _, err := e.Repo.ListIssues(ctx, f)
	return items, err
}

func issueFilter(status, urgency, machineID, date string) (repo.IssueFilter, error) {
	var f repo.IssueFilter
	for _, s := range strings.Split(status, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		st := domain.Status(s)
		if !st.Valid() {
			return f, ValidationError{Field: "status", Reason: fmt.Sprintf("has unknown value %q", s)}
		}
		f.Statuses = append(f.Statuses, st)
	}
	if u := strings.TrimSpace(urgency); u != "" {
		if !domain.Urgency(u).Valid() {
			return f, ValidationError{Field: "urgency", Reason: fmt.Sprintf("has unknown value %q", u)}
		}
		f.Urgency = domain.Urgency(u)
	}
	f.MachineID = strings.TrimSpace(machineID)
	if day, err := time.Parse("2006-01-02", strings.TrimSpace(date)); err == nil {
		next := day.AddDate(0, 0, 1)
		f.CreatedFrom, f.CreatedTo = &day, &next
	}
	return f, nil
}

func (e Engine) auditNote(ctx context.Context, tx *sql.Tx, p domain.Principal, issueID, text string) error {
	_, err := e.Repo.InsertNote(ctx, tx, domain.Note{IssueID: issueID, AuthorID: p.ID, Text: text, CreatedAt: e.now()})
	return err
}

func (e Engine) issueDetail(ctx context.Context, issueID string) (domain.Issue, error) {
	is, err := e.Repo.GetIssue(ctx, issueID)
	if err != nil {
		return domain.Issue{}, err
	}
	notes, err := e.Repo.ListNotes(ctx, nil, issueID)
	if err != nil {
		return domain.Issue{}, err
	}
	if notes == nil {
		notes = []domain.Note{}
	}
	is.Notes = notes
	is.NotesCount = nil
	return is, nil
}

// afterMutation reloads the committed issue, publishes it and returns the detail view.
func (e Engine) afterMutation(ctx context.Context, issueID string, t events.Type) (domain.Issue, error) {
	is, err := e.issueDetail(ctx, issueID)
	if err != nil {
		return domain.Issue{}, err
	}
	e.publish(ctx, t, summary(is))
	return is, nil
}
