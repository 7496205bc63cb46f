package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
)

// IssueFilter narrows issue listings. Zero values mean no constraint;
// Limit 0 returns every match.
type IssueFilter struct {
	Statuses    []domain.Status
	Urgency     domain.Urgency
	MachineID   string
	ReporterID  string
	AssigneeID  string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

const issueSelect = `
SELECT i.issue_id, i.machine_id, COALESCE(m.name,''), i.description, i.urgency, i.status,
       i.reporter_id, COALESCE(r.matricule_number,''), COALESCE(r.name,''), COALESCE(r.service,''), COALESCE(r.role,''),
       COALESCE(i.assigned_tech_id,''), COALESCE(a.matricule_number,''), COALESCE(a.name,''), COALESCE(a.service,''), COALESCE(a.role,''),
       i.created_at, i.accepted_at, i.closed_at, COALESCE(i.resolution,''), COALESCE(i.problem_description,''),
       (SELECT COUNT(*) FROM notes n WHERE n.issue_id=i.issue_id)
FROM issues i
LEFT JOIN machines m ON m.machine_id=i.machine_id
LEFT JOIN users r ON r.user_id=i.reporter_id
LEFT JOIN users a ON a.user_id=i.assigned_tech_id`

const issueOrder = `
ORDER BY i.created_at DESC,
         CASE i.urgency WHEN 'high' THEN 1 WHEN 'medium' THEN 2 WHEN 'low' THEN 3 ELSE 4 END,
         i.issue_id DESC`

func scanIssue(row rowScanner) (domain.Issue, error) {
	var (
		is               domain.Issue
		reporter, tech   domain.UserSummary
		created          string
		accepted, closed sql.NullString
		notesCount       int
	)
	err := row.Scan(&is.ID, &is.MachineID, &is.MachineName, &is.Description, &is.Urgency, &is.Status,
		&is.ReporterID, &reporter.Matricule, &reporter.Name, &reporter.Service, &reporter.Role,
		&is.AssignedTechID, &tech.Matricule, &tech.Name, &tech.Service, &tech.Role,
		&created, &accepted, &closed, &is.Resolution, &is.ProblemDescription, &notesCount)
	if err != nil {
		return domain.Issue{}, translate(err)
	}
	if is.CreatedAt, err = parseTime(created); err != nil {
		return domain.Issue{}, err
	}
	if is.AcceptedAt, err = parseNullTime(accepted); err != nil {
		return domain.Issue{}, err
	}
	if is.ClosedAt, err = parseNullTime(closed); err != nil {
		return domain.Issue{}, err
	}
	reporter.ID = is.ReporterID
	is.Reporter = &reporter
	if is.AssignedTechID != "" {
		tech.ID = is.AssignedTechID
		is.AssignedTech = &tech
	}
	is.NotesCount = &notesCount
	return is, nil
}

func (r Repo) InsertIssue(ctx context.Context, tx *sql.Tx, is domain.Issue) error {
	_, err := r.q(tx).ExecContext(ctx, `
INSERT INTO issues(issue_id,machine_id,description,urgency,status,reporter_id,assigned_tech_id,created_at,accepted_at,closed_at,resolution,problem_description)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		is.ID, is.MachineID, is.Description, string(is.Urgency), string(is.Status), is.ReporterID, nullable(is.AssignedTechID),
		FormatTime(is.CreatedAt), nullableTime(is.AcceptedAt), nullableTime(is.ClosedAt), nullable(is.Resolution), nullable(is.ProblemDescription))
	if err != nil {
		return fmt.Errorf("insert issue: %w", translate(err))
	}
	return nil
}

func (r Repo) GetIssue(ctx context.Context, id string) (domain.Issue, error) {
	return r.GetIssueTx(ctx, nil, id)
}

func (r Repo) GetIssueTx(ctx context.Context, tx *sql.Tx, id string) (domain.Issue, error) {
	return scanIssue(r.q(tx).QueryRowContext(ctx, issueSelect+` WHERE i.issue_id=?`, id))
}

// UpdateIssueState persists the mutable lifecycle columns of an issue.
func (r Repo) UpdateIssueState(ctx context.Context, tx *sql.Tx, is domain.Issue) error {
	res, err := r.q(tx).ExecContext(ctx, `
UPDATE issues SET status=?, assigned_tech_id=?, accepted_at=?, closed_at=?, resolution=?, problem_description=?
WHERE issue_id=?`,
		string(is.Status), nullable(is.AssignedTechID), nullableTime(is.AcceptedAt), nullableTime(is.ClosedAt),
		nullable(is.Resolution), nullable(is.ProblemDescription), is.ID)
	if err != nil {
		return fmt.Errorf("update issue: %w", translate(err))
	}
	return affectedOrNotFound(res)
}

// IssueIDsWithPrefix returns ids beginning with prefix, used for sequence allocation.
func (r Repo) IssueIDsWithPrefix(ctx context.Context, tx *sql.Tx, prefix string) ([]string, error) {
	return r.ids(ctx, tx, `SELECT issue_id FROM issues WHERE substr(issue_id,1,?)=?`, len(prefix), prefix)
}

func (r Repo) IssueExists(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE issue_id=?`, id).Scan(&n)
	return n > 0, err
}

func issueWhere(f IssueFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "i.status IN ("+strings.Join(marks, ",")+")")
	}
	if f.Urgency != "" {
		where = append(where, "i.urgency=?")
		args = append(args, string(f.Urgency))
	}
	if f.MachineID != "" {
		where = append(where, "i.machine_id=?")
		args = append(args, f.MachineID)
	}
	if f.ReporterID != "" {
		where = append(where, "i.reporter_id=?")
		args = append(args, f.ReporterID)
	}
	if f.AssigneeID != "" {
		where = append(where, "i.assigned_tech_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.CreatedFrom != nil {
		where = append(where, "i.created_at>=?")
		args = append(args, FormatTime(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		where = append(where, "i.created_at<?")
		args = append(args, FormatTime(*f.CreatedTo))
	}
	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

// ListIssues returns the requested window of matching issues and the total match count.
func (r Repo) ListIssues(ctx context.Context, f IssueFilter) ([]domain.Issue, int, error) {
	where, args := issueWhere(f)
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues i`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}
	query := issueSelect + where + issueOrder
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()
	var res []domain.Issue
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, is)
	}
	return res, total, rows.Err()
}
