package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
)

const noteSelect = `
SELECT n.id, n.issue_id, n.text, n.author_id, COALESCE(u.matricule_number,''), COALESCE(u.name,''), COALESCE(u.service,''), COALESCE(u.role,''), n.created_at
FROM notes n
LEFT JOIN users u ON u.user_id=n.author_id`

func scanNote(row rowScanner) (domain.Note, error) {
	var (
		n       domain.Note
		author  domain.UserSummary
		created string
	)
	if err := row.Scan(&n.ID, &n.IssueID, &n.Text, &n.AuthorID, &author.Matricule, &author.Name, &author.Service, &author.Role, &created); err != nil {
		return domain.Note{}, translate(err)
	}
	t, err := parseTime(created)
	if err != nil {
		return domain.Note{}, err
	}
	n.CreatedAt = t
	author.ID = n.AuthorID
	n.Author = &author
	return n, nil
}

// InsertNote appends a note and returns its id.
func (r Repo) InsertNote(ctx context.Context, tx *sql.Tx, n domain.Note) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO notes(issue_id,author_id,text,created_at) VALUES (?,?,?,?)`,
		n.IssueID, n.AuthorID, n.Text, FormatTime(n.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert note: %w", translate(err))
	}
	return res.LastInsertId()
}

func (r Repo) GetNote(ctx context.Context, tx *sql.Tx, id int64) (domain.Note, error) {
	return scanNote(r.q(tx).QueryRowContext(ctx, noteSelect+` WHERE n.id=?`, id))
}

// ListNotes returns an issue's notes oldest first.
func (r Repo) ListNotes(ctx context.Context, tx *sql.Tx, issueID string) ([]domain.Note, error) {
	rows, err := r.q(tx).QueryContext(ctx, noteSelect+` WHERE n.issue_id=? ORDER BY n.created_at ASC, n.id ASC`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
