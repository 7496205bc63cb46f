package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
)

const userColumns = `user_id,matricule_number,name,COALESCE(email,''),password_hash,service,role,is_active,created_at`

type UserFilter struct {
	ActiveOnly bool
	Service    domain.Service
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u       domain.User
		active  int
		created string
	)
	if err := row.Scan(&u.ID, &u.Matricule, &u.Name, &u.Email, &u.PasswordHash, &u.Service, &u.Role, &active, &created); err != nil {
		return domain.User{}, translate(err)
	}
	u.Active = active != 0
	t, err := parseTime(created)
	if err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = t
	return u, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(user_id,matricule_number,name,email,password_hash,service,role,is_active,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		u.ID, u.Matricule, u.Name, nullable(u.Email), u.PasswordHash, string(u.Service), string(u.Role), boolInt(u.Active), FormatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert user: %w", translate(err))
	}
	return nil
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return r.GetUserTx(ctx, nil, id)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	return scanUser(r.q(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id=?`, id))
}

func (r Repo) GetUserByMatricule(ctx context.Context, matricule string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE matricule_number=?`, matricule))
}

// UserFieldTaken reports whether another user already holds value in column.
func (r Repo) UserFieldTaken(ctx context.Context, tx *sql.Tx, column, value, exceptID string) (bool, error) {
	switch column {
	case "user_id", "matricule_number", "email":
	default:
		return false, fmt.Errorf("unsupported user column %s", column)
	}
	var n int
	err := r.q(tx).QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM users WHERE %s=? AND user_id<>?`, column), value, exceptID).Scan(&n)
	return n > 0, err
}

func (r Repo) ListUsers(ctx context.Context, f UserFilter) ([]domain.User, error) {
	var (
		where []string
		args  []any
	)
	if f.ActiveOnly {
		where = append(where, "is_active=1")
	}
	if f.Service != "" {
		where = append(where, "service=?")
		args = append(args, string(f.Service))
	}
	query := `SELECT ` + userColumns + ` FROM users`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, user_id"
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) UpdateUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE users SET matricule_number=?,name=?,email=?,service=?,role=?,is_active=? WHERE user_id=?`,
		u.Matricule, u.Name, nullable(u.Email), string(u.Service), string(u.Role), boolInt(u.Active), u.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", translate(err))
	}
	return affectedOrNotFound(res)
}

func (r Repo) DeleteUser(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM users WHERE user_id=?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", translate(err))
	}
	return affectedOrNotFound(res)
}

// UserReferenced reports whether issues or notes point at the user.
func (r Repo) UserReferenced(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `
SELECT (SELECT COUNT(*) FROM issues WHERE reporter_id=? OR assigned_tech_id=?)
     + (SELECT COUNT(*) FROM notes WHERE author_id=?)`, id, id, id).Scan(&n)
	return n > 0, err
}

func (r Repo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
