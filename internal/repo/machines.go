package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
)

const machineColumns = `machine_id,name,COALESCE(location,''),status,created_at`

func scanMachine(row rowScanner) (domain.Machine, error) {
	var (
		m       domain.Machine
		created string
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Location, &m.Status, &created); err != nil {
		return domain.Machine{}, translate(err)
	}
	t, err := parseTime(created)
	if err != nil {
		return domain.Machine{}, err
	}
	m.CreatedAt = t
	return m, nil
}

func (r Repo) InsertMachine(ctx context.Context, tx *sql.Tx, m domain.Machine) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO machines(machine_id,name,location,status,created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.Name, nullable(m.Location), string(m.Status), FormatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert machine: %w", translate(err))
	}
	return nil
}

func (r Repo) GetMachine(ctx context.Context, id string) (domain.Machine, error) {
	return r.GetMachineTx(ctx, nil, id)
}

func (r Repo) GetMachineTx(ctx context.Context, tx *sql.Tx, id string) (domain.Machine, error) {
	return scanMachine(r.q(tx).QueryRowContext(ctx, `SELECT `+machineColumns+` FROM machines WHERE machine_id=?`, id))
}

func (r Repo) ListMachines(ctx context.Context) ([]domain.Machine, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+machineColumns+` FROM machines ORDER BY machine_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// MachineIDs returns every stored machine id, used for sequence allocation.
func (r Repo) MachineIDs(ctx context.Context, tx *sql.Tx) ([]string, error) {
	return r.ids(ctx, tx, `SELECT machine_id FROM machines`)
}

func (r Repo) MachineExists(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM machines WHERE machine_id=?`, id).Scan(&n)
	return n > 0, err
}

func (r Repo) UpdateMachine(ctx context.Context, tx *sql.Tx, m domain.Machine) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE machines SET name=?,location=?,status=? WHERE machine_id=?`,
		m.Name, nullable(m.Location), string(m.Status), m.ID)
	if err != nil {
		return fmt.Errorf("update machine: %w", translate(err))
	}
	return affectedOrNotFound(res)
}

func (r Repo) DeleteMachine(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM machines WHERE machine_id=?`, id)
	if err != nil {
		return fmt.Errorf("delete machine: %w", translate(err))
	}
	return affectedOrNotFound(res)
}

func (r Repo) ids(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}
