package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/engine/auth"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/repo"
)

type MachineInput struct {
	Name     string
	Location string
	Status   domain.MachineStatus
}

// MachinePatch holds the fields to change; nil leaves a field as is.
type MachinePatch struct {
	Name     *string
	Location *string
	Status   *domain.MachineStatus
}

type MachineCreated struct {
	Machine    domain.Machine
	LabelSaved bool
}

// CreateMachine registers a machine under the next MACH sequence id and
// writes its QR label. A label failure is logged and does not fail creation.
func (e Engine) CreateMachine(ctx context.Context, p domain.Principal, in MachineInput) (MachineCreated, error) {
	if err := auth.ManageMachines.Check(p); err != nil {
		return MachineCreated{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return MachineCreated{}, required("name")
	}
	if in.Status == "" {
		in.Status = domain.MachineActive
	}
	if !in.Status.Valid() {
		return MachineCreated{}, ValidationError{Field: "status", Reason: "must be one of active, inactive, maintenance"}
	}

	var (
		m   domain.Machine
		err error
	)
	for attempt := 1; ; attempt++ {
		m, err = e.insertMachine(ctx, in)
		if err == nil || !repo.IsUniqueViolation(err) || attempt >= maxIDAttempts {
			break
		}
	}
	if err != nil {
		return MachineCreated{}, err
	}

	res := MachineCreated{Machine: m}
	if e.Labels != nil {
		path, err := e.Labels.WriteLabel(ctx, m.ID)
		if err != nil {
			e.log().Warnw("machine label not saved", "machine_id", m.ID, "error", err)
		} else {
			res.LabelSaved = true
			e.log().Debugw("machine label saved", "machine_id", m.ID, "path", path)
		}
	}
	return res, nil
}

func (e Engine) insertMachine(ctx context.Context, in MachineInput) (domain.Machine, error) {
	var m domain.Machine
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := e.Repo.MachineIDs(ctx, tx)
		if err != nil {
			return err
		}
		id, err := MachineSequence.Allocate(ctx, existing, func(ctx context.Context, candidate string) (bool, error) {
			return e.Repo.MachineExists(ctx, tx, candidate)
		})
		if err != nil {
			return err
		}
		m = domain.Machine{
			ID:        id,
			Name:      in.Name,
			Location:  strings.TrimSpace(in.Location),
			Status:    in.Status,
			CreatedAt: e.now(),
		}
		return e.Repo.InsertMachine(ctx, tx, m)
	})
	if err != nil {
		return domain.Machine{}, err
	}
	return e.Repo.GetMachine(ctx, m.ID)
}

func (e Engine) UpdateMachine(ctx context.Context, p domain.Principal, id string, patch MachinePatch) (domain.Machine, error) {
	if err := auth.ManageMachines.Check(p); err != nil {
		return domain.Machine{}, err
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		m, err := e.Repo.GetMachineTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return required("name")
			}
			m.Name = name
		}
		if patch.Location != nil {
			m.Location = strings.TrimSpace(*patch.Location)
		}
		if patch.Status != nil {
			if !patch.Status.Valid() {
				return ValidationError{Field: "status", Reason: "must be one of active, inactive, maintenance"}
			}
			m.Status = *patch.Status
		}
		return e.Repo.UpdateMachine(ctx, tx, m)
	})
	if err != nil {
		return domain.Machine{}, err
	}
	return e.Repo.GetMachine(ctx, id)
}

// DeleteMachine removes the machine. Its issues remain and keep the dangling reference.
func (e Engine) DeleteMachine(ctx context.Context, p domain.Principal, id string) error {
	if err := auth.DeleteMachine.Check(p); err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		return e.Repo.DeleteMachine(ctx, tx, id)
	})
}
