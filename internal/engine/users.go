package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/engine/auth"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/repo"
)

type RegisterInput struct {
	UserID    string
	Matricule string
	Name      string
	Email     string
	Password  string
	Service   domain.Service
	Role      domain.Role
}

// UserPatch holds the fields a manager may change; nil leaves a field as is.
type UserPatch struct {
	Name      *string
	Service   *domain.Service
	Role      *domain.Role
	Email     *string
	Matricule *string
	Active    *bool
}

var (
	errInvalidService = ValidationError{Field: "service", Reason: "must be one of maintenance, production"}
	errInvalidRole    = ValidationError{Field: "role", Reason: "must be one of technician, team_leader, supervisor, manager"}
)

// Register creates an active account. The user id defaults to the matricule.
func (e Engine) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.Matricule = strings.TrimSpace(in.Matricule)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.UserID = strings.TrimSpace(in.UserID)
	switch {
	case in.Matricule == "":
		return domain.User{}, required("matricule_number")
	case in.Name == "":
		return domain.User{}, required("name")
	case in.Password == "":
		return domain.User{}, required("password")
	case in.Service == "":
		return domain.User{}, required("service")
	case in.Role == "":
		return domain.User{}, required("role")
	}
	if in.UserID == "" {
		in.UserID = in.Matricule
	}

	err := e.inTx(ctx, func(tx *sql.Tx) error {
		for _, c := range []struct{ column, value string }{
			{"user_id", in.UserID},
			{"matricule_number", in.Matricule},
			{"email", in.Email},
		} {
			if c.value == "" {
				continue
			}
			taken, err := e.Repo.UserFieldTaken(ctx, tx, c.column, c.value, "")
			if err != nil {
				return err
			}
			if taken {
				return repo.ConflictError{Field: c.column}
			}
		}
		if !in.Service.Valid() {
			return errInvalidService
		}
		if !in.Role.Valid() {
			return errInvalidRole
		}
		hash, err := auth.HashPassword(in.Password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		return e.Repo.InsertUser(ctx, tx, domain.User{
			ID:           in.UserID,
			Matricule:    in.Matricule,
			Name:         in.Name,
			Email:        in.Email,
			Service:      in.Service,
			Role:         in.Role,
			Active:       true,
			CreatedAt:    e.now(),
			PasswordHash: hash,
		})
	})
	if err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, in.UserID)
}

// GetUser returns a user; the email is only shown to its owner.
func (e Engine) GetUser(ctx context.Context, p domain.Principal, id string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if u.ID != p.ID {
		return u.Public(), nil
	}
	return u, nil
}

// ListUsers returns active users without emails.
func (e Engine) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := e.Repo.ListUsers(ctx, repo.UserFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(users))
	for _, u := range users {
		res = append(res, u.Public())
	}
	return res, nil
}

func (e Engine) UpdateUser(ctx context.Context, p domain.Principal, id string, patch UserPatch) (domain.User, error) {
	if err := auth.ManageUsers.Check(p); err != nil {
		return domain.User{}, err
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		u, err := e.Repo.GetUserTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			if strings.TrimSpace(*patch.Name) == "" {
				return required("name")
			}
			u.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Service != nil {
			if !patch.Service.Valid() {
				return errInvalidService
			}
			u.Service = *patch.Service
		}
		if patch.Role != nil {
			if !patch.Role.Valid() {
				return errInvalidRole
			}
			u.Role = *patch.Role
		}
		if patch.Email != nil {
			email := strings.TrimSpace(*patch.Email)
			if email != "" && email != u.Email {
				if taken, err := e.Repo.UserFieldTaken(ctx, tx, "email", email, u.ID); err != nil {
					return err
				} else if taken {
					return repo.ConflictError{Field: "email"}
				}
			}
			u.Email = email
		}
		if patch.Matricule != nil {
			m := strings.TrimSpace(*patch.Matricule)
			if m == "" {
				return required("matricule_number")
			}
			if m != u.Matricule {
				if taken, err := e.Repo.UserFieldTaken(ctx, tx, "matricule_number", m, u.ID); err != nil {
					return err
				} else if taken {
					return repo.ConflictError{Field: "matricule_number"}
				}
			}
			u.Matricule = m
		}
		if patch.Active != nil {
			u.Active = *patch.Active
		}
		return e.Repo.UpdateUser(ctx, tx, u)
	})
	if err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, id)
}

// DeleteUser removes an account that no issue or note references.
func (e Engine) DeleteUser(ctx context.Context, p domain.Principal, id string) error {
	if err := auth.ManageUsers.Check(p); err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetUserTx(ctx, tx, id); err != nil {
			return err
		}
		if id == p.ID {
			return ValidationError{Reason: "cannot delete your own account"}
		}
		referenced, err := e.Repo.UserReferenced(ctx, tx, id)
		if err != nil {
			return err
		}
		if referenced {
			return fmt.Errorf("%w: user %s is referenced by issues or notes; deactivate it instead", repo.ErrConflict, id)
		}
		return e.Repo.DeleteUser(ctx, tx, id)
	})
}

// AdminSeed describes the account created on an empty store.
type AdminSeed struct {
	UserID    string
	Matricule string
	Name      string
	Email     string
	Password  string
}

// EnsureDefaultAdmin creates the seed manager when no users exist.
func (e Engine) EnsureDefaultAdmin(ctx context.Context, seed AdminSeed) (bool, error) {
	n, err := e.Repo.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	_, err = e.Register(ctx, RegisterInput{
		UserID:    seed.UserID,
		Matricule: seed.Matricule,
		Name:      seed.Name,
		Email:     seed.Email,
		Password:  seed.Password,
		Service:   domain.ServiceMaintenance,
		Role:      domain.RoleManager,
	})
	if err != nil {
		return false, err
	}
	e.log().Infow("created default admin", "user_id", seed.UserID, "matricule_number", seed.Matricule)
	return true, nil
}
