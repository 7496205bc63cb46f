package auth

import (
	"context"
	"errors"
	"time"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/repo"
)

// UserStore is the slice of the repository identity needs.
type UserStore interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	GetUserByMatricule(ctx context.Context, matricule string) (domain.User, error)
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      domain.User
}

// Service authenticates credentials and resolves bearer tokens to principals.
type Service struct {
	Users  UserStore
	Tokens Issuer
}

// Authenticate checks a matricule/password pair and mints a session token.
func (s Service) Authenticate(ctx context.Context, matricule, password string) (Session, error) {
	u, err := s.Users.GetUserByMatricule(ctx, matricule)
	if errors.Is(err, repo.ErrNotFound) {
		return Session{}, authError(Invalid, "invalid credentials")
	}
	if err != nil {
		return Session{}, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return Session{}, authError(Invalid, "invalid credentials")
	}
	if !u.Active {
		return Session{}, authError(Invalid, "account is inactive")
	}
	token, exp, err := s.Tokens.Sign(u.Principal())
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, User: u}, nil
}

// Resolve verifies the token and re-reads the principal so a deactivated
// or deleted account is rejected even while its token is unexpired.
func (s Service) Resolve(ctx context.Context, token string) (domain.User, error) {
	claims, err := s.Tokens.Verify(token)
	if err != nil {
		return domain.User{}, err
	}
	u, err := s.Users.GetUser(ctx, claims.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, authError(Invalid, "user not found")
	}
	if err != nil {
		return domain.User{}, err
	}
	if !u.Active {
		return domain.User{}, authError(Invalid, "account is inactive")
	}
	return u, nil
}
