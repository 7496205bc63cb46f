package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
)

const DefaultTokenTTL = 24 * time.Hour

// ErrorKind classifies credential failures.
type ErrorKind string

const (
	InvalidFormat ErrorKind = "invalid_format"
	Expired       ErrorKind = "expired"
	Invalid       ErrorKind = "invalid"
)

// Error is an authentication failure.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	switch e.Kind {
	case InvalidFormat:
		return "token is malformed"
	case Expired:
		return "token has expired"
	default:
		return "token is invalid"
	}
}

func authError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// IsKind reports whether err is an authentication failure of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// Claims carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return Issuer{Secret: []byte(secret), TTL: ttl, Now: time.Now}
}

func (i Issuer) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

// Sign mints a token for the principal and returns it with its expiry.
func (i Issuer) Sign(p domain.Principal) (string, time.Time, error) {
	if len(i.Secret) == 0 {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}
	issued := i.now()
	ttl := i.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	exp := issued.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID: p.ID,
		Role:   string(p.Role),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Verify checks signature and expiry without touching the store.
func (i Issuer) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" || strings.Count(token, ".") != 2 {
		return Claims{}, authError(InvalidFormat, "")
	}
	if len(i.Secret) == 0 {
		return Claims{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	var claims Claims
	parsed, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return i.Secret, nil
	})
	switch {
	case err == nil && parsed.Valid:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return Claims{}, authError(InvalidFormat, "")
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, authError(Expired, "")
	default:
		return Claims{}, authError(Invalid, "")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return Claims{}, authError(Invalid, "token subject missing")
	}
	return claims, nil
}
