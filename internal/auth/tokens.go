package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"restaurant-fulfillment/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Role      Role   `json:"role"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 bearer tokens.
type Tokens struct {
	secret   []byte
	guestTTL time.Duration
	now      func() time.Time
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret), guestTTL: 24 * time.Hour, now: time.Now}
}

func (t *Tokens) GuestTTLSeconds() int {
	return int(t.guestTTL.Seconds())
}

// IssueGuest starts an anonymous shopping session and returns its token.
func (t *Tokens) IssueGuest() (token, sessionID string, err error) {
	sessionID = uuid.NewString()
	token, err = t.Issue(Actor{Role: RoleGuest, SessionID: sessionID}, t.guestTTL)
	if err != nil {
		return "", "", err
	}
	return token, sessionID, nil
}

func (t *Tokens) Issue(a Actor, ttl time.Duration) (string, error) {
	if a.Role == "" {
		return "", fmt.Errorf("%w: role required", domain.ErrValidation)
	}
	now := t.now()
	claims := Claims{
		Role:      a.Role,
		SessionID: a.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse validates a bearer token (with or without the "Bearer " prefix).
func (t *Tokens) Parse(raw string) (Actor, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return Actor{}, ErrInvalidToken
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	a := Actor{ID: claims.Subject, Role: claims.Role, SessionID: claims.SessionID}
	switch a.Role {
	case RoleGuest:
		if a.SessionID == "" {
			return Actor{}, fmt.Errorf("%w: guest token without session", ErrInvalidToken)
		}
	case RoleCustomer, RoleStaff, RoleManager, RoleAdmin, RoleSystem:
		if a.ID == "" {
			return Actor{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
		}
	default:
		return Actor{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, a.Role)
	}
	return a, nil
}
