// Package auth issues and validates bearer tokens for the configured users.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"sheetdash/internal/config"
)

// Roles.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrMissingToken       = errors.New("missing bearer token")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// dummyHash is compared against when the email is unknown.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z4H3eNqO0E0nE8Jk5d1b3q2W")

type user struct {
	email string
	hash  []byte
	role  string
}

// Authenticator checks credentials against the user directory and
// exchanges them for tokens.
type Authenticator struct {
	tokens *JWTManager
	users  map[string]user
	logger zerolog.Logger
}

// New builds an Authenticator from the auth config section.
func New(cfg config.AuthConfig, logger zerolog.Logger) (*Authenticator, error) {
	tokens, err := NewJWTManager(cfg)
	if err != nil {
		return nil, err
	}

	users := make(map[string]user, len(cfg.Users))
	for i, u := range cfg.Users {
		email := normalizeEmail(u.Email)
		if email == "" || u.PasswordHash == "" {
			return nil, fmt.Errorf("auth user %d: email and password_hash are required", i)
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return nil, fmt.Errorf("auth user %s: password_hash is not a bcrypt hash: %w", email, err)
		}
		role := u.Role
		if role == "" {
			role = RoleViewer
		}
		users[email] = user{email: email, hash: []byte(u.PasswordHash), role: role}
	}

	return &Authenticator{
		tokens: tokens,
		users:  users,
		logger: logger.With().Str("component", "auth").Logger(),
	}, nil
}

// Login verifies email and password and returns a signed token.
func (a *Authenticator) Login(email, password string) (string, *Claims, error) {
	email = normalizeEmail(email)
	u, ok := a.users[email]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		a.logger.Warn().Str("email", email).Msg("login rejected: unknown user")
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		a.logger.Warn().Str("email", email).Msg("login rejected: wrong password")
		return "", nil, ErrInvalidCredentials
	}

	token, err := a.tokens.GenerateToken(u.email, u.role)
	if err != nil {
		return "", nil, err
	}
	claims, err := a.tokens.ValidateToken(token)
	if err != nil {
		return "", nil, err
	}

	a.logger.Info().Str("email", u.email).Str("role", u.role).Msg("login succeeded")
	return token, claims, nil
}

// Verify validates the value of an Authorization header.
func (a *Authenticator) Verify(header string) (*Claims, error) {
	token, ok := BearerToken(header)
	if !ok {
		return nil, ErrMissingToken
	}
	claims, err := a.tokens.ValidateToken(token)
	if err != nil {
		a.logger.Debug().Err(err).Msg("token rejected")
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// BearerToken extracts the token from "Bearer <token>".
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// HashPassword returns a bcrypt hash suitable for auth.users[].password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
