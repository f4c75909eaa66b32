// Package auth implements registration, login, and token validation for the
// Auth Hub and Standalone deployment modes. Password hashing uses Argon2id;
// token signing and verification is delegated to internal/federation.
package auth

import (
	"context"
	"fmt"
	"regexp"

	"github.com/alexedwards/argon2id"

	"github.com/boreal-chat/boreal/internal/config"
	"github.com/boreal-chat/boreal/internal/corerr"
	"github.com/boreal-chat/boreal/internal/federation"
	"github.com/boreal-chat/boreal/internal/models"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{2,32}$`)

func validateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return corerr.BadRequest("username must be 2-32 characters of letters, digits, '.', '_', or '-'")
	}
	return nil
}

func validatePassword(password string) error {
	n := len([]rune(password))
	if n < 8 {
		return corerr.BadRequest("password must be at least 8 characters")
	}
	if n > 128 {
		return corerr.BadRequest("password must be at most 128 characters")
	}
	return nil
}

// Store is the subset of the persistent store the auth service needs.
// Implemented by internal/store; kept as a narrow interface here so this
// package has no direct database dependency.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (models.User, error)
	UserByUsername(ctx context.Context, username string) (models.User, error)
}

// Service handles credential verification and issues identity tokens. Only
// constructed in Auth Hub and Standalone modes; Community Servers never
// accept local registration or login.
type Service struct {
	store    Store
	verifier *federation.Verifier
	breach   *breachChecker
}

// New constructs a Service backed by the given store and token verifier.
// Password breach checking against the HaveIBeenPwned range API runs on
// every registration when breachCfg.Enabled is set.
func New(store Store, verifier *federation.Verifier, breachCfg config.BreachCheckConfig) *Service {
	return &Service{store: store, verifier: verifier, breach: newBreachChecker(breachCfg)}
}

// Register creates a new user with the given credentials and returns a
// signed token alongside the public user record. Fails with Conflict if the
// username is already taken.
func (s *Service) Register(ctx context.Context, username, password string) (string, models.UserPublic, error) {
	if err := validateUsername(username); err != nil {
		return "", models.UserPublic{}, err
	}
	if err := validatePassword(password); err != nil {
		return "", models.UserPublic{}, err
	}
	if breached, err := s.breach.isBreached(ctx, password); err == nil && breached {
		return "", models.UserPublic{}, corerr.BadRequest("password appears in a known data breach; choose a different one")
	}

	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return "", models.UserPublic{}, corerr.Internal(fmt.Errorf("hashing password: %w", err))
	}

	user, err := s.store.CreateUser(ctx, username, hash)
	if err != nil {
		return "", models.UserPublic{}, err
	}

	token, err := s.verifier.Sign(user.ID.String(), user.Username)
	if err != nil {
		return "", models.UserPublic{}, err
	}
	return token, user.Public(), nil
}

// Login verifies the given credentials and returns a fresh signed token.
func (s *Service) Login(ctx context.Context, username, password string) (string, models.UserPublic, error) {
	user, err := s.store.UserByUsername(ctx, username)
	if err != nil {
		return "", models.UserPublic{}, corerr.Unauthorized("invalid username or password")
	}

	match, err := argon2id.ComparePasswordAndHash(password, user.PasswordHash)
	if err != nil || !match {
		return "", models.UserPublic{}, corerr.Unauthorized("invalid username or password")
	}

	token, err := s.verifier.Sign(user.ID.String(), user.Username)
	if err != nil {
		return "", models.UserPublic{}, err
	}
	return token, user.Public(), nil
}

// ValidateToken verifies a token and returns its identity, for the
// POST /api/auth/validate endpoint (Auth Hub only — Community Servers
// verify tokens internally via federation.Verifier without a round trip).
func (s *Service) ValidateToken(ctx context.Context, token string) (federation.Result, error) {
	return s.verifier.Verify(ctx, token)
}
