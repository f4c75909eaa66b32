package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/boreal-chat/boreal/internal/config"
	"github.com/boreal-chat/boreal/internal/corerr"
	"github.com/boreal-chat/boreal/internal/federation"
	"github.com/boreal-chat/boreal/internal/models"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"valid simple", "alice", false},
		{"valid with numbers", "alice123", false},
		{"valid with dots", "alice.bob", false},
		{"valid with underscores", "alice_bob", false},
		{"valid with hyphens", "alice-bob", false},
		{"valid min length", "ab", false},
		{"valid max length", "abcdefghijklmnopqrstuvwxyz123456", false},
		{"too short", "a", true},
		{"empty", "", true},
		{"too long", "abcdefghijklmnopqrstuvwxyz1234567", true}, // 33 chars
		{"has spaces", "alice bob", true},
		{"has special chars", "alice@bob", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateUsername(tc.username)
			if (err != nil) != tc.wantErr {
				t.Errorf("validateUsername(%q) error = %v, wantErr = %v", tc.username, err, tc.wantErr)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid 8 chars", "12345678", false},
		{"valid long", "a very long and secure password indeed!", false},
		{"too short", "1234567", true},
		{"empty", "", true},
		{"exactly 128 chars", string(make([]byte, 128)), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePassword(tc.password)
			if (err != nil) != tc.wantErr {
				t.Errorf("validatePassword(len=%d) error = %v, wantErr = %v", len(tc.password), err, tc.wantErr)
			}
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid bearer", "Bearer abc123", "abc123"},
		{"case insensitive", "bearer abc123", "abc123"},
		{"BEARER", "BEARER abc123", "abc123"},
		{"with spaces in token", "Bearer  abc123 ", "abc123"},
		{"empty", "", ""},
		{"no bearer prefix", "Token abc123", ""},
		{"bearer only", "Bearer", ""},
		{"basic auth", "Basic dXNlcjpwYXNz", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			got := extractBearerToken(req)
			if got != tc.want {
				t.Errorf("extractBearerToken(%q) = %q, want %q", tc.header, got, tc.want)
			}
		})
	}
}

func TestUserIDFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), ContextKeyUserID, "user123")
	if got := UserIDFromContext(ctx); got != "user123" {
		t.Errorf("UserIDFromContext = %q, want %q", got, "user123")
	}
	if got := UserIDFromContext(context.Background()); got != "" {
		t.Errorf("UserIDFromContext(empty) = %q, want empty", got)
	}
}

func TestUsernameFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), ContextKeyUsername, "alice")
	if got := UsernameFromContext(ctx); got != "alice" {
		t.Errorf("UsernameFromContext = %q, want %q", got, "alice")
	}
	if got := UsernameFromContext(context.Background()); got != "" {
		t.Errorf("UsernameFromContext(empty) = %q, want empty", got)
	}
}

// fakeStore is an in-memory Store for testing Register/Login without a
// database.
type fakeStore struct {
	byUsername map[string]models.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{byUsername: make(map[string]models.User)}
}

func (f *fakeStore) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	if _, exists := f.byUsername[username]; exists {
		return models.User{}, corerr.Conflict("username already taken")
	}
	u := models.User{ID: models.NewULID(), Username: username, PasswordHash: passwordHash}
	f.byUsername[username] = u
	return u, nil
}

func (f *fakeStore) UserByUsername(ctx context.Context, username string) (models.User, error) {
	u, ok := f.byUsername[username]
	if !ok {
		return models.User{}, corerr.NotFound("user not found")
	}
	return u, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	v, err := federation.New(&config.Config{
		Mode: config.ModeStandalone,
		Auth: config.AuthConfig{
			JWTPrivateKeyPath: filepath.Join(t.TempDir(), "priv.pem"),
			JWTPublicKeyPath:  filepath.Join(t.TempDir(), "pub.pem"),
			TokenExpiry:       "1h",
		},
	})
	if err != nil {
		t.Fatalf("federation.New: %v", err)
	}
	return New(newFakeStore(), v, config.BreachCheckConfig{Enabled: false})
}

func TestRegisterThenLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	token, user, err := svc.Register(ctx, "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("Register user = %+v", user)
	}
	if _, err := svc.ValidateToken(ctx, token); err != nil {
		t.Fatalf("ValidateToken after Register: %v", err)
	}

	loginToken, loginUser, err := svc.Login(ctx, "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if loginUser.ID != user.ID {
		t.Fatalf("Login user = %+v, want %+v", loginUser, user)
	}
	if _, err := svc.ValidateToken(ctx, loginToken); err != nil {
		t.Fatalf("ValidateToken after Login: %v", err)
	}
}

func TestRegisterDuplicateUsernameConflicts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "alice", "correct horse battery"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, _, err := svc.Register(ctx, "alice", "another password")
	ce, ok := corerr.As(err)
	if !ok || ce.Kind != corerr.KindConflict {
		t.Fatalf("second Register error = %v, want Conflict", err)
	}
}

func TestLoginWrongPasswordUnauthorized(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "alice", "correct horse battery"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, _, err := svc.Login(ctx, "alice", "wrong password")
	ce, ok := corerr.As(err)
	if !ok || ce.Kind != corerr.KindUnauthorized {
		t.Fatalf("Login error = %v, want Unauthorized", err)
	}
}
