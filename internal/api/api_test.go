package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boreal-chat/boreal/internal/auth"
	"github.com/boreal-chat/boreal/internal/config"
	"github.com/boreal-chat/boreal/internal/models"
)

func TestAuthenticatedUserIDRoundTrips(t *testing.T) {
	id := models.NewULID()
	ctx := context.WithValue(context.Background(), auth.ContextKeyUserID, id.String())

	got, err := authenticatedUserID(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != id {
		t.Errorf("authenticatedUserID = %v, want %v", got, id)
	}
}

func TestAuthenticatedUserIDRejectsGarbage(t *testing.T) {
	ctx := context.WithValue(context.Background(), auth.ContextKeyUserID, "not-a-ulid")

	if _, err := authenticatedUserID(ctx); err == nil {
		t.Error("expected an error for a malformed token subject")
	}
}

func TestAuthenticatedUserIDRejectsMissing(t *testing.T) {
	if _, err := authenticatedUserID(context.Background()); err == nil {
		t.Error("expected an error when no user id is present in context")
	}
}

func TestHandleInstanceInfo(t *testing.T) {
	s := &Server{
		Config: &config.Config{
			Mode: config.ModeStandalone,
			Server: config.ServerConfig{
				PublicURL: "https://chat.example.com",
			},
			Auth: config.AuthConfig{AllowLocalRegistration: true},
		},
		Version:   "test",
		StartedAt: time.Now(),
	}

	req := httptest.NewRequest(http.MethodGet, "/api/instance/info", nil)
	w := httptest.NewRecorder()
	s.handleInstanceInfo(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var envelope struct {
		Data instanceInfo `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	body := envelope.Data
	if body.Mode != string(config.ModeStandalone) {
		t.Errorf("mode = %q, want %q", body.Mode, config.ModeStandalone)
	}
	if !body.AllowLocalRegistration {
		t.Error("allow_local_registration should be true")
	}
	if body.PublicURL != "https://chat.example.com" {
		t.Errorf("public_url = %q, want %q", body.PublicURL, "https://chat.example.com")
	}
}
