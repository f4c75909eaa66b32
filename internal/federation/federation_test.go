package federation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/boreal-chat/boreal/internal/config"
	"github.com/boreal-chat/boreal/internal/corerr"
)

func standaloneConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Mode: config.ModeStandalone,
		Auth: config.AuthConfig{
			JWTPrivateKeyPath: filepath.Join(dir, "priv.pem"),
			JWTPublicKeyPath:  filepath.Join(dir, "pub.pem"),
			TokenExpiry:       "1h",
		},
	}
	return cfg
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	v, err := New(standaloneConfig(t, t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	token, err := v.Sign("user-1", "alice")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	result, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.UserID != "user-1" || result.Username != "alice" {
		t.Fatalf("Verify result = %+v", result)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v, err := New(standaloneConfig(t, t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = v.Verify(context.Background(), "not-a-token")
	ce, ok := corerr.As(err)
	if !ok || ce.Kind != corerr.KindUnauthorized {
		t.Fatalf("Verify error = %v, want Unauthorized", err)
	}
}

func TestVerifyCachesResult(t *testing.T) {
	v, err := New(standaloneConfig(t, t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	token, _ := v.Sign("user-2", "bob")

	if _, err := v.Verify(context.Background(), token); err != nil {
		t.Fatalf("first Verify: %v", err)
	}

	// Clearing the verification key proves the second call served the
	// cached result rather than re-verifying against the key.
	v.publicKey = nil
	if _, ok := v.cache.Get(token); !ok {
		t.Fatal("expected token to be cached after first Verify")
	}
	if _, err := v.Verify(context.Background(), token); err != nil {
		t.Fatalf("cached Verify: %v", err)
	}
}

func TestGenerateKeypairWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	cfg := standaloneConfig(t, dir)

	v1, err := New(cfg)
	if err != nil {
		t.Fatalf("New (generate): %v", err)
	}

	// A second instance pointed at the same paths must load the
	// already-generated keypair rather than generating a new one.
	v2, err := New(cfg)
	if err != nil {
		t.Fatalf("New (load): %v", err)
	}

	token, err := v1.Sign("user-3", "carol")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := v2.Verify(context.Background(), token); err != nil {
		t.Fatalf("cross-instance Verify: %v", err)
	}
}

func TestSignFailsWithoutPrivateKey(t *testing.T) {
	v := &Verifier{mode: config.ModeCommunity, cache: NewTTLCache[Result](resultTTL, 10)}
	if _, err := v.Sign("u", "n"); err == nil {
		t.Fatal("expected Sign to fail without a private key")
	}
}

func TestPublicKeyPEMRoundTrips(t *testing.T) {
	v, err := New(standaloneConfig(t, t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pemStr, err := v.PublicKeyPEM()
	if err != nil {
		t.Fatalf("PublicKeyPEM: %v", err)
	}
	key, err := parseRSAPublicKeyPEM(pemStr)
	if err != nil {
		t.Fatalf("parseRSAPublicKeyPEM: %v", err)
	}
	if key.N.Cmp(v.publicKey.N) != 0 {
		t.Fatal("round-tripped key does not match original")
	}
}

func TestCommunityFetchesAndCachesHubKey(t *testing.T) {
	hub, err := New(standaloneConfig(t, t.TempDir()))
	if err != nil {
		t.Fatalf("New(hub): %v", err)
	}
	hubPEM, err := hub.PublicKeyPEM()
	if err != nil {
		t.Fatalf("PublicKeyPEM: %v", err)
	}

	var fetches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		w.Write([]byte(hubPEM))
	}))
	defer srv.Close()

	community := &Verifier{
		mode:       config.ModeCommunity,
		hubURL:     srv.URL,
		cache:      NewTTLCache[Result](resultTTL, 10),
		httpClient: srv.Client(),
	}
	// Bypass the SSRF guard: httptest servers listen on loopback, which
	// production hub URLs never would.
	key, err := community.fetchHubPublicKeyUnchecked(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetchHubPublicKeyUnchecked: %v", err)
	}
	community.hubKeyMu.Lock()
	community.hubKey = key
	community.hubKeyMu.Unlock()

	token, err := hub.Sign("user-4", "dave")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := community.Verify(context.Background(), token); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if fetches != 1 {
		t.Fatalf("fetches = %d, want 1 (no direct fetch should occur through resolveVerificationKey here)", fetches)
	}
}

func TestValidateHubURLRejectsLoopback(t *testing.T) {
	if err := validateHubURL("http://localhost:8080"); err == nil {
		t.Fatal("expected loopback hub URL to be rejected")
	}
	if err := validateHubURL(""); err == nil {
		t.Fatal("expected empty hub URL to be rejected")
	}
}
