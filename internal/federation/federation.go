// Package federation implements the identity token verifier (Component B):
// local RS256 signing and verification for Auth Hub and Standalone
// deployments, federated public-key retrieval and indefinite caching for
// Community deployments, and a short-TTL memoization layer shared by all
// three modes.
package federation

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/boreal-chat/boreal/internal/config"
	"github.com/boreal-chat/boreal/internal/corerr"
)

// resultTTL is how long a verified (user-id, username) pair is memoized
// against its raw token string before re-verification is required.
const resultTTL = 60 * time.Second

// Claims is the payload signed into every identity token.
type Claims struct {
	UserID   string `json:"sub"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Result is a verified token's identity payload.
type Result struct {
	UserID   string
	Username string
}

// Verifier signs and verifies identity tokens per the instance's deployment
// mode. The zero value is not usable; construct with New.
type Verifier struct {
	mode   config.Mode
	expiry time.Duration

	// Auth Hub / Standalone only.
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey

	// Community only: the hub's public key, fetched once and cached
	// indefinitely. hubURL is also used to form the fetch URL.
	hubURL      string
	hubKeyMu    sync.RWMutex
	hubKey      *rsa.PublicKey
	hubKeyErr   error // sticky result of the most recent fetch attempt
	httpClient  *http.Client

	cache *TTLCache[Result]
}

// New constructs a Verifier for the given configuration. For Auth Hub and
// Standalone modes it loads (or, if absent, generates) the RSA keypair at
// the configured paths; a load/generate failure is fatal, matching the
// spec's "refuse to start" requirement. For Community mode no key material
// is loaded eagerly; the hub's public key is fetched lazily on first verify.
func New(cfg *config.Config) (*Verifier, error) {
	expiry, err := cfg.Auth.TokenExpiryParsed()
	if err != nil {
		return nil, fmt.Errorf("federation: %w", err)
	}

	v := &Verifier{
		mode:   cfg.Mode,
		expiry: expiry,
		cache:  NewTTLCache[Result](resultTTL, 10000),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	if cfg.Mode == config.ModeCommunity {
		v.hubURL = strings.TrimRight(cfg.Identity.AuthHubURL, "/")
		return v, nil
	}

	priv, err := loadOrGenerateKeypair(cfg.Auth.JWTPrivateKeyPath, cfg.Auth.JWTPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("federation: %w", err)
	}
	v.privateKey = priv
	v.publicKey = &priv.PublicKey
	return v, nil
}

// loadOrGenerateKeypair reads an RSA keypair from the given PEM paths. If
// neither file exists, it generates a fresh RSA-2048 keypair and writes both
// files (private key mode 0600). Any other I/O or parse error is fatal.
func loadOrGenerateKeypair(privPath, pubPath string) (*rsa.PrivateKey, error) {
	privPEM, privErr := os.ReadFile(privPath)
	_, pubErr := os.ReadFile(pubPath)

	switch {
	case privErr == nil && pubErr == nil:
		block, _ := pem.Decode(privPEM)
		if block == nil {
			return nil, fmt.Errorf("jwt_private_key_path %q: not a PEM file", privPath)
		}
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			keyAny, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err2 != nil {
				return nil, fmt.Errorf("jwt_private_key_path %q: %w", privPath, err)
			}
			rsaKey, ok := keyAny.(*rsa.PrivateKey)
			if !ok {
				return nil, fmt.Errorf("jwt_private_key_path %q: not an RSA key", privPath)
			}
			return rsaKey, nil
		}
		return key, nil

	case os.IsNotExist(privErr) && os.IsNotExist(pubErr):
		return generateAndPersistKeypair(privPath, pubPath)

	default:
		return nil, fmt.Errorf("reading keypair (private=%v, public=%v): inconsistent state", privErr, pubErr)
	}
}

func generateAndPersistKeypair(privPath, pubPath string) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generating RSA keypair: %w", err)
	}

	privBytes := x509.MarshalPKCS1PrivateKey(key)
	privBlock := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: privBytes}
	if err := writeFileCreatingDirs(privPath, pem.EncodeToMemory(privBlock), 0o600); err != nil {
		return nil, fmt.Errorf("writing private key: %w", err)
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}
	pubBlock := &pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}
	if err := writeFileCreatingDirs(pubPath, pem.EncodeToMemory(pubBlock), 0o644); err != nil {
		return nil, fmt.Errorf("writing public key: %w", err)
	}

	return key, nil
}

func writeFileCreatingDirs(path string, data []byte, perm os.FileMode) error {
	if dir := dirOf(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, perm)
}

func dirOf(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return ""
	}
	return path[:i]
}

// Sign mints a token for the given identity. Only valid for Auth Hub and
// Standalone modes.
func (v *Verifier) Sign(userID, username string) (string, error) {
	if v.privateKey == nil {
		return "", corerr.Internal(errors.New("token signing is not available in this deployment mode"))
	}

	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(v.privateKey)
	if err != nil {
		return "", corerr.Internal(fmt.Errorf("signing token: %w", err))
	}
	return signed, nil
}

// Verify checks a token's signature and expiry and returns its identity.
// Results are memoized for resultTTL so a busy connection does not pay the
// RSA-verify or network cost on every frame.
func (v *Verifier) Verify(ctx context.Context, token string) (Result, error) {
	if cached, ok := v.cache.Get(token); ok {
		return cached, nil
	}

	key, err := v.resolveVerificationKey(ctx)
	if err != nil {
		return Result{}, err
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil || !parsed.Valid {
		return Result{}, corerr.Unauthorized("invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.UserID == "" {
		return Result{}, corerr.Unauthorized("invalid token")
	}

	result := Result{UserID: claims.UserID, Username: claims.Username}
	v.cache.Set(token, result)
	return result, nil
}

// resolveVerificationKey returns the key to verify against for this
// deployment mode, fetching and caching the hub's public key on first use
// in Community mode.
func (v *Verifier) resolveVerificationKey(ctx context.Context) (*rsa.PublicKey, error) {
	if v.mode != config.ModeCommunity {
		return v.publicKey, nil
	}

	v.hubKeyMu.RLock()
	key, fetchErr := v.hubKey, v.hubKeyErr
	v.hubKeyMu.RUnlock()
	if key != nil {
		return key, nil
	}
	if fetchErr != nil {
		// The key has never been successfully fetched and the failure is
		// sticky: no further fetch is attempted, so every validation fails
		// with an internal error for the life of this Verifier.
		return nil, corerr.Internal(fmt.Errorf("auth hub public key unavailable: %w", fetchErr))
	}

	fetched, err := v.fetchHubPublicKey(ctx)
	if err != nil {
		v.hubKeyMu.Lock()
		v.hubKeyErr = err
		v.hubKeyMu.Unlock()
		return nil, corerr.Internal(fmt.Errorf("auth hub public key unavailable: %w", err))
	}

	v.hubKeyMu.Lock()
	v.hubKey = fetched
	v.hubKeyErr = nil
	v.hubKeyMu.Unlock()
	return fetched, nil
}

func (v *Verifier) fetchHubPublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	if err := validateHubURL(v.hubURL); err != nil {
		return nil, err
	}
	return v.fetchHubPublicKeyUnchecked(ctx, v.hubURL)
}

// fetchHubPublicKeyUnchecked performs the GET without the SSRF host guard.
// Split out so tests can exercise the fetch against an httptest server,
// which always listens on loopback.
func (v *Verifier) fetchHubPublicKeyUnchecked(ctx context.Context, hubURL string) (*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hubURL+"/api/auth/public-key", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/x-pem-file, text/plain")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth hub returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, err
	}

	return parseRSAPublicKeyPEM(string(body))
}

// validateHubURL blocks loopback/private/link-local targets to prevent the
// hub-key fetch from being used as an SSRF vector against internal services.
func validateHubURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("identity.auth_hub_url is not configured")
	}

	host := rawURL
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/:"); i >= 0 {
		host = host[:i]
	}

	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".local") || strings.HasSuffix(lower, ".internal") {
		return fmt.Errorf("auth hub host %q is not externally resolvable", host)
	}

	ips, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("auth hub host %q does not resolve: %w", host, err)
	}
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil {
			continue
		}
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return fmt.Errorf("auth hub host %q resolves to a private address", host)
		}
	}
	return nil
}

func parseRSAPublicKeyPEM(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("not a PEM-encoded public key")
	}
	keyAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := keyAny.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("key is not RSA")
	}
	return key, nil
}

// PublicKeyPEM returns this instance's public key in PEM form, for
// Community Servers to retrieve via GET /api/auth/public-key. Only valid
// for Auth Hub and Standalone modes.
func (v *Verifier) PublicKeyPEM() (string, error) {
	if v.publicKey == nil {
		return "", corerr.Internal(errors.New("this instance does not hold a signing key"))
	}
	der, err := x509.MarshalPKIXPublicKey(v.publicKey)
	if err != nil {
		return "", corerr.Internal(fmt.Errorf("marshaling public key: %w", err))
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}
