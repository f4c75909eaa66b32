package auth

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/boreal-chat/boreal/internal/config"
)

// breachChecker checks passwords against the HaveIBeenPwned range API using
// the k-anonymity model: only the first 5 hex characters of the SHA-1 hash
// leave the process, and the full hash is compared locally against the
// returned suffix list.
type breachChecker struct {
	cfg        config.BreachCheckConfig
	httpClient *http.Client
}

func newBreachChecker(cfg config.BreachCheckConfig) *breachChecker {
	return &breachChecker{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.TimeoutParsed()},
	}
}

// isBreached reports whether password appears in a known breach corpus. A
// network failure or non-200 response is treated as "not breached" rather
// than blocking registration on an external dependency.
func (bc *breachChecker) isBreached(ctx context.Context, password string) (bool, error) {
	if !bc.cfg.Enabled {
		return false, nil
	}

	// SHA-1 is mandated by the HIBP k-anonymity protocol, not used for
	// credential storage — Argon2id handles that in Service.Register.
	hash := sha1.New()
	hash.Write([]byte(password))
	hashHex := strings.ToUpper(hex.EncodeToString(hash.Sum(nil)))
	prefix, suffix := hashHex[:5], hashHex[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bc.cfg.APIURL+prefix, nil)
	if err != nil {
		return false, fmt.Errorf("building breach check request: %w", err)
	}
	req.Header.Set("Add-Padding", "true")

	resp, err := bc.httpClient.Do(req)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("reading breach check response: %w", err)
	}

	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 || parts[0] != suffix {
			continue
		}
		var count int
		fmt.Sscanf(parts[1], "%d", &count)
		if count >= bc.cfg.MinBreachCount {
			return true, nil
		}
	}
	return false, nil
}
