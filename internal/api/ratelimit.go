package api

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/boreal-chat/boreal/internal/api/apiutil"
	"github.com/boreal-chat/boreal/internal/auth"
)

// Rate limit tiers for different endpoint categories. Boreal has no
// DragonflyDB/Redis cache layer in its configuration surface, so these
// limiters are in-process token buckets keyed by user id (or client IP
// for unauthenticated requests) rather than a shared cache lookup — a
// multi-instance deployment enforces these per-node, not globally.
const (
	// Authenticated user global rate limit: 100 requests/second,
	// bursting to 200, generous enough for a client clicking through
	// settings and menus.
	authedRateLimit = 100
	authedRateBurst = 200

	// Unauthenticated global rate limit: 20 requests/second per IP.
	unauthRateLimit = 20
	unauthRateBurst = 40

	// Auth endpoints (login/register): 1 request every 2 seconds per IP,
	// bursting to 5, to slow credential brute-forcing.
	authRateLimit = 0.5
	authRateBurst = 5

	// Message creation: 10 messages/second per user, bursting to 20.
	messageRateLimit = 10
	messageRateBurst = 20

	// limiterIdleTTL bounds how long an idle per-key limiter is kept
	// before limiterStore sweeps it, so the map does not grow unbounded
	// with one-off IPs and departed users.
	limiterIdleTTL = 10 * time.Minute
)

// limiterEntry pairs a token bucket with the last time it was touched, so
// limiterStore.sweep can evict entries nobody has used recently.
type limiterEntry struct {
	limiter    *rate.Limiter
	lastSeenAt time.Time
}

// limiterStore is a keyed set of token buckets sharing one rate/burst
// configuration, with background eviction of idle keys.
type limiterStore struct {
	r     rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*limiterEntry
}

func newLimiterStore(r rate.Limit, burst int) *limiterStore {
	return &limiterStore{r: r, burst: burst, entries: make(map[string]*limiterEntry)}
}

func (s *limiterStore) allow(key string) bool {
	s.mu.Lock()
	entry, ok := s.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(s.r, s.burst)}
		s.entries[key] = entry
	}
	entry.lastSeenAt = time.Now()
	limiter := entry.limiter
	s.mu.Unlock()
	return limiter.Allow()
}

func (s *limiterStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-limiterIdleTTL)
	for key, entry := range s.entries {
		if entry.lastSeenAt.Before(cutoff) {
			delete(s.entries, key)
		}
	}
}

// rateLimiters holds every tier's limiterStore and a background sweeper.
type rateLimiters struct {
	authed  *limiterStore
	unauth  *limiterStore
	auth    *limiterStore
	message *limiterStore

	stop chan struct{}
}

func newRateLimiters() *rateLimiters {
	rl := &rateLimiters{
		authed:  newLimiterStore(authedRateLimit, authedRateBurst),
		unauth:  newLimiterStore(unauthRateLimit, unauthRateBurst),
		auth:    newLimiterStore(authRateLimit, authRateBurst),
		message: newLimiterStore(messageRateLimit, messageRateBurst),
		stop:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *rateLimiters) sweepLoop() {
	ticker := time.NewTicker(limiterIdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.authed.sweep()
			rl.unauth.sweep()
			rl.auth.sweep()
			rl.message.sweep()
		case <-rl.stop:
			return
		}
	}
}

func (rl *rateLimiters) Close() {
	close(rl.stop)
}

// rateLimitGlobal returns middleware enforcing the global per-user (or
// per-IP) rate limit. The per-user tier applies only when the middleware
// runs after auth middleware, so that auth.UserIDFromContext returns the
// caller's id. NewServer mounts it globally, before routing and before any
// RequireAuth, so the context never carries a user id there and every
// request is limited by the per-IP unauthenticated tier.
func (s *Server) rateLimitGlobal() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := auth.UserIDFromContext(r.Context())

			var allowed bool
			if userID != "" {
				allowed = s.rateLimiters.authed.allow(userID)
			} else {
				allowed = s.rateLimiters.unauth.allow(clientIP(r))
			}
			if !allowed {
				writeRateLimitResponse(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitAuth is middleware for POST /api/auth/register and
// POST /api/auth/login, keyed by client IP.
func (s *Server) rateLimitAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.rateLimiters.auth.allow(clientIP(r)) {
			writeRateLimitResponse(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMessages is middleware for the message creation endpoint,
// keyed by the authenticated user.
func (s *Server) rateLimitMessages(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserIDFromContext(r.Context())
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !s.rateLimiters.message.allow(userID) {
			writeRateLimitResponse(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeRateLimitResponse sends a 429 Too Many Requests response.
func writeRateLimitResponse(w http.ResponseWriter) {
	w.Header().Set("Retry-After", strconv.Itoa(1))
	apiutil.WriteError(w, http.StatusTooManyRequests, "you are being rate limited, try again shortly")
}

// clientIP extracts the client IP from the request. Chi's RealIP
// middleware already sets r.RemoteAddr from trusted proxy headers, so
// this just strips the port. X-Forwarded-For is not re-parsed here to
// avoid trusting arbitrary client-supplied headers.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
