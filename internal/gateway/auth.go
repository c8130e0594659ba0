package gateway

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/soyeahso/snare/internal/config"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// ResolvedAuth holds the resolved API credentials for the gateway.
type ResolvedAuth struct {
	APIKey string
}

// ResolveAuth resolves the API key from config and environment.
// Precedence: config value, then SNARE_API_KEY, then empty (auth disabled).
func ResolveAuth(cfg config.ServerConfig) ResolvedAuth {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("SNARE_API_KEY")
	}
	return ResolvedAuth{APIKey: key}
}

// Enabled reports whether authentication is enforced.
func (a ResolvedAuth) Enabled() bool { return a.APIKey != "" }

// Authorize checks a presented key against the resolved server auth.
func Authorize(serverAuth ResolvedAuth, key string) AuthResult {
	if !serverAuth.Enabled() {
		return AuthResult{OK: true}
	}
	if key == "" {
		return AuthResult{OK: false, Reason: "api key required"}
	}
	if !safeEqual(key, serverAuth.APIKey) {
		return AuthResult{OK: false, Reason: "invalid api key"}
	}
	return AuthResult{OK: true}
}

// apiKeyFrom extracts the presented API key from a request. The x-api-key
// header is canonical; a bearer token or a "key" query parameter (for
// WebSocket clients that cannot set headers) are also accepted.
func apiKeyFrom(r *http.Request) string {
	if k := r.Header.Get("x-api-key"); k != "" {
		return k
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("key")
}

// requireAuth guards a handler with API key authentication and per-IP
// failure rate limiting.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authLimiter.allow(r.RemoteAddr) {
			s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited, too many failed auth attempts")
			writeJSONError(w, http.StatusTooManyRequests, "too many requests")
			return
		}

		result := Authorize(s.auth, apiKeyFrom(r))
		if !result.OK {
			s.authLimiter.recordFailure(r.RemoteAddr)
			writeJSONError(w, http.StatusUnauthorized, result.Reason)
			return
		}
		next(w, r)
	}
}

// safeEqual performs a constant-time string comparison to prevent timing attacks.
// It avoids early-return on length mismatch to prevent leaking secret length via timing.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
