package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/errs"
)

// securityHeaders sets the default-on headers of, togglable via
// cfg.Server.SecurityHeaders.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.SecurityHeaders {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
		}
		next.ServeHTTP(w, r)
	})
}

// cors implements CORS handling: preflight OPTIONS short-circuits
// with 204; every response carries Access-Control-Allow-Origin when the
// request's Origin matches the allowlist.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Server.CORS.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		origin := r.Header.Get("Origin")
		allowed := origin != "" && originAllowed(origin, s.cfg.Server.CORS.AllowedOrigins)

		if r.Method == http.MethodOptions {
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", corsAllowedHeaders(s.cfg.Server.CORS.AllowedHeaders, r.Header.Get("Access-Control-Request-Headers")))
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(origin string, allowlist []string) bool {
	for _, o := range allowlist {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// corsAllowedHeaders echoes the requested headers when the config leaves
// AllowedHeaders empty, else the configured list joined.
func corsAllowedHeaders(configured []string, requested string) string {
	if len(configured) > 0 {
		return strings.Join(configured, ", ")
	}
	if requested != "" {
		return requested
	}
	return "content-type"
}

// authenticate implements authentication: evaluated before body
// parsing. When auth is disabled, every request is treated as
// authenticated under an empty principal (rate limiting then keys off the
// peer address). Returns the resolved identity used for rate limiting.
func (s *Server) authenticate(r *http.Request) (identity string, err *errs.CodedError) {
	cfg := s.cfg.Server.Auth
	if !cfg.Enabled {
		return s.peerIdentity(r), nil
	}

	credential := ""
	if cfg.AllowBearer {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			credential = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if credential == "" && cfg.AllowAPIKeyHeader {
		headerName := cfg.HeaderName
		if headerName == "" {
			headerName = "x-api-key"
		}
		credential = r.Header.Get(headerName)
	}
	if credential == "" {
		return "", errs.Unauthorized("")
	}
	if !keyMatches(credential, cfg.APIKeys, cfg.HashedKeys) {
		return "", errs.Unauthorized("")
	}

	if s.authorize != nil && !s.authorize(r, credential) {
		return "", errs.Forbidden("")
	}
	return credential, nil
}

// keyMatches checks credential against plaintext and hashed ("sha256:
// <hex>") key lists using constant-time comparison.
func keyMatches(credential string, plain, hashed []string) bool {
	for _, k := range plain {
		if subtle.ConstantTimeCompare([]byte(credential), []byte(k)) == 1 {
			return true
		}
	}
	if len(hashed) == 0 {
		return false
	}
	sum := sha256.Sum256([]byte(credential))
	digest := hex.EncodeToString(sum[:])
	for _, h := range hashed {
		rest, ok := strings.CutPrefix(h, "sha256:")
		if !ok {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(digest), []byte(rest)) == 1 {
			return true
		}
	}
	return false
}

// peerIdentity resolves the rate-limiting identity for an unauthenticated
// request: the first X-Forwarded-For address when trusted, else the
// connection's remote IP.
func (s *Server) peerIdentity(r *http.Request) string {
	if s.cfg.Server.RateLimit.TrustProxyHeaders {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first := strings.TrimSpace(strings.Split(fwd, ",")[0])
			if first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// checkRateLimit applies the per-identity token bucket ("Rate
// limiting"). Disabled unless RateLimit.Enabled is set, matching opt-in
// posture; once enabled, a zero RequestsPerMinute admits only the initial
// burst and refills nothing.
func (s *Server) checkRateLimit(identity string) *errs.CodedError {
	if !s.cfg.Server.RateLimit.Enabled {
		return nil
	}
	if !s.buckets.Allow(identity) {
		return errs.RateLimited()
	}
	return nil
}
