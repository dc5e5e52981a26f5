package api

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/jwtauth"
	"golang.org/x/time/rate"
)

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// CORSMiddleware handles CORS headers
func CORSMiddleware(allowedOrigins []string) Middleware {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	headers := "Content-Type, Authorization, X-Request-ID"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					if origin == "" || allowed == "*" {
						origin = allowed
					}
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", methods)
					w.Header().Set("Access-Control-Allow-Headers", headers)
					break
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestSizeLimitMiddleware limits the size of request bodies
func RequestSizeLimitMiddleware(maxBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

// NewRateLimiter allows rps requests per second per client with the given burst
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		idle:     3 * time.Minute,
		now:      time.Now,
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	// Sweep idle clients while holding the lock.
	if len(rl.visitors) > 1024 {
		for k, other := range rl.visitors {
			if now.Sub(other.lastSeen) > rl.idle {
				delete(rl.visitors, k)
			}
		}
	}
	return v.limiter.AllowN(now, 1)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the limit with 429
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(max(1, 1/float64(rl.limit)))))
			respondMessage(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminClaim marks a token as allowed to change schema and content.
const AdminClaim = "admin"

// NewAdminAuth builds the HS256 token authority for admin routes.
func NewAdminAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// IssueAdminToken signs an admin token for subject valid for ttl.
func IssueAdminToken(auth *jwtauth.JWTAuth, subject string, ttl time.Duration) (string, error) {
	claims := map[string]interface{}{
		"sub":      subject,
		AdminClaim: true,
	}
	jwtauth.SetIssuedNow(claims)
	if ttl > 0 {
		jwtauth.SetExpiryIn(claims, ttl)
	}
	_, token, err := auth.Encode(claims)
	return token, err
}

// AdminAuthenticator rejects requests whose verified token is missing,
// invalid or lacks the admin claim. It runs after jwtauth.Verifier.
func AdminAuthenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			respondMessage(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		if admin, _ := claims[AdminClaim].(bool); !admin {
			respondMessage(w, r, http.StatusForbidden, "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
