package auth

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-backend/internal/observability"
)

const loginRateLimitKeyPrefix = "rl:login:"

// Returns {allowed, pttl}. The window starts on the first hit.
var loginRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if current > tonumber(ARGV[2]) then
  return {0, ttl}
end
return {1, ttl}
`)

// LoginRateLimiter caps login attempts per client IP in a fixed window shared
// by every instance through Redis.
type LoginRateLimiter struct {
	redis   redis.UniversalClient
	logger  *observability.Logger
	maxHits int
	window  time.Duration
	timeout time.Duration
}

func NewLoginRateLimiter(client redis.UniversalClient, logger *observability.Logger, maxHits int, window time.Duration) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &LoginRateLimiter{
		redis:   client,
		logger:  logger,
		maxHits: maxHits,
		window:  window,
		timeout: 250 * time.Millisecond,
	}
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.allow(r.Context(), clientIP(r))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow fails open: a Redis outage must not lock every user out of login.
func (l *LoginRateLimiter) allow(ctx context.Context, ip string) (bool, time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := loginRateLimitScript.Run(ctx, l.redis, []string{loginRateLimitKeyPrefix + ip},
		l.window.Milliseconds(), l.maxHits).Int64Slice()
	if err != nil || len(res) != 2 {
		l.logger.Warn("login_rate_limit_unavailable", map[string]any{"error": errString(err)})
		return true, 0
	}
	if res[0] == 1 {
		return true, 0
	}

	retryAfter := time.Duration(res[1]) * time.Millisecond
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return false, retryAfter
}

// clientIP keys the limiter on the hop appended by the nearest proxy. Earlier
// X-Forwarded-For entries are client supplied and can be rotated freely.
func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[len(parts)-1]); ip != "" {
			return ip
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}

func errString(err error) string {
	if err == nil {
		return "unexpected script result"
	}
	return err.Error()
}
