package httpx

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wh01sJake/mall-cloud/pkg/slogx"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window.
	// Zero disables limiting.
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// Enabled reports whether the config limits anything.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerWindow > 0 && c.Window > 0
}

// Limit converts the config to a token rate.
func (c RateLimitConfig) Limit() rate.Limit {
	if !c.Enabled() {
		return rate.Inf
	}
	return rate.Limit(float64(c.RequestsPerWindow) / c.Window.Seconds())
}

// NewLimiter returns a limiter for the config, or nil when disabled.
func (c RateLimitConfig) NewLimiter() *rate.Limiter {
	if !c.Enabled() {
		return nil
	}
	return rate.NewLimiter(c.Limit(), max(c.Burst, 1))
}

// ClientLimit is the default outbound limit: 20 requests per second with a
// burst of 40. It keeps scripted CLI use from hammering the gateway.
var ClientLimit = RateLimitConfig{
	RequestsPerWindow: 20,
	Window:            time.Second,
	Burst:             40,
}

// ParseRateLimitFromEnv reads {prefix}_RATE_LIMIT_RPS and
// {prefix}_RATE_LIMIT_BURST over defaultConfig. An RPS of 0 disables
// limiting.
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	if val := os.Getenv(prefix + "_RATE_LIMIT_RPS"); val != "" {
		if rps, err := strconv.Atoi(val); err == nil && rps >= 0 {
			config.RequestsPerWindow = rps
			config.Window = time.Second
		}
	}

	if val := os.Getenv(prefix + "_RATE_LIMIT_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil && burst > 0 {
			config.Burst = burst
		}
	}

	return config
}

// KeyExtractor extracts the key requests are grouped by for rate limiting.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor extracts the client IP address from the request.
// It handles X-Forwarded-For and X-Real-IP headers for proxied requests.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// keyedLimiter holds one limiter per key.
type keyedLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	config   RateLimitConfig
}

func (kl *keyedLimiter) get(key string) *rate.Limiter {
	if limiter, ok := kl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	actual, _ := kl.limiters.LoadOrStore(key, kl.config.NewLimiter())
	return actual.(*rate.Limiter)
}

// RateLimitMiddleware rejects requests over the limit with 429 in the
// gateway's error shape. The fake gateway uses it to let clients exercise
// their handling of throttled responses.
func RateLimitMiddleware(config RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	if !config.Enabled() {
		return func(next http.Handler) http.Handler { return next }
	}

	kl := &keyedLimiter{config: config}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyExtractor(r)
			if key == "" {
				slogx.FromContext(r.Context()).Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			limiter := kl.get(key)
			if !limiter.Allow() {
				reservation := limiter.Reserve()
				delay := reservation.Delay()
				reservation.Cancel()

				w.Header().Set("Retry-After", fmt.Sprintf("%d", max(int(delay.Seconds()), 1)))
				WriteGatewayError(w, http.StatusTooManyRequests, "Too Many Requests", "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
