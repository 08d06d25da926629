package ratelimit

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/af-corp/model-proxy/internal/httputil"
	"github.com/af-corp/model-proxy/internal/telemetry"
)

const (
	headerRateLimitRequests          = "X-RateLimit-Limit-Requests"
	headerRateLimitRemainingRequests = "X-RateLimit-Remaining-Requests"
	headerRateLimitReset             = "X-RateLimit-Reset-Requests"
	headerRetryAfter                 = "Retry-After"
)

// Middleware limits requests per client address. rpm is read on every
// request so a config reload takes effect immediately; a value <= 0 turns
// the check off. Run it after middleware.RealIP so proxied clients are keyed
// by their forwarded address.
func Middleware(limiter *Limiter, rpm func() int, metrics *telemetry.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit := rpm()
			if limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			client := clientKey(r)
			result, err := limiter.Check(r.Context(), "rpm:"+client, int64(limit), time.Minute)
			if err != nil {
				logger.Warn("rate limit check failed", "client", client, "error", err)
			}

			w.Header().Set(headerRateLimitRequests, strconv.Itoa(limit))
			w.Header().Set(headerRateLimitRemainingRequests, strconv.FormatInt(result.Remaining, 10))
			w.Header().Set(headerRateLimitReset, result.ResetAt.Format(time.RFC3339))

			if !result.Allowed {
				logger.Warn("rate limit exceeded",
					"request_id", w.Header().Get("X-Request-ID"),
					"client", client,
					"limit", limit,
				)
				if metrics != nil {
					metrics.RecordRateLimited()
				}
				w.Header().Set(headerRetryAfter, strconv.Itoa(int(result.RetryAfter.Seconds())))
				httputil.WriteRateLimitError(w,
					fmt.Sprintf("Rate limit exceeded: %d requests per minute. Retry after %s", limit, result.ResetAt.Format(time.RFC3339)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
