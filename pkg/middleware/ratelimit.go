package middleware

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/auth"
	"github.com/resortgenius/concierge-engine/pkg/metrics"
	"github.com/resortgenius/concierge-engine/pkg/ratelimit"
	"github.com/resortgenius/concierge-engine/pkg/tenant"
)

// RateLimit admits requests through limiter according to policy. It must run
// after tenant resolution so tenant-keyed limits apply. A limiter error lets
// the request through.
func RateLimit(limiter ratelimit.Limiter, policy *ratelimit.Policy, rec metrics.Recorder, logger *zap.Logger) func(http.Handler) http.Handler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policy.Bypass(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			key, kind := ratelimit.KeyFor(tenant.FromContext(r.Context()), policy.ClientIP(r))
			limit := policy.LimitFor(auth.GetPlanFromContext(r.Context()), kind)

			decision, err := limiter.Allow(r.Context(), key, limit, policy.Window)
			if err != nil {
				logger.Warn("Rate limiter unavailable, admitting request",
					zap.String("key_kind", kind),
					zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				retry := int(math.Ceil(decision.RetryAfter.Seconds()))
				if retry < 1 {
					retry = 1
				}
				rec.RecordRateLimited(kind)
				logger.Debug("Request rate limited",
					zap.String("key_kind", kind),
					zap.Int("limit", decision.Limit),
					zap.Int("retry_after", retry))

				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "rate_limited",
					"message": fmt.Sprintf("Rate limit of %d requests exceeded, retry in %d seconds", decision.Limit, retry),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
