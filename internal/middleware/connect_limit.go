package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/peerprep/matching-server-go/internal/audit"
	apperrors "github.com/peerprep/matching-server-go/internal/errors"
	"github.com/peerprep/matching-server-go/internal/httputil"
	"github.com/peerprep/matching-server-go/internal/redis"
)

// Limiter admits or refuses one hit under key.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time)
}

// ConnectLimitMiddleware caps socket upgrades per client IP.
type ConnectLimitMiddleware struct {
	limiter Limiter
	limit   int
	window  time.Duration
}

func NewConnectLimitMiddleware(limiter Limiter, limit int, window time.Duration) *ConnectLimitMiddleware {
	return &ConnectLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
	}
}

func (m *ConnectLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := audit.ClientIP(r)
		allowed, resetAt := m.limiter.Allow(r.Context(), redis.ConnectLimitKey(ip), m.limit, m.window)

		if !allowed {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventRateLimitExceed})
			secondsLeft := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secondsLeft))
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
