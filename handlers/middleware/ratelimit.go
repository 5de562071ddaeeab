package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware bounds how often health cycles are triggered against the backends.
// The limit is global since every request hits the same node triplet.
type RateLimitMiddleware struct {
	limiter *rate.Limiter
	logger  logrus.FieldLogger
}

// NewRateLimitMiddleware returns nil when perSecond is not positive, which disables limiting.
func NewRateLimitMiddleware(perSecond float64, burst int, logger logrus.FieldLogger) *RateLimitMiddleware {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}

	return &RateLimitMiddleware{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		logger:  logger.WithField("module", "ratelimit"),
	}
}

// ServeHTTP implements negroni.Handler.
func (rl *RateLimitMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	if rl == nil {
		next(w, r)
		return
	}

	reservation := rl.limiter.Reserve()
	if !reservation.OK() {
		rl.reject(w, r, time.Second)
		return
	}

	delay := reservation.Delay()
	if delay > 0 {
		reservation.Cancel()
		rl.reject(w, r, delay)
		return
	}

	next(w, r)
}

func (rl *RateLimitMiddleware) reject(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}

	rl.logger.Debugf("rate limit exceeded for %v %v", r.Method, r.URL.Path)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"status": "ERROR: rate limit exceeded",
	})
}
