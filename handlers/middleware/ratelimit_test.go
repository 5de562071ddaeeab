package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func serve(rl *RateLimitMiddleware) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	rl.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return rec
}

func TestRateLimitMiddleware(t *testing.T) {
	logger, _ := test.NewNullLogger()
	rl := NewRateLimitMiddleware(0.5, 2, logger)

	assert.Equal(t, http.StatusOK, serve(rl).Code)
	assert.Equal(t, http.StatusOK, serve(rl).Code)

	rec := serve(rl)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"status":"ERROR: rate limit exceeded"}`, rec.Body.String())
}

func TestRateLimitMiddlewareDisabled(t *testing.T) {
	logger, _ := test.NewNullLogger()
	rl := NewRateLimitMiddleware(0, 5, logger)
	assert.Nil(t, rl)

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, serve(rl).Code)
	}
}
