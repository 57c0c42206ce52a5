package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (c *fakeCounter) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if c.err != nil {
		return 0, 0, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int64)
	}
	c.counts[key]++
	return c.counts[key], window / 2, nil
}

func limitedRequest(h http.Handler, userID int64) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	if userID != 0 {
		req = req.WithContext(WithUserID(req.Context(), userID))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimiter(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	t.Run("limit per user", func(t *testing.T) {
		h := NewRateLimiter(&fakeCounter{}, 2, time.Minute, zap.NewNop()).Middleware(ok)

		assert.Equal(t, http.StatusCreated, limitedRequest(h, 1).Code)
		assert.Equal(t, http.StatusCreated, limitedRequest(h, 1).Code)

		w := limitedRequest(h, 1)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "30", w.Header().Get("Retry-After"))

		assert.Equal(t, http.StatusCreated, limitedRequest(h, 2).Code)
	})

	t.Run("fails open", func(t *testing.T) {
		h := NewRateLimiter(&fakeCounter{err: errors.New("redis down")}, 1, time.Minute, zap.NewNop()).Middleware(ok)

		assert.Equal(t, http.StatusCreated, limitedRequest(h, 1).Code)
		assert.Equal(t, http.StatusCreated, limitedRequest(h, 1).Code)
	})

	t.Run("disabled", func(t *testing.T) {
		var l *RateLimiter
		h := l.Middleware(ok)
		assert.Equal(t, http.StatusCreated, limitedRequest(h, 1).Code)

		h = NewRateLimiter(nil, 5, time.Minute, zap.NewNop()).Middleware(ok)
		assert.Equal(t, http.StatusCreated, limitedRequest(h, 1).Code)
	})

	t.Run("anonymous passes", func(t *testing.T) {
		h := NewRateLimiter(&fakeCounter{}, 1, time.Minute, zap.NewNop()).Middleware(ok)
		assert.Equal(t, http.StatusCreated, limitedRequest(h, 0).Code)
		assert.Equal(t, http.StatusCreated, limitedRequest(h, 0).Code)
	})
}
