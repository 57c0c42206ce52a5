package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Counter считает события в окне фиксированной длины.
// Incr возвращает значение счётчика после увеличения и время до сброса окна.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisCounter хранит счётчики в Redis.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

// NewRedisCounter создаёт счётчик, ключи которого начинаются с prefix.
func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix}
}

// Incr увеличивает счётчик ключа и выставляет срок жизни window, если его ещё нет.
func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	key = c.prefix + key

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("incr %s: %w", key, err)
	}

	rest := ttl.Val()
	if rest < 0 {
		// Первое событие окна: ключ ещё без срока жизни.
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("expire %s: %w", key, err)
		}
		rest = window
	}

	return incr.Val(), rest, nil
}

// RateLimiter ограничивает число запросов одного пользователя за окно.
// При ошибке счётчика запрос пропускается.
type RateLimiter struct {
	counter Counter
	limit   int
	window  time.Duration
	logger  *zap.Logger
}

// NewRateLimiter создаёт ограничитель на limit запросов за window.
func NewRateLimiter(counter Counter, limit int, window time.Duration, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{counter: counter, limit: limit, window: window, logger: logger}
}

// Middleware отвечает 429 с заголовком Retry-After, когда пользователь исчерпал лимит.
// Nil-ограничитель пропускает все запросы.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l == nil || l.counter == nil || l.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		userID, ok := GetUserIDFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := "orders:" + strconv.FormatInt(userID, 10)
		n, rest, err := l.counter.Incr(r.Context(), key, l.window)
		if err != nil {
			l.logger.Warn("rate limiter unavailable", zap.Int64("user_id", userID), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		if n > int64(l.limit) {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rest.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "too many orders, try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}
