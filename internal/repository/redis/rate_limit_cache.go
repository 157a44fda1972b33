package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trust-service/internal/util"
)

const registrationPrefix = "rate_limit:register:"

// WindowCounter is the Redis operation the throttle is built on.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Del(ctx context.Context, keys ...string) error
}

// RegistrationThrottle caps how often a registration code can be sent to
// one phone token within a fixed window.
type RegistrationThrottle struct {
	counter WindowCounter
	limit   int
	window  time.Duration
	timeout time.Duration
}

func NewRegistrationThrottle(counter WindowCounter, limit int, window time.Duration) *RegistrationThrottle {
	return &RegistrationThrottle{
		counter: counter,
		limit:   limit,
		window:  window,
		timeout: 5 * time.Second,
	}
}

// Allow counts one attempt for token. When the limit is exceeded it
// returns false and the time left until the window resets.
func (t *RegistrationThrottle) Allow(ctx context.Context, token string) (bool, time.Duration, error) {
	if t.limit <= 0 {
		return true, 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	count, ttl, err := t.counter.IncrWindow(ctx, registrationPrefix+token, t.window)
	if err != nil {
		util.Error("Failed to increment registration counter",
			util.Token(token),
			zap.Error(err))
		return false, 0, fmt.Errorf("failed to increment registration counter: %w", err)
	}

	if count > int64(t.limit) {
		util.Debug("Registration throttled",
			util.Token(token),
			zap.Int64("count", count),
			zap.Duration("retry_after", ttl))
		return false, max(ttl, 0), nil
	}
	return true, 0, nil
}

// Reset clears the window for token once its registration has completed.
func (t *RegistrationThrottle) Reset(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := t.counter.Del(ctx, registrationPrefix+token); err != nil {
		return fmt.Errorf("failed to reset registration counter: %w", err)
	}
	return nil
}
