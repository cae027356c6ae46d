package cache

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"taskify/backend/internal/apperror"
	"taskify/backend/internal/config"
)

const loginFailurePrefix = "login:fail:"

var errTooManyLogins = apperror.TooManyRequests("Too many failed login attempts, please try again later")

// LoginThrottle counts failed logins per email in a fixed window. When Redis
// is unreachable the throttle lets requests through.
type LoginThrottle struct {
	store       *RedisStore
	enabled     bool
	maxAttempts int64
	window      time.Duration
}

func NewLoginThrottle(store *RedisStore, cfg config.LoginThrottleConfig) *LoginThrottle {
	return &LoginThrottle{
		store:       store,
		enabled:     cfg.Enabled && store != nil,
		maxAttempts: int64(cfg.MaxAttempts),
		window:      cfg.Window,
	}
}

func (t *LoginThrottle) Check(ctx context.Context, email string) error {
	if t == nil || !t.enabled {
		return nil
	}

	count, err := t.store.Count(ctx, loginKey(email))
	if err != nil {
		slog.WarnContext(ctx, "login throttle unavailable", "error", err)
		return nil
	}
	if count >= t.maxAttempts {
		return errTooManyLogins.WithRetryAfter(t.remaining(ctx, email))
	}
	return nil
}

// remaining falls back to the full window when the key's TTL is unknown.
func (t *LoginThrottle) remaining(ctx context.Context, email string) time.Duration {
	ttl, err := t.store.TTL(ctx, loginKey(email))
	if err != nil || ttl <= 0 {
		return t.window
	}
	return ttl
}

func (t *LoginThrottle) RecordFailure(ctx context.Context, email string) {
	if t == nil || !t.enabled {
		return
	}
	if _, err := t.store.Incr(ctx, loginKey(email), t.window); err != nil {
		slog.WarnContext(ctx, "failed to record login failure", "error", err)
	}
}

func (t *LoginThrottle) Reset(ctx context.Context, email string) {
	if t == nil || !t.enabled {
		return
	}
	if err := t.store.Delete(ctx, loginKey(email)); err != nil {
		slog.WarnContext(ctx, "failed to reset login throttle", "error", err)
	}
}

func loginKey(email string) string {
	return loginFailurePrefix + strings.ToLower(strings.TrimSpace(email))
}
