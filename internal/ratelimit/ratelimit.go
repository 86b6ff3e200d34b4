// Package ratelimit enforces the free message quota of anonymous users.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/legalmitra/mitra-bot/internal/models"
	"github.com/legalmitra/mitra-bot/internal/notify"
	"github.com/legalmitra/mitra-bot/internal/storage"
	"go.uber.org/zap"
)

const (
	MaxDemoMessages = 10
	// warnAt is how many messages are left when the warning toast fires.
	warnAt = 3
)

type Authenticator interface {
	IsAuthenticated() bool
}

type Notifier interface {
	Post(title, message string, typ models.ToastType, opts ...notify.PostOption) models.Toast
}

// Limiter counts messages sent while nobody is signed in. The counter is
// persisted and survives login and logout.
type Limiter struct {
	auth     Authenticator
	storage  storage.Storage
	notifier Notifier
	max      int
	logger   *zap.Logger
}

func New(auth Authenticator, store storage.Storage, notifier Notifier, limit int, logger *zap.Logger) *Limiter {
	if limit <= 0 {
		limit = MaxDemoMessages
	}
	return &Limiter{
		auth:     auth,
		storage:  store,
		notifier: notifier,
		max:      limit,
		logger:   logger,
	}
}

func (l *Limiter) Max() int {
	return l.max
}

func (l *Limiter) CanSend(ctx context.Context) (bool, error) {
	if l.auth.IsAuthenticated() {
		return true, nil
	}
	count, err := l.count(ctx)
	if err != nil {
		return false, err
	}
	return count < l.max, nil
}

// RecordSend counts one anonymous message and warns when only a few are left.
func (l *Limiter) RecordSend(ctx context.Context) error {
	if l.auth.IsAuthenticated() {
		return nil
	}

	count, err := l.count(ctx)
	if err != nil {
		return err
	}
	count++
	if err := l.storage.Set(ctx, storage.KeyDemoCount, strconv.Itoa(count)); err != nil {
		return fmt.Errorf("failed to save demo counter: %w", err)
	}

	if count == l.max-warnAt {
		l.notifier.Post("3 Messages Left",
			"You have 3 free messages remaining in your demo session.",
			models.ToastInfo)
	}
	return nil
}

// Remaining returns the free messages left, or -1 for signed-in users.
func (l *Limiter) Remaining(ctx context.Context) (int, error) {
	if l.auth.IsAuthenticated() {
		return -1, nil
	}
	count, err := l.count(ctx)
	if err != nil {
		return 0, err
	}
	if count >= l.max {
		return 0, nil
	}
	return l.max - count, nil
}

func (l *Limiter) NotifyLimitReached() {
	l.notifier.Post("Demo Limit Reached",
		"You've reached the limit of free messages. Please login to continue.",
		models.ToastInfo,
		notify.WithDuration(5*time.Second))
}

func (l *Limiter) count(ctx context.Context) (int, error) {
	raw, ok, err := l.storage.Get(ctx, storage.KeyDemoCount)
	if err != nil {
		return 0, fmt.Errorf("failed to read demo counter: %w", err)
	}
	if !ok || raw == "" {
		return 0, nil
	}

	count, err := strconv.Atoi(raw)
	if err != nil || count < 0 {
		l.logger.Warn("Ignoring invalid demo counter", zap.String("value", raw))
		return 0, nil
	}
	return count, nil
}
