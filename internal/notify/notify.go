// Package notify implements a queue of short-lived user notifications.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/legalmitra/mitra-bot/internal/models"
	"go.uber.org/zap"
)

const DefaultDuration = 3 * time.Second

// Sink receives every posted toast, e.g. to deliver it to a chat.
type Sink func(models.Toast)

type PostOption func(*models.Toast)

// WithDuration overrides the default lifetime. Zero expires the toast on the
// next timer tick.
func WithDuration(d time.Duration) PostOption {
	return func(t *models.Toast) {
		t.Duration = d
	}
}

type Option func(*Channel)

func WithSink(sink Sink) Option {
	return func(c *Channel) {
		c.sink = sink
	}
}

func WithDefaultDuration(d time.Duration) Option {
	return func(c *Channel) {
		c.defaultDuration = d
	}
}

// Channel holds the visible toasts in insertion order. A toast is removed when
// its timer fires or when it is dismissed.
type Channel struct {
	mu              sync.Mutex
	toasts          []models.Toast
	timers          map[string]*time.Timer
	defaultDuration time.Duration
	sink            Sink
	logger          *zap.Logger
}

func New(logger *zap.Logger, opts ...Option) *Channel {
	c := &Channel{
		timers:          make(map[string]*time.Timer),
		defaultDuration: DefaultDuration,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Post enqueues a toast and starts its expiry timer.
func (c *Channel) Post(title, message string, typ models.ToastType, opts ...PostOption) models.Toast {
	toast := models.Toast{
		ID:        uuid.NewString(),
		Title:     title,
		Message:   message,
		Type:      typ,
		Duration:  c.defaultDuration,
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&toast)
	}

	c.mu.Lock()
	c.toasts = append(c.toasts, toast)
	c.timers[toast.ID] = time.AfterFunc(toast.Duration, func() {
		c.expire(toast.ID)
	})
	c.mu.Unlock()

	c.logger.Debug("Toast posted",
		zap.String("toast_id", toast.ID),
		zap.String("title", toast.Title),
		zap.Duration("duration", toast.Duration))

	if c.sink != nil {
		c.sink(toast)
	}
	return toast
}

// Dismiss removes the toast immediately. It reports whether the toast was
// still visible.
func (c *Channel) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if timer, ok := c.timers[id]; ok {
		timer.Stop()
	}
	return c.remove(id)
}

// List returns the visible toasts, newest last.
func (c *Channel) List() []models.Toast {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Toast, len(c.toasts))
	copy(out, c.toasts)
	return out
}

// Close stops every pending timer and clears the queue.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, timer := range c.timers {
		timer.Stop()
	}
	c.timers = make(map[string]*time.Timer)
	c.toasts = nil
}

func (c *Channel) expire(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remove(id) {
		c.logger.Debug("Toast expired", zap.String("toast_id", id))
	}
}

// remove must be called with c.mu held.
func (c *Channel) remove(id string) bool {
	delete(c.timers, id)
	for i, toast := range c.toasts {
		if toast.ID == id {
			c.toasts = append(c.toasts[:i], c.toasts[i+1:]...)
			return true
		}
	}
	return false
}
