// Package conversation owns the message log of a chat and the lifecycle of
// its questions.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/legalmitra/mitra-bot/internal/answer"
	"github.com/legalmitra/mitra-bot/internal/apperr"
	"github.com/legalmitra/mitra-bot/internal/models"
	"go.uber.org/zap"
)

const (
	ErrorReply   = "I'm sorry, I encountered an error while processing your request. Please check your connection or try again later."
	LockoutReply = "🔒 You have reached the free demo limit. Please Login or Sign Up to continue your legal journey safely."

	welcomeID = "welcome"
)

var (
	ErrEmptyInput    = apperr.New(apperr.KindValidation, "Please describe your legal issue.")
	ErrQueryPending  = apperr.New(apperr.KindValidation, "Please wait for the current answer before asking again.")
	ErrQuotaExceeded = apperr.New(apperr.KindQuota, "You have reached the free demo limit.")
	ErrClosed        = errors.New("conversation closed")
)

// Gate decides whether another question may be sent. The rate limiter
// implements it.
type Gate interface {
	CanSend(ctx context.Context) (bool, error)
	RecordSend(ctx context.Context) error
	NotifyLimitReached()
}

type Options struct {
	Answerer answer.Answerer
	// Gate is optional; without it every question is allowed.
	Gate Gate
	// UserName personalises the welcome message. Empty means anonymous.
	UserName string
	Logger   *zap.Logger
}

// Conversation is an append-only message log with at most one question in
// flight. Closing it cancels the question and drops any late answer.
type Conversation struct {
	mu       sync.Mutex
	messages []models.Message
	pending  bool

	answerer answer.Answerer
	gate     Gate
	logger   *zap.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func New(opts Options) *Conversation {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conversation{
		answerer: opts.Answerer,
		gate:     opts.Gate,
		logger:   opts.Logger,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	c.messages = []models.Message{{
		ID:        welcomeID,
		Role:      models.RoleAssistant,
		Content:   Welcome(opts.UserName),
		Timestamp: c.now(),
	}}
	return c
}

func Welcome(name string) string {
	greeting := "Namaste!"
	if name != "" {
		greeting = fmt.Sprintf("Namaste %s!", name)
	}
	return greeting + " I am Legal Mitra, your personal legal AI. I can help you understand Indian laws, draft documents, and find solutions. What’s on your mind today?"
}

// Messages returns a copy of the log in order.
func (c *Conversation) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Close ends the conversation. An answer still in flight is discarded.
func (c *Conversation) Close() {
	c.cancel()
}

// AppendUserMessage adds a user turn. Blank text is ignored.
func (c *Conversation) AppendUserMessage(text string) (models.Message, bool) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(models.RoleUser, text, nil), true
}

// SubmitQuery asks the question in the background. The returned channel
// yields the assistant message once it has been appended, and is closed
// without a value if the conversation was closed first.
func (c *Conversation) SubmitQuery(text string) (<-chan models.Message, error) {
	if err := c.reserve(); err != nil {
		return nil, err
	}
	return c.launch(text), nil
}

// Send runs a whole turn: quota check, user message, then the question.
func (c *Conversation) Send(ctx context.Context, text string) (<-chan models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if err := c.reserve(); err != nil {
		return nil, err
	}

	if c.gate != nil {
		ok, err := c.gate.CanSend(ctx)
		if err != nil {
			c.release()
			return nil, fmt.Errorf("failed to check demo quota: %w", err)
		}
		if !ok {
			c.gate.NotifyLimitReached()
			c.mu.Lock()
			c.pending = false
			c.appendLocked(models.RoleAssistant, LockoutReply, nil)
			c.mu.Unlock()
			return nil, ErrQuotaExceeded
		}
		if err := c.gate.RecordSend(ctx); err != nil {
			c.release()
			return nil, fmt.Errorf("failed to record demo message: %w", err)
		}
	}

	c.mu.Lock()
	c.appendLocked(models.RoleUser, text, nil)
	c.mu.Unlock()

	return c.launch(text), nil
}

func (c *Conversation) reserve() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx.Err() != nil {
		return ErrClosed
	}
	if c.pending {
		return ErrQueryPending
	}
	c.pending = true
	return nil
}

func (c *Conversation) release() {
	c.mu.Lock()
	c.pending = false
	c.mu.Unlock()
}

func (c *Conversation) launch(text string) <-chan models.Message {
	replies := make(chan models.Message, 1)

	go func() {
		defer close(replies)

		result, err := c.answerer.Ask(c.ctx, text)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.pending = false

		if c.ctx.Err() != nil {
			c.logger.Info("Discarding answer for closed conversation")
			return
		}

		var msg models.Message
		if err != nil {
			c.logger.Error("Failed to answer question",
				zap.Error(err),
				zap.String("kind", apperr.KindOf(err).String()))
			msg = c.appendLocked(models.RoleAssistant, ErrorReply, nil)
		} else {
			msg = c.appendLocked(models.RoleAssistant, result.Answer, result)
		}
		replies <- msg
	}()

	return replies
}

// appendLocked must be called with c.mu held.
func (c *Conversation) appendLocked(role models.Role, content string, data *models.QueryResult) models.Message {
	msg := models.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Data:      data,
		Timestamp: c.now(),
	}
	c.messages = append(c.messages, msg)
	return msg
}
