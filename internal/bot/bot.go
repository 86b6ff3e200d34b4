package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/legalmitra/mitra-bot/internal/answer"
	"github.com/legalmitra/mitra-bot/internal/apperr"
	"github.com/legalmitra/mitra-bot/internal/conversation"
	"github.com/legalmitra/mitra-bot/internal/models"
	"github.com/legalmitra/mitra-bot/internal/notify"
	"github.com/legalmitra/mitra-bot/internal/ratelimit"
	"github.com/legalmitra/mitra-bot/internal/session"
	"github.com/legalmitra/mitra-bot/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// sender is the part of the Telegram API the bot writes to.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Options struct {
	Storage           storage.Storage
	Answerer          answer.Answerer
	DemoLimit         int
	ToastDuration     time.Duration
	PollTimeout       int
	MessagesPerSecond float64
	// IdleTimeout drops a chat's in-memory state after this long without
	// messages. Zero keeps chats forever.
	IdleTimeout       time.Duration
}

type Bot struct {
	api      *tgbotapi.BotAPI
	sender   sender
	storage  storage.Storage
	accounts *session.Accounts
	answerer answer.Answerer
	opts     Options
	throttle *rate.Limiter
	logger   *zap.Logger

	mu    sync.Mutex
	chats map[int64]*chat
	now   func() time.Time
}

func New(token string, opts Options, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := newBot(api, opts, logger)
	b.api = api
	logger.Info("Authorized on Telegram", zap.String("username", api.Self.UserName))
	return b, nil
}

func newBot(s sender, opts Options, logger *zap.Logger) *Bot {
	perSecond := opts.MessagesPerSecond
	if perSecond <= 0 {
		perSecond = 25
	}

	return &Bot{
		sender:   s,
		storage:  opts.Storage,
		accounts: session.NewAccounts(opts.Storage, logger),
		answerer: opts.Answerer,
		opts:     opts,
		throttle: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:   logger,
		chats:    make(map[int64]*chat),
		now:      time.Now,
	}
}

// Start polls Telegram until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return errors.New("bot has no Telegram connection")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.opts.PollTimeout

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	var sweep <-chan time.Time
	if b.opts.IdleTimeout > 0 {
		ticker := time.NewTicker(sweepInterval(b.opts.IdleTimeout))
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			b.Close()
			return nil
		case <-sweep:
			b.evictIdle()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}

			go b.handleMessage(ctx, update.Message)
		}
	}
}

// Close ends every open conversation and drops pending notifications.
func (b *Bot) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range b.chats {
		c.close()
	}
	b.chats = make(map[int64]*chat)
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	c, err := b.chatFor(ctx, message.Chat.ID)
	if err != nil {
		b.logger.Error("Failed to load chat session",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't load your session. Please try again.")
		return
	}

	// Handle commands
	if message.IsCommand() {
		b.handleCommand(ctx, c, message)
		return
	}

	// Get content from message
	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}

	b.handleQuestion(ctx, c, message.MessageID, content)
}

func (b *Bot) handleQuestion(ctx context.Context, c *chat, replyToID int, content string) {
	replies, err := c.conversation().Send(ctx, content)
	if err != nil {
		switch {
		case apperr.KindOf(err) == apperr.KindQuota:
			b.sendMarkdown(c.id, escapeMarkdown(conversation.LockoutReply)+"\n\n/login · /signup")
		case apperr.KindOf(err) == apperr.KindValidation:
			b.sendMessage(c.id, apperr.UserMessage(err, "Please try again."))
		case errors.Is(err, conversation.ErrClosed):
			b.sendMessage(c.id, "Your session changed. Please send your question again.")
		default:
			b.logger.Error("Failed to send question",
				zap.Error(err),
				zap.Int64("chat_id", c.id))
			b.sendErrorMessage(c.id, "Sorry, I couldn't process your message. Please try again.")
		}
		return
	}

	b.sendTyping(c.id)

	reply, ok := <-replies
	if !ok {
		// The conversation was replaced while the answer was in flight.
		return
	}

	text := formatReply(reply)
	if remaining, err := c.limiter.Remaining(ctx); err == nil && remaining >= 0 {
		text += "\n\n" + escapeMarkdown(fmt.Sprintf("(%d free messages left)", remaining))
	}

	if err := b.sendLong(c.id, replyToID, text); err != nil {
		b.logger.Error("Failed to send answer",
			zap.Error(err),
			zap.Int64("chat_id", c.id))
	}
}

func (b *Bot) chatFor(ctx context.Context, chatID int64) (*chat, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.chats[chatID]; ok {
		c.lastSeen = b.now()
		return c, nil
	}

	local := storage.ForChat(b.storage, chatID)
	sess := session.NewStore(b.accounts, local, b.logger.With(zap.Int64("chat_id", chatID)))
	// The session is read before the first update is handled. An unreadable
	// record leaves the chat signed out.
	if err := sess.Load(ctx); err != nil {
		b.logger.Warn("Failed to load session, continuing signed out",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}

	notifier := notify.New(b.logger,
		notify.WithDefaultDuration(b.toastDuration()),
		notify.WithSink(func(toast models.Toast) { b.sendToast(chatID, toast) }))

	c := &chat{
		id:       chatID,
		session:  sess,
		notifier: notifier,
		limiter:  ratelimit.New(sess, local, notifier, b.opts.DemoLimit, b.logger),
		answerer: b.answerer,
		logger:   b.logger.With(zap.Int64("chat_id", chatID)),
		lastSeen: b.now(),
	}
	c.reset()
	b.chats[chatID] = c
	return c, nil
}

// evictIdle drops chats that have been quiet for longer than IdleTimeout.
// Sessions and demo counters are persisted and reload on the next message;
// only the conversation log is lost. Chats with a query in flight are kept.
func (b *Bot) evictIdle() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-b.opts.IdleTimeout)
	evicted := 0
	for id, c := range b.chats {
		if c.lastSeen.After(cutoff) || c.conversation().Pending() {
			continue
		}
		c.close()
		delete(b.chats, id)
		evicted++
	}

	if evicted > 0 {
		b.logger.Info("Evicted idle chats",
			zap.Int("evicted", evicted),
			zap.Int("remaining", len(b.chats)))
	}
	return evicted
}

func sweepInterval(idle time.Duration) time.Duration {
	if interval := idle / 4; interval > time.Minute {
		return interval
	}
	return time.Minute
}

func (b *Bot) toastDuration() time.Duration {
	if b.opts.ToastDuration > 0 {
		return b.opts.ToastDuration
	}
	return notify.DefaultDuration
}

// chat is the per-chat state: the Telegram counterpart of one browser.
type chat struct {
	id       int64
	session  *session.Store
	notifier *notify.Channel
	limiter  *ratelimit.Limiter
	answerer answer.Answerer
	logger   *zap.Logger
	// lastSeen is guarded by Bot.mu.
	lastSeen time.Time

	mu   sync.Mutex
	conv *conversation.Conversation
}

func (c *chat) conversation() *conversation.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv
}

// reset closes the current conversation, if any, and starts a new one
// greeting the signed-in user.
func (c *chat) reset() *conversation.Conversation {
	var name string
	if user := c.session.User(); user != nil {
		name = user.Name
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conv != nil {
		c.conv.Close()
	}
	c.conv = conversation.New(conversation.Options{
		Answerer: c.answerer,
		Gate:     c.limiter,
		UserName: name,
		Logger:   c.logger,
	})
	return c.conv
}

func (c *chat) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conv != nil {
		c.conv.Close()
	}
	c.notifier.Close()
}
