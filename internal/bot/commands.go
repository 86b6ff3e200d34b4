package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/legalmitra/mitra-bot/internal/apperr"
	"github.com/legalmitra/mitra-bot/internal/models"
	"github.com/legalmitra/mitra-bot/internal/session"
	"go.uber.org/zap"
)

const historyLimit = 10

var (
	errSignupUsage = errors.New("usage: /signup <name> <email> <password>")
	errLoginUsage  = errors.New("usage: /login <email> <password>")
)

func (b *Bot) handleCommand(ctx context.Context, c *chat, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(c)
	case "help":
		b.handleHelp(c)
	case "signup":
		b.handleSignup(ctx, c, message)
	case "login":
		b.handleLogin(ctx, c, message)
	case "logout":
		b.handleLogout(ctx, c)
	case "me":
		b.handleMe(c)
	case "history":
		b.handleHistory(c)
	case "quota":
		b.handleQuota(ctx, c)
	default:
		b.sendMessage(c.id, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(c *chat) {
	conv := c.reset()
	b.sendMessage(c.id, conv.Messages()[0].Content)
}

func (b *Bot) handleHelp(c *chat) {
	help := `Available commands:
/start - Start a new conversation
/help - Show this help message
/signup <name> <email> <password> - Create an account
/login <email> <password> - Log in
/logout - Log out
/me - Show your profile
/history - Show this conversation
/quota - Show your free messages left

Just describe your legal issue and I'll explain the relevant Indian laws, the steps you can take and the sections I relied on.

Legal Mitra is an AI assistant, not a lawyer.`

	b.sendMessage(c.id, help)
}

func (b *Bot) handleSignup(ctx context.Context, c *chat, message *tgbotapi.Message) {
	// The command carries a password; keep it out of the chat history.
	b.deleteMessage(c.id, message.MessageID)

	input, err := parseSignupArgs(message.CommandArguments())
	if err != nil {
		b.sendMessage(c.id, err.Error())
		return
	}

	if err := c.session.Signup(ctx, input); err != nil {
		b.reportAuthError(c, "Signup failed", err)
		return
	}

	b.logger.Info("User signed up", zap.Int64("chat_id", c.id))
	c.notifier.Post("Account created", fmt.Sprintf("Welcome to Legal Mitra, %s!", input.Name), models.ToastSuccess)
	b.handleStart(c)
}

func (b *Bot) handleLogin(ctx context.Context, c *chat, message *tgbotapi.Message) {
	b.deleteMessage(c.id, message.MessageID)

	email, password, err := parseLoginArgs(message.CommandArguments())
	if err != nil {
		b.sendMessage(c.id, err.Error())
		return
	}

	if err := c.session.Login(ctx, email, password); err != nil {
		b.reportAuthError(c, "Login failed", err)
		return
	}

	c.notifier.Post("Welcome back", "You are now logged in.", models.ToastSuccess)
	b.handleStart(c)
}

func (b *Bot) handleLogout(ctx context.Context, c *chat) {
	if err := c.session.Logout(ctx); err != nil {
		b.logger.Error("Failed to log out",
			zap.Error(err),
			zap.Int64("chat_id", c.id))
		b.sendErrorMessage(c.id, "Sorry, I couldn't log you out. Please try again.")
		return
	}

	c.notifier.Post("Logged out", "See you soon.", models.ToastInfo)
	b.handleStart(c)
}

func (b *Bot) handleMe(c *chat) {
	user, ok := b.requireUser(c)
	if !ok {
		return
	}

	text := fmt.Sprintf("*%s*\n%s\nMember since %s",
		escapeMarkdown(user.Name),
		escapeMarkdown(user.Email),
		escapeMarkdown(user.CreatedAt.Format("2 Jan 2006")))
	b.sendMarkdown(c.id, text)
}

func (b *Bot) handleHistory(c *chat) {
	messages := c.conversation().Messages()
	if len(messages) > historyLimit {
		messages = messages[len(messages)-historyLimit:]
	}

	response := "*Your conversation:*\n\n"
	for _, msg := range messages {
		author := "Legal Mitra"
		if msg.Role == models.RoleUser {
			author = "You"
		}
		response += fmt.Sprintf("*%s*\n%s\n\n", escapeMarkdown(author), escapeMarkdown(msg.Content))
	}

	b.sendMarkdown(c.id, response)
}

func (b *Bot) handleQuota(ctx context.Context, c *chat) {
	remaining, err := c.limiter.Remaining(ctx)
	if err != nil {
		b.logger.Error("Failed to read demo quota",
			zap.Error(err),
			zap.Int64("chat_id", c.id))
		b.sendErrorMessage(c.id, "Sorry, I couldn't check your quota.")
		return
	}

	if remaining < 0 {
		b.sendMessage(c.id, "You are logged in: unlimited messages.")
		return
	}
	b.sendMessage(c.id, fmt.Sprintf("You have %d of %d free messages left. /signup for unlimited access.", remaining, c.limiter.Max()))
}

// requireUser gates commands that need a signed-in user.
func (b *Bot) requireUser(c *chat) (*models.User, bool) {
	if c.session.Loading() {
		b.sendMessage(c.id, "Loading your session, please try again in a moment.")
		return nil, false
	}

	user := c.session.User()
	if user == nil {
		b.sendMessage(c.id, "Please /login or /signup first.")
		return nil, false
	}
	return user, true
}

func (b *Bot) reportAuthError(c *chat, title string, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindAuth, apperr.KindValidation:
		c.notifier.Post(title, apperr.UserMessage(err, title), models.ToastError)
	default:
		b.logger.Error(title,
			zap.Error(err),
			zap.Int64("chat_id", c.id))
		b.sendErrorMessage(c.id, "Sorry, something went wrong. Please try again later.")
	}
}

// parseSignupArgs reads "<name> <email> <password>". The name may contain
// spaces; the last two fields are the email and the password.
func parseSignupArgs(args string) (session.SignupInput, error) {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return session.SignupInput{}, errSignupUsage
	}

	n := len(fields)
	return session.SignupInput{
		Name:     strings.Join(fields[:n-2], " "),
		Email:    fields[n-2],
		Password: fields[n-1],
	}, nil
}

func parseLoginArgs(args string) (string, string, error) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "", "", errLoginUsage
	}
	return fields[0], fields[1], nil
}
