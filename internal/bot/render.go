package bot

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/legalmitra/mitra-bot/internal/models"
	"go.uber.org/zap"
)

var toastIcons = map[models.ToastType]string{
	models.ToastSuccess: "✅",
	models.ToastError:   "⚠️",
	models.ToastInfo:    "ℹ️",
}

// formatReply renders an assistant message as MarkdownV2: the answer, then
// the simplified breakdown, the action plan and the sources when present.
func formatReply(msg models.Message) string {
	var sb strings.Builder
	sb.WriteString(escapeMarkdown(msg.Content))

	data := msg.Data
	if data == nil {
		return sb.String()
	}

	if data.SimplifiedAnswer != "" {
		sb.WriteString("\n\n*Simplified Breakdown*\n")
		sb.WriteString(escapeMarkdown(data.SimplifiedAnswer))
	}

	if len(data.ActionSteps) > 0 {
		sb.WriteString("\n\n*Action Plan*")
		for i, step := range data.ActionSteps {
			sb.WriteString(fmt.Sprintf("\n%d\\. %s", i+1, escapeMarkdown(step.Description)))
		}
	}

	if len(data.Sources) > 0 {
		sb.WriteString("\n\n*Sources*")
		for _, source := range data.Sources {
			label := strings.TrimSpace(source.Title + " " + source.Section)
			sb.WriteString("\n⚖️ " + escapeMarkdown(label))
		}
	}

	return sb.String()
}

func formatToast(toast models.Toast) string {
	text := toastIcons[toast.Type] + " *" + escapeMarkdown(toast.Title) + "*"
	if toast.Message != "" {
		text += "\n" + escapeMarkdown(toast.Message)
	}
	return text
}

// escapeMarkdown escapes special characters for MarkdownV2
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

// unescapeMarkdown undoes escapeMarkdown.
func unescapeMarkdown(text string) string {
	var sb strings.Builder
	escaped := false
	for _, r := range text {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		sb.WriteRune(r)
	}
	return sb.String()
}

// splitMessage cuts text into chunks of at most limit bytes. Cuts fall on
// line breaks where possible; a longer line is cut between runes, never
// right after an escaping backslash.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if current.Len()+len(line) <= limit {
			current.WriteString(line)
			continue
		}
		flush()
		for len(line) > limit {
			cut := cutPoint(line, limit)
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		current.WriteString(line)
	}
	flush()

	out := chunks[:0]
	for _, chunk := range chunks {
		if chunk = strings.TrimRight(chunk, "\n"); chunk != "" {
			out = append(out, chunk)
		}
	}
	return out
}

// cutPoint returns the largest index <= limit that is a rune boundary and
// does not leave an odd run of trailing backslashes.
func cutPoint(line string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	for cut > 0 {
		backslashes := 0
		for i := cut - 1; i >= 0 && line[i] == '\\'; i-- {
			backslashes++
		}
		if backslashes%2 == 0 {
			break
		}
		cut--
	}
	if cut == 0 {
		// limit is narrower than the first rune.
		_, size := utf8.DecodeRuneInString(line)
		cut = size
	}
	return cut
}

// maxMessageLength is Telegram's limit on message text. Chunks are measured
// in bytes, which never undercounts Telegram's UTF-16 length.
const maxMessageLength = 4096

// send waits for the outbound throttle before calling Telegram.
func (b *Bot) send(c tgbotapi.Chattable) error {
	if err := b.throttle.Wait(context.Background()); err != nil {
		return err
	}
	_, err := b.sender.Send(c)
	return err
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if err := b.send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	if err := b.sendLong(chatID, 0, text); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

// sendLong sends MarkdownV2 text split into messages Telegram accepts. Only
// the first chunk replies to replyToID. A chunk Telegram refuses to parse is
// resent as plain text.
func (b *Bot) sendLong(chatID int64, replyToID int, text string) error {
	for i, chunk := range splitMessage(text, maxMessageLength) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = tgbotapi.ModeMarkdownV2
		if i == 0 {
			msg.ReplyToMessageID = replyToID
		}
		if err := b.send(msg); err != nil {
			b.logger.Warn("MarkdownV2 message rejected, resending as plain text",
				zap.Error(err),
				zap.Int64("chat_id", chatID))

			msg.Text = unescapeMarkdown(chunk)
			msg.ParseMode = ""
			if err := b.send(msg); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if err := b.send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendToast(chatID int64, toast models.Toast) {
	msg := tgbotapi.NewMessage(chatID, formatToast(toast))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableNotification = toast.Type == models.ToastInfo
	if err := b.send(msg); err != nil {
		b.logger.Error("Failed to send notification",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
			zap.String("title", toast.Title))
	}
}

func (b *Bot) sendTyping(chatID int64) {
	if _, err := b.sender.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug("Failed to send typing action", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) deleteMessage(chatID int64, messageID int) {
	if _, err := b.sender.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.logger.Warn("Failed to delete credentials message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
