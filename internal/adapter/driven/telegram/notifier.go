// Package telegram delivers outgoing chat messages through the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ericfisherdev/releasewatch/internal/domain/model"
	"github.com/ericfisherdev/releasewatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Notifier)(nil)

// Sender is the subset of *tgbotapi.BotAPI used to deliver messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier implements driven.Notifier on top of a Telegram bot.
type Notifier struct {
	api    Sender
	policy *bluemonday.Policy
}

// NewNotifier creates a Notifier sending through api.
func NewNotifier(api Sender) *Notifier {
	return &Notifier{
		api:    api,
		policy: HTMLPolicy(),
	}
}

// HTMLPolicy allows only the tags Telegram accepts in HTML parse mode. Anything
// else is stripped so a stray tag cannot make the API reject the message.
func HTMLPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "strong", "i", "em", "u", "ins", "s", "strike", "del", "code", "pre")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "tg")
	p.RequireParseableURLs(true)
	return p
}

// SendMessage sends text to the chat of the given Telegram user. Private chats
// share the user's id, so externalID doubles as the chat id.
func (n *Notifier) SendMessage(ctx context.Context, externalID int64, text string, mode model.ParseMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(externalID, text)
	if mode == model.ParseModeHTML {
		msg.ParseMode = tgbotapi.ModeHTML
		msg.Text = n.policy.Sanitize(text)
	}

	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message to %d: %w", externalID, err)
	}

	slog.Debug("telegram message sent", "chat_id", externalID, "parse_mode", string(mode))
	return nil
}
