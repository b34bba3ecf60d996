// Package telegrambot is the chat front-end: it receives Telegram updates by
// long polling and dispatches bot commands to the subscription service.
package telegrambot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ericfisherdev/releasewatch/internal/application"
)

// Reply texts.
const (
	replyFallback      = "Say /help"
	replyEmptyArgs     = "Empty message?"
	replyInternalError = "Something went wrong, please try again later"
)

// defaultPollTimeout is the long-polling timeout in seconds for getUpdates.
const defaultPollTimeout = 60

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot receives chat updates and answers bot commands.
type Bot struct {
	api         API
	subs        *application.SubscriptionService
	commands    *CommandTable
	pollTimeout int
}

// NewBot creates a Bot answering through api and managing subscriptions via subs.
func NewBot(api API, subs *application.SubscriptionService) *Bot {
	return &Bot{
		api:         api,
		subs:        subs,
		commands:    NewCommandTable(subs),
		pollTimeout: defaultPollTimeout,
	}
}

// Commands returns the bot's command table.
func (b *Bot) Commands() *CommandTable {
	return b.commands
}

// RegisterCommands publishes the command list to Telegram so clients can
// offer completion. Failure is not fatal to the bot.
func (b *Bot) RegisterCommands() error {
	cmds := make([]tgbotapi.BotCommand, 0, len(b.commands.List()))
	for _, c := range b.commands.List() {
		cmds = append(cmds, tgbotapi.BotCommand{Command: c.Name, Description: c.Description})
	}

	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(cmds...)); err != nil {
		return err
	}
	return nil
}

// Run receives updates until ctx is canceled. Messages are handled one at a
// time in arrival order. Run returns nil on shutdown.
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = b.pollTimeout

	updates := b.api.GetUpdatesChan(cfg)
	defer b.api.StopReceivingUpdates()

	slog.Info("telegram bot started", "commands", len(b.commands.List()))

	for {
		select {
		case <-ctx.Done():
			slog.Info("telegram bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("telegram update channel closed")
			}
			if update.Message == nil {
				continue
			}
			b.handleSafely(ctx, update.Message)
		}
	}
}

// handleSafely runs handleMessage, turning a panic into a logged error so one
// bad update cannot take down the bot.
func (b *Bot) handleSafely(ctx context.Context, msg *tgbotapi.Message) {
	defer func() {
		if v := recover(); v != nil {
			slog.Log(ctx, application.LevelCritical, "panic while handling telegram message",
				"panic", v,
				"chat_id", msg.Chat.ID,
			)
		}
	}()

	b.handleMessage(ctx, msg)
}

// handleMessage answers one incoming message. The sender is registered before
// any command runs.
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}

	externalID := msg.Chat.ID
	username := ""
	if msg.From != nil {
		externalID = msg.From.ID
		username = msg.From.UserName
	}

	logger := slog.With("chat_id", msg.Chat.ID, "user_id", externalID, "username", username)

	if _, err := b.api.Request(tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping)); err != nil {
		logger.Warn("failed to send chat action", "error", err)
	}

	cmd, ok := b.commands.Lookup(msg)
	if !ok {
		b.reply(logger, msg, replyFallback, false)
		return
	}

	args := strings.TrimSpace(msg.CommandArguments())
	if cmd.RequiresArgs && args == "" {
		b.reply(logger, msg, replyEmptyArgs, false)
		return
	}

	logger.Info("incoming message", "command", cmd.Name, "text", msg.Text)

	if _, err := b.subs.EnsureUser(ctx, externalID); err != nil {
		logger.Error("failed to register user", "error", err)
		b.reply(logger, msg, replyInternalError, false)
		return
	}

	answer, err := cmd.Handle(ctx, Request{ExternalID: externalID, Args: args})
	if err != nil {
		logger.Error("command failed", "command", cmd.Name, "error", err)
		answer = replyInternalError
	}

	b.reply(logger, msg, answer, cmd.DisablePreview)
}

// reply answers msg in its chat as a plain-text reply.
func (b *Bot) reply(logger *slog.Logger, msg *tgbotapi.Message, text string, disablePreview bool) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	out.DisableWebPagePreview = disablePreview

	logger.Info("outgoing message", "text", text)

	if _, err := b.api.Send(out); err != nil {
		logger.Error("failed to send reply", "error", err)
	}
}
