// Package bot implements the Telegram command interface for managing
// monitored sites.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pagewatch/internal/config"
	"pagewatch/internal/model"
	"pagewatch/internal/notify"
	"pagewatch/internal/registry"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Runner checks a batch of sites on demand.
type Runner interface {
	CheckSites(ctx context.Context, sites []model.Site) []model.Outcome
}

// Bot is the Telegram bot that handles user commands.
type Bot struct {
	api      telegramAPI
	registry *registry.Registry
	runner   Runner
	cfg      *config.Config
	log      *slog.Logger
}

// New creates a Bot with the given Telegram token, registry, and config.
func New(token string, reg *registry.Registry, runner Runner, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:      api,
		registry: reg,
		runner:   runner,
		cfg:      cfg,
		log:      log,
	}, nil
}

// Sink returns a notification sink posting to the configured chat through
// this bot's connection.
func (b *Bot) Sink() *notify.TelegramSink {
	return notify.NewTelegramSink(b.api, b.cfg.TelegramChatID)
}

// SetRunner sets the runner used by /check. The scheduler needs the bot's
// sink before it can be built, so it is attached after construction.
func (b *Bot) SetRunner(r Runner) {
	b.runner = r
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, notify.Clip(text, 4096))
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "add":
		b.handleAdd(ctx, chatID, args)
	case "list":
		b.handleList(ctx, chatID)
	case "info":
		b.handleInfo(ctx, chatID, args)
	case "remove":
		b.handleRemove(ctx, chatID, args)
	case "rename":
		b.handleRename(ctx, chatID, args)
	case "interval":
		b.handleInterval(ctx, chatID, args)
	case cmdCheck:
		b.handleCheck(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
