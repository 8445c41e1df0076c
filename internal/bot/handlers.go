package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pagewatch/internal/model"
	"pagewatch/internal/notify"
	"pagewatch/internal/registry"
	"pagewatch/internal/storage"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Page Watch!

Monitor web pages and get notified when their content changes.

Quick start:
1. /add <url> — start watching a page
2. /add <url> <css selector> — watch only part of a page
3. /list — see everything being watched

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Site management:
/add <url> [selector] — watch a page, optionally only the elements matching a CSS selector
/list — show all sites
/info <id> — site details
/remove <id|url> — stop watching a site
/rename <id> <name> — rename a site
/interval <id> <min> — set check interval (1-1440, 0 for the default)
/check [id] — check one site, or all sites, now`)
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args string) {
	rawURL, selector, err := ParseAddArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	site, err := b.registry.Add(ctx, registry.AddRequest{URL: rawURL, Selector: selector})
	switch {
	case errors.Is(err, registry.ErrDuplicateSite):
		b.reply(chatID, fmt.Sprintf("%s is already being watched.", rawURL))
		return
	case err != nil:
		b.reply(chatID, fmt.Sprintf("Failed to add site: %v", err))
		return
	}

	text := fmt.Sprintf("Site added!\n#%d %s (every %d min)", site.ID, site.Name, b.interval(site))
	if site.Selector != "" {
		text += "\nSelector: " + site.Selector
	}
	b.reply(chatID, text+"\nThe first check records a baseline. Use /check "+fmt.Sprint(site.ID)+" to run it now.")
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	sites, err := b.registry.List(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, notify.FormatSiteList(sites, b.cfg.CheckIntervalMinutes))
}

func (b *Bot) handleInfo(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /info <id>")
		return
	}

	site, err := b.registry.GetByID(ctx, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Site #%d not found.", id))
		return
	}

	msg := tgbotapi.NewMessage(chatID, notify.FormatSiteInfo(site, b.cfg.CheckIntervalMinutes))
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Check now", fmt.Sprintf("%s:%d", cmdCheck, id)),
			tgbotapi.NewInlineKeyboardButtonData("Delete", fmt.Sprintf("%s:%d", cbDeleteConfirm, id)),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send site info", "error", err)
	}
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /remove <id|url>")
		return
	}

	if id, err := ParseIDArg(args); err == nil {
		site, err := b.registry.RemoveByID(ctx, id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			b.reply(chatID, fmt.Sprintf("Site #%d not found.", id))
		case err != nil:
			b.reply(chatID, fmt.Sprintf("Error deleting site: %v", err))
		default:
			b.reply(chatID, fmt.Sprintf("Site #%d \"%s\" deleted.", id, site.Name))
		}
		return
	}

	removed, err := b.registry.Remove(ctx, args)
	switch {
	case err != nil:
		b.reply(chatID, fmt.Sprintf("Error deleting site: %v", err))
	case !removed:
		b.reply(chatID, fmt.Sprintf("%s is not being watched.", args))
	default:
		b.reply(chatID, fmt.Sprintf("%s deleted.", args))
	}
}

func (b *Bot) handleRename(ctx context.Context, chatID int64, args string) {
	id, name, err := ParseRenameArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	if _, err := b.registry.Rename(ctx, id, name); err != nil {
		b.replyUpdateError(chatID, id, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Site #%d renamed to \"%s\".", id, name))
}

func (b *Bot) handleInterval(ctx context.Context, chatID int64, args string) {
	id, mins, err := ParseIntervalArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	site, err := b.registry.SetInterval(ctx, id, mins)
	if err != nil {
		b.replyUpdateError(chatID, id, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Site #%d interval set to %d min.", id, b.interval(site)))
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64, args string) {
	var sites []model.Site
	if args == "" {
		all, err := b.registry.List(ctx)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		sites = all
	} else {
		id, err := ParseIDArg(args)
		if err != nil {
			b.reply(chatID, "Usage: /check [id]")
			return
		}
		site, err := b.registry.GetByID(ctx, id)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Site #%d not found.", id))
			return
		}
		sites = []model.Site{*site}
	}

	outcomes := b.runner.CheckSites(ctx, sites)
	b.reply(chatID, notify.FormatOutcomes(outcomes))
}

func (b *Bot) replyUpdateError(chatID, id int64, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("Site #%d not found.", id))
		return
	}
	b.reply(chatID, fmt.Sprintf("Error: %v", err))
}

func (b *Bot) interval(site *model.Site) int {
	if site.IntervalMinutes > 0 {
		return site.IntervalMinutes
	}
	return b.cfg.CheckIntervalMinutes
}
