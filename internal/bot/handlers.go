package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"rss_digest/internal/filter"
	"rss_digest/internal/newsletter"
	"rss_digest/internal/refresh"
	"rss_digest/internal/storage"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to RSS Digest Bot!

Subscribe to RSS/Atom feeds and get an AI-written newsletter of what they published.

Quick start:
1. /add <url> - subscribe to a feed
2. /articles - preview the last week's articles
3. /digest - write a newsletter from the last 7 days

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Feeds:
/add <url> - subscribe to an RSS/Atom feed
/list - show your feeds
/info <id> - feed details
/remove <id> - unsubscribe from a feed

Newsletters:
/digest [days] [ids...] [+word] [-word] - write a newsletter
/articles [days] [ids...] [+word] [-word] - preview the articles a digest would use

Days default to 7 and feeds to all of yours.
+word keeps only articles mentioning the word, -word drops them.
Add -s title|content|all before the words to choose where they are matched.`)
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /add <url>")
		return
	}

	feed, err := b.svc.Subscribe(ctx, Owner(chatID), args)
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		b.reply(chatID, "You are already subscribed to this feed.")
		return
	case errors.Is(err, newsletter.ErrInvalidFeed):
		b.reply(chatID, fmt.Sprintf("Not a usable feed: %v", err))
		return
	case err != nil:
		b.log.Error("subscribe", "chat_id", chatID, "url", args, "error", err)
		b.reply(chatID, "Failed to save feed, please try again later.")
		return
	}

	b.reply(chatID, fmt.Sprintf("Feed added!\n#%d %s\nIts articles will be fetched with your next /digest.", feed.ID, feed.URL))
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	feeds, err := b.svc.Feeds(ctx, Owner(chatID))
	if err != nil {
		b.log.Error("list feeds", "chat_id", chatID, "error", err)
		b.reply(chatID, "Failed to load feeds.")
		return
	}
	b.reply(chatID, FormatFeedList(feeds))
}

func (b *Bot) handleInfo(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /info <id>")
		return
	}

	feed, err := b.svc.Feed(ctx, Owner(chatID), id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Feed #%d not found.", id))
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatFeedInfo(feed))
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Digest (7 days)", fmt.Sprintf("%s:%d", cmdDigest, id)),
			tgbotapi.NewInlineKeyboardButtonData("Remove", fmt.Sprintf("%s:%d", cbDeleteConfirm, id)),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send feed info", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /remove <id>")
		return
	}
	b.confirmDelete(ctx, chatID, id)
}

func (b *Bot) deleteFeed(ctx context.Context, chatID, id int64) {
	feed, err := b.svc.Feed(ctx, Owner(chatID), id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Feed #%d not found.", id))
		return
	}

	if err := b.svc.Unsubscribe(ctx, Owner(chatID), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.reply(chatID, fmt.Sprintf("Feed #%d not found.", id))
			return
		}
		b.log.Error("unsubscribe", "chat_id", chatID, "feed_id", id, "error", err)
		b.reply(chatID, "Error deleting feed.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Feed #%d \"%s\" deleted.", id, feed.DisplayName()))
}

func (b *Bot) handleDigest(ctx context.Context, chatID int64, args string) {
	req, err := ParseDigestArgs(args, b.now())
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	b.digest(ctx, chatID, req)
}

func (b *Bot) digest(ctx context.Context, chatID int64, req newsletter.Request) {
	b.reply(chatID, "Collecting articles and writing your newsletter, this can take a minute...")

	res, err := b.svc.Generate(ctx, Owner(chatID), req)
	if err != nil {
		b.replyError(chatID, "generate newsletter", err)
		return
	}
	b.reply(chatID, FormatNewsletter(res.Newsletter, res.Collected.Summary))
}

func (b *Bot) handleArticles(ctx context.Context, chatID int64, args string) {
	req, err := ParseDigestArgs(args, b.now())
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	res, err := b.svc.Collect(ctx, Owner(chatID), req)
	if err != nil {
		b.replyError(chatID, "collect articles", err)
		return
	}
	b.reply(chatID, FormatArticles(res, previewArticles))
}

// replyError turns a digest failure into a user-facing reply.
func (b *Bot) replyError(chatID int64, op string, err error) {
	var noContent *refresh.NoContentError
	switch {
	case errors.As(err, &noContent):
		b.reply(chatID, FormatNoContent(noContent.Summary))
	case errors.Is(err, filter.ErrInvalidRule):
		b.reply(chatID, fmt.Sprintf("Invalid filter: %v", err))
	case errors.Is(err, context.DeadlineExceeded):
		b.reply(chatID, "Writing the newsletter took too long. Try fewer feeds or a shorter period.")
	default:
		b.log.Error(op, "chat_id", chatID, "error", err)
		b.reply(chatID, "Something went wrong while writing your newsletter. Please try again later.")
	}
}
