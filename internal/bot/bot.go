// Package bot is the Telegram surface of the digest service. Each chat is an
// account whose owner id is derived from the chat id.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"rss_digest/internal/config"
	"rss_digest/internal/model"
	"rss_digest/internal/newsletter"
	"rss_digest/internal/refresh"
)

// maxMessageRunes stays under Telegram's 4096 character message limit.
const maxMessageRunes = 4000

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Service is the part of the newsletter service the bot drives.
type Service interface {
	Subscribe(ctx context.Context, owner, url string) (*model.Feed, error)
	Unsubscribe(ctx context.Context, owner string, feedID int64) error
	Feeds(ctx context.Context, owner string) ([]model.Feed, error)
	Feed(ctx context.Context, owner string, feedID int64) (*model.Feed, error)
	Collect(ctx context.Context, owner string, req newsletter.Request) (*refresh.Result, error)
	Generate(ctx context.Context, owner string, req newsletter.Request) (*newsletter.Result, error)
}

var _ Service = (*newsletter.Service)(nil)

// Bot is the Telegram bot that handles user commands.
type Bot struct {
	api telegramAPI
	svc Service
	cfg *config.Config
	log *slog.Logger
	wg  sync.WaitGroup
	// inline runs background work on the calling goroutine.
	inline bool
	now    func() time.Time
}

// New creates a Bot with the given Telegram token, service, and config.
func New(token string, svc Service, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api: api,
		svc: svc,
		cfg: cfg,
		log: log,
		now: time.Now,
	}, nil
}

// Owner returns the account id of a Telegram chat.
func Owner(chatID int64) string {
	return fmt.Sprintf("tg:%d", chatID)
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled
// and every in-flight digest has finished.
func (b *Bot) Run(ctx context.Context) {
	defer b.wg.Wait()

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
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.From == nil || !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat, splitting text that
// exceeds the message size limit.
func (b *Bot) SendMessage(chatID int64, text string) {
	for _, part := range SplitMessage(text, maxMessageRunes) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.DisableWebPagePreview = true
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send message", "chat_id", chatID, "error", err)
		}
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

// background runs slow work (fetching, generation) off the update loop.
func (b *Bot) background(fn func()) {
	if b.inline {
		fn()
		return
	}
	b.wg.Go(fn)
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
		b.background(func() { b.handleAdd(ctx, chatID, args) })
	case "list":
		b.handleList(ctx, chatID)
	case "info":
		b.handleInfo(ctx, chatID, args)
	case "remove":
		b.handleRemove(ctx, chatID, args)
	case cmdDigest:
		b.background(func() { b.handleDigest(ctx, chatID, args) })
	case cmdArticles:
		b.background(func() { b.handleArticles(ctx, chatID, args) })
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
