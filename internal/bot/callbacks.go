package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cmdDigest   = "digest"
	cmdArticles = "articles"

	cbDeleteConfirm = "delete_confirm"
	cbDelete        = "delete"
	cbNoop          = "noop"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	if !b.cfg.IsUserAllowed(cb.From.ID) {
		b.reply(chatID, "Access denied.")
		return
	}

	action, idStr, ok := strings.Cut(data, ":")
	if !ok {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}

	b.log.Info("callback",
		"action", action,
		"id", id,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cmdDigest:
		req := DigestRequest(b.now(), DefaultDays)
		req.FeedIDs = []int64{id}
		b.background(func() { b.digest(ctx, chatID, req) })
	case cbDeleteConfirm:
		b.confirmDelete(ctx, chatID, id)
	case cbDelete:
		b.deleteFeed(ctx, chatID, id)
	case cbNoop:
	}
}

func (b *Bot) confirmDelete(ctx context.Context, chatID, id int64) {
	feed, err := b.svc.Feed(ctx, Owner(chatID), id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Feed #%d not found.", id))
		return
	}
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Remove #%d \"%s\"? Its articles disappear from your digests.", id, feed.DisplayName()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes, remove", fmt.Sprintf("%s:%d", cbDelete, id)),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", cbNoop+":0"),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send delete confirmation", "error", err)
	}
}
