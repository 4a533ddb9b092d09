package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/suspectuso/tiergate/internal/quota"
)

// messageCategory maps a group message to its quota category
func messageCategory(msg *models.Message) (quota.Category, bool) {
	switch {
	case msg.Animation != nil:
		return quota.Animation, true
	case len(msg.Photo) > 0:
		return quota.Photo, true
	case msg.Video != nil:
		return quota.Video, true
	case msg.VideoNote != nil:
		return quota.VideoNote, true
	case msg.Voice != nil:
		return quota.Voice, true
	case msg.Text != "":
		return quota.Text, true
	}
	return "", false
}

// handleGroupMessage deletes group messages the sender is not allowed to post
func (b *Bot) handleGroupMessage(ctx context.Context, msg *models.Message) {
	// posts on behalf of a chat or channel have no member quota
	if msg.SenderChat != nil {
		return
	}

	category, ok := messageCategory(msg)
	if !ok {
		return
	}

	userID := msg.From.ID
	log := b.logger(ctx).With("category", category)

	decision, err := b.quota.CheckAndRecord(ctx, userID, category)
	if err != nil {
		log.Error("check quota", "error", err)
		b.deleteMessage(ctx, msg)
		return
	}

	switch decision {
	case quota.Allowed:
		return
	case quota.DeniedUnregistered:
		b.replyTo(ctx, msg, fmt.Sprintf(
			"User <code>%d</code>, please register with %s in a private chat before posting here.",
			userID, b.cfg.BotUsername,
		))
	default:
		b.replyTo(ctx, msg, fmt.Sprintf(
			"User <code>%d</code>, you have reached your %s message limit for your access level.",
			userID, category,
		))
	}

	log.Info("group message denied", "decision", decision.String())
	b.deleteMessage(ctx, msg)
}

func (b *Bot) deleteMessage(ctx context.Context, msg *models.Message) {
	_, err := b.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    msg.Chat.ID,
		MessageID: msg.ID,
	})
	if err != nil {
		b.logger(ctx).Error("delete message", "message_id", msg.ID, "error", err)
	}
}
