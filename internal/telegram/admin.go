package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/suspectuso/tiergate/internal/export"
	"github.com/suspectuso/tiergate/internal/flow"
	"github.com/suspectuso/tiergate/internal/storage"
)

func (b *Bot) handlePromoteStart(ctx context.Context, msg *models.Message) {
	if err := b.sessions.Set(ctx, msg.From.ID, &flow.Session{Step: flow.StepPromoteForward}); err != nil {
		b.logger(ctx).Error("set session", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, tryLaterText, nil)
		return
	}

	b.sendMessage(ctx, msg.Chat.ID, "Forward any message from the user you want to promote.", nil)
}

func (b *Bot) handlePromoteForward(ctx context.Context, msg *models.Message) {
	adminID := msg.From.ID

	target := forwardedSender(msg)
	if target == 0 {
		b.clearSession(ctx, adminID)
		b.sendMessage(ctx, msg.Chat.ID, "❌ The sender's identity is hidden by their privacy settings.", nil)
		return
	}

	levels, err := b.storage.ListLevels(ctx)
	if err != nil {
		b.logger(ctx).Error("list levels", "error", err)
		b.clearSession(ctx, adminID)
		b.sendMessage(ctx, msg.Chat.ID, tryLaterText, nil)
		return
	}
	if len(levels) == 0 {
		b.clearSession(ctx, adminID)
		b.sendMessage(ctx, msg.Chat.ID, "No levels are configured yet.", nil)
		return
	}

	state := &flow.Session{Step: flow.StepPromoteLevel, PromoteTarget: target}
	if err := b.sessions.Set(ctx, adminID, state); err != nil {
		b.logger(ctx).Error("set session", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, tryLaterText, nil)
		return
	}

	b.sendMessage(ctx, msg.Chat.ID,
		fmt.Sprintf("Choose the new level for user <code>%d</code>:", target),
		LevelsKeyboard(levels, callbackPromote, b.cfg.PaymentAsset),
	)
}

func (b *Bot) handlePromoteChoice(ctx context.Context, cb *models.CallbackQuery, arg string) {
	adminID := cb.From.ID

	level, err := strconv.Atoi(arg)
	if err != nil {
		b.answerCallback(ctx, cb, "")
		return
	}

	state, err := b.sessions.Get(ctx, adminID)
	if err != nil || state.Step != flow.StepPromoteLevel || state.PromoteTarget == 0 {
		b.answerCallback(ctx, cb, "Forward a message from the user first.")
		return
	}
	target := state.PromoteTarget

	if _, err := b.storage.GetLevel(ctx, level); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			b.logger(ctx).Error("get level", "level", level, "error", err)
		}
		b.answerCallback(ctx, cb, "This level is not available.")
		return
	}

	err = b.storage.SetUserLevel(ctx, target, level)
	if errors.Is(err, storage.ErrNotFound) {
		b.clearSession(ctx, adminID)
		b.answerCallback(ctx, cb, "This user has not registered.")
		return
	}
	if err != nil {
		b.logger(ctx).Error("set user level", "target", target, "error", err)
		b.answerCallback(ctx, cb, tryLaterText)
		return
	}

	b.clearSession(ctx, adminID)
	b.logger(ctx).Info("user promoted", "target", target, "level", level)

	notice := fmt.Sprintf("⬆️ Access level of user <code>%d</code> was raised to <b>%d</b>!", target, level)
	b.answerCallback(ctx, cb, fmt.Sprintf("User %d is now level %d.", target, level))
	b.sendMessage(ctx, adminID, notice, nil)

	if err := b.SendNotification(ctx, b.cfg.GroupID, notice); err != nil {
		b.logger(ctx).Error("broadcast promotion", "error", err)
	}
}

// forwardedSender returns the original author of a forwarded message, or 0
// when the message is not forwarded from a visible user
func forwardedSender(msg *models.Message) int64 {
	origin := msg.ForwardOrigin
	if origin == nil || origin.MessageOriginUser == nil {
		return 0
	}
	return origin.MessageOriginUser.SenderUser.ID
}

func (b *Bot) handleExport(ctx context.Context, msg *models.Message) {
	users, err := b.storage.ListUsers(ctx)
	if err != nil {
		b.logger(ctx).Error("list users", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, tryLaterText, nil)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteUsers(&buf, users); err != nil {
		b.logger(ctx).Error("write users csv", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, tryLaterText, nil)
		return
	}

	_, err = b.bot.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID: msg.Chat.ID,
		Document: &models.InputFileUpload{
			Filename: export.Filename(time.Now()),
			Data:     &buf,
		},
		Caption: fmt.Sprintf("%d registered users", len(users)),
	})
	if err != nil {
		b.logger(ctx).Error("send users csv", "error", err)
		return
	}

	b.logger(ctx).Info("users exported", "count", len(users))
}
