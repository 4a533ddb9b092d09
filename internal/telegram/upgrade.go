package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"

	"github.com/go-telegram/bot/models"
	"github.com/suspectuso/tiergate/internal/flow"
	"github.com/suspectuso/tiergate/internal/payment"
	"github.com/suspectuso/tiergate/internal/storage"
)

func (b *Bot) handleUpgradeMenu(ctx context.Context, msg *models.Message) {
	userID := msg.From.ID

	current, err := b.storage.UserLevel(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		b.sendMessage(ctx, msg.Chat.ID, notRegisteredText, nil)
		return
	}
	if err != nil {
		b.logger(ctx).Error("get user level", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, tryLaterText, nil)
		return
	}

	levels, err := b.storage.LevelsAbove(ctx, current)
	if err != nil {
		b.logger(ctx).Error("list levels", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, tryLaterText, nil)
		return
	}
	if len(levels) == 0 {
		b.clearSession(ctx, userID)
		b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf("You already have the highest access level (<b>%d</b>).", current), nil)
		return
	}

	if err := b.sessions.Set(ctx, userID, &flow.Session{Step: flow.StepLevelChoice}); err != nil {
		b.logger(ctx).Error("set session", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, tryLaterText, nil)
		return
	}

	b.sendMessage(ctx, msg.Chat.ID,
		fmt.Sprintf("Your current level is <b>%d</b>. Choose the level you want:", current),
		LevelsKeyboard(levels, callbackUpgrade, b.cfg.PaymentAsset),
	)
}

func (b *Bot) handleUpgradeChoice(ctx context.Context, cb *models.CallbackQuery, arg string) {
	userID := cb.From.ID

	target, err := strconv.Atoi(arg)
	if err != nil {
		b.answerCallback(ctx, cb, "")
		return
	}

	current, err := b.storage.UserLevel(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		b.answerCallback(ctx, cb, notRegisteredText)
		return
	}
	if err != nil {
		b.logger(ctx).Error("get user level", "error", err)
		b.answerCallback(ctx, cb, tryLaterText)
		return
	}

	level, err := b.storage.GetLevel(ctx, target)
	if errors.Is(err, storage.ErrNotFound) {
		b.answerCallback(ctx, cb, "This level is no longer available.")
		return
	}
	if err != nil {
		b.logger(ctx).Error("get level", "level", target, "error", err)
		b.answerCallback(ctx, cb, tryLaterText)
		return
	}

	if level.Level <= current {
		b.answerCallback(ctx, cb, fmt.Sprintf("You already have level %d.", current))
		return
	}

	state := &flow.Session{
		Step:    flow.StepPaymentProof,
		Upgrade: &flow.PendingUpgrade{Level: level.Level, Price: level.Price},
	}
	if err := b.sessions.Set(ctx, userID, state); err != nil {
		b.logger(ctx).Error("set session", "error", err)
		b.answerCallback(ctx, cb, tryLaterText)
		return
	}

	b.answerCallback(ctx, cb, "")

	text := fmt.Sprintf(
		"💳 <b>Upgrade to level %d</b>\n\n"+
			"Send exactly <b>%s %s</b> to:\n\n"+
			"<code>%s</code>\n\n"+
			"Then reply with the transaction hash.\n"+
			"⚠️ You get one attempt; if it fails, choose the level again.",
		level.Level, level.Price.String(), html.EscapeString(b.cfg.PaymentAsset), html.EscapeString(b.cfg.WalletAddress),
	)
	b.sendMessage(ctx, userID, text, nil)

	b.logger(ctx).Info("upgrade requested", "level", level.Level, "price", level.Price.String())
}

// handlePaymentProof checks a submitted transaction hash. The session is
// cleared after one attempt whatever the outcome.
func (b *Bot) handlePaymentProof(ctx context.Context, msg *models.Message, state *flow.Session) {
	userID := msg.From.ID
	b.clearSession(ctx, userID)

	up := state.Upgrade
	if up == nil {
		b.sendMessage(ctx, msg.Chat.ID, "Please choose a level first.", nil)
		return
	}

	hash := payment.CleanHash(msg.Text)
	if hash == "" {
		b.sendMessage(ctx, msg.Chat.ID, "❌ That is not a transaction hash. Choose the level again to retry.", nil)
		return
	}

	log := b.logger(ctx).With("level", up.Level, "txn_hash", hash)

	_, err := b.storage.TransactionByHash(ctx, hash)
	switch {
	case err == nil:
		log.Warn("transaction hash replayed")
		b.sendMessage(ctx, msg.Chat.ID, alreadyUsedText, nil)
		return
	case !errors.Is(err, storage.ErrNotFound):
		log.Error("get transaction", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, tryLaterText, nil)
		return
	}

	paymentID, err := b.verifier.Verify(ctx, hash, up.Price)
	if err != nil {
		log.Warn("payment verification failed", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, verificationFailureText(err), nil)
		return
	}
	log = log.With("payment_id", paymentID)

	// a payment may be submitted under any of its hashes; it is redeemed
	// under its payment id
	err = b.storage.RedeemTransaction(ctx, userID, up.Level, paymentID)
	switch {
	case errors.Is(err, storage.ErrAlreadyRedeemed):
		log.Warn("transaction hash replayed")
		b.sendMessage(ctx, msg.Chat.ID, alreadyUsedText, nil)
		return
	case errors.Is(err, storage.ErrNotFound):
		b.sendMessage(ctx, msg.Chat.ID, notRegisteredText, nil)
		return
	case err != nil:
		log.Error("redeem transaction", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, tryLaterText, nil)
		return
	}

	log.Info("access level upgraded", "price", up.Price.String())

	b.sendMessage(ctx, msg.Chat.ID,
		fmt.Sprintf("✅ Payment of <b>%s %s</b> confirmed. Your access level is now <b>%d</b>!",
			up.Price.String(), html.EscapeString(b.cfg.PaymentAsset), up.Level),
		MemberKeyboard(),
	)
}

const alreadyUsedText = "❌ This transaction has already been used."

func verificationFailureText(err error) string {
	const retry = "\n\nChoose the level again to retry."
	switch {
	case errors.Is(err, payment.ErrNotFound):
		return "❌ Transaction not found. Make sure it is confirmed and the hash is correct." + retry
	case errors.Is(err, payment.ErrMismatch):
		return "❌ The transaction does not match the requested payment (asset, wallet or amount)." + retry
	default:
		return "❌ Could not verify the transaction right now." + retry
	}
}
