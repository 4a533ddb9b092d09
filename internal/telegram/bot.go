package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/suspectuso/tiergate/internal/config"
	"github.com/suspectuso/tiergate/internal/flow"
	"github.com/suspectuso/tiergate/internal/payment"
	"github.com/suspectuso/tiergate/internal/quota"
	"github.com/suspectuso/tiergate/internal/storage"
)

const tryLaterText = "⚠️ Something went wrong on our side. Please try again later."

// Bot wraps the telegram bot with handlers
type Bot struct {
	bot      *bot.Bot
	cfg      *config.Config
	storage  *storage.Storage
	quota    *quota.Policy
	verifier payment.Verifier
	sessions flow.Store
	log      *slog.Logger
}

// New creates a new telegram bot. Extra options are passed to the SDK.
func New(cfg *config.Config, store *storage.Storage, verifier payment.Verifier, sessions flow.Store, log *slog.Logger, extra ...bot.Option) (*Bot, error) {
	b := &Bot{
		cfg:      cfg,
		storage:  store,
		quota:    quota.NewPolicy(store),
		verifier: verifier,
		sessions: sessions,
		log:      log,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.messageHandler),
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, b.callbackHandler),
		bot.WithMiddlewares(b.logUpdates),
	}
	if cfg.WebhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(cfg.WebhookSecret))
	}
	opts = append(opts, extra...)

	tgBot, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.bot = tgBot
	return b, nil
}

// Start starts the bot polling
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// StartWebhook processes updates delivered through WebhookHandler
func (b *Bot) StartWebhook(ctx context.Context) {
	b.bot.StartWebhook(ctx)
}

// WebhookHandler returns the HTTP handler receiving webhook updates
func (b *Bot) WebhookHandler() http.HandlerFunc {
	return b.bot.WebhookHandler()
}

// GetBot returns the underlying bot instance
func (b *Bot) GetBot() *bot.Bot {
	return b.bot
}

// --- Middleware ---

type loggerKey struct{}

func (b *Bot) logUpdates(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
		kind, userID := describeUpdate(update)
		log := b.log.With(
			"trace_id", uuid.NewString(),
			"update_id", update.ID,
			"kind", kind,
			"user_id", userID,
		)
		ctx = context.WithValue(ctx, loggerKey{}, log)

		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.Error("handler panic", "panic", r)
			}
		}()

		next(ctx, tgBot, update)
		log.Debug("update handled", "duration", time.Since(start))
	}
}

func (b *Bot) logger(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return log
	}
	return b.log
}

func describeUpdate(update *models.Update) (string, int64) {
	switch {
	case update.CallbackQuery != nil:
		return "callback", update.CallbackQuery.From.ID
	case update.Message != nil && update.Message.From != nil:
		return "message", update.Message.From.ID
	case update.Message != nil:
		return "message", 0
	}
	return "other", 0
}

// --- Routing ---

func (b *Bot) messageHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	switch {
	case msg.Chat.ID == b.cfg.GroupID:
		b.handleGroupMessage(ctx, msg)
	case msg.Chat.Type == models.ChatTypePrivate:
		b.handlePrivateMessage(ctx, msg)
	}
}

func (b *Bot) handlePrivateMessage(ctx context.Context, msg *models.Message) {
	userID := msg.From.ID
	isAdmin := b.cfg.IsAdmin(userID)

	switch text := strings.TrimSpace(msg.Text); {
	case text == "/start" || strings.HasPrefix(text, "/start "):
		b.handleStart(ctx, msg)
		return
	case text == "/cancel":
		b.handleCancel(ctx, msg)
		return
	case text == ButtonProfile:
		b.handleProfile(ctx, msg)
		return
	case text == ButtonUpgrade:
		b.handleUpgradeMenu(ctx, msg)
		return
	case text == ButtonPromote && isAdmin:
		b.handlePromoteStart(ctx, msg)
		return
	case text == ButtonExport && isAdmin:
		b.handleExport(ctx, msg)
		return
	}

	state, err := b.sessions.Get(ctx, userID)
	if errors.Is(err, flow.ErrNoSession) {
		return
	}
	if err != nil {
		b.logger(ctx).Error("get session", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, tryLaterText, nil)
		return
	}

	switch {
	case state.Step.Registering():
		b.handleRegistrationInput(ctx, msg, state)
	case state.Step == flow.StepPaymentProof:
		b.handlePaymentProof(ctx, msg, state)
	case state.Step == flow.StepPromoteForward && isAdmin:
		b.handlePromoteForward(ctx, msg)
	case state.Step == flow.StepLevelChoice, state.Step == flow.StepPromoteLevel:
		b.sendMessage(ctx, msg.Chat.ID, "Please pick a level using the buttons above, or send /cancel.", nil)
	}
}

func (b *Bot) callbackHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery
	data := cb.Data

	switch {
	case strings.HasPrefix(data, callbackUpgrade):
		b.handleUpgradeChoice(ctx, cb, strings.TrimPrefix(data, callbackUpgrade))
	case strings.HasPrefix(data, callbackPromote) && b.cfg.IsAdmin(cb.From.ID):
		b.handlePromoteChoice(ctx, cb, strings.TrimPrefix(data, callbackPromote))
	default:
		b.logger(ctx).Warn("unknown callback", "data", data)
		b.answerCallback(ctx, cb, "")
	}
}

// --- Common handlers ---

func (b *Bot) handleStart(ctx context.Context, msg *models.Message) {
	userID := msg.From.ID

	if b.cfg.IsAdmin(userID) {
		b.clearSession(ctx, userID)
		b.sendMessage(ctx, msg.Chat.ID,
			"👋 Welcome, admin.\n\nUse the buttons below to promote users manually or export the member list.",
			AdminKeyboard(),
		)
		return
	}

	_, err := b.storage.UserLevel(ctx, userID)
	switch {
	case err == nil:
		b.clearSession(ctx, userID)
		b.sendMessage(ctx, msg.Chat.ID,
			"You are already registered.\n\nUse the buttons below to view your profile or upgrade your access level.",
			MemberKeyboard(),
		)
		return
	case !errors.Is(err, storage.ErrNotFound):
		b.logger(ctx).Error("get user level", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, tryLaterText, nil)
		return
	}

	if err := b.sessions.Set(ctx, userID, flow.StartRegistration()); err != nil {
		b.logger(ctx).Error("set session", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, tryLaterText, nil)
		return
	}

	b.sendMessage(ctx, msg.Chat.ID,
		"👋 Welcome!\n\n"+prompts[flow.StepSocialHandle],
		RemoveKeyboard(),
	)
}

func (b *Bot) handleCancel(ctx context.Context, msg *models.Message) {
	b.clearSession(ctx, msg.From.ID)
	b.sendMessage(ctx, msg.Chat.ID, "Cancelled.", nil)
}

func (b *Bot) handleProfile(ctx context.Context, msg *models.Message) {
	userID := msg.From.ID

	user, err := b.storage.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		b.sendMessage(ctx, msg.Chat.ID, notRegisteredText, nil)
		return
	}
	if err != nil {
		b.logger(ctx).Error("get user", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, tryLaterText, nil)
		return
	}

	text := fmt.Sprintf(
		"👤 <b>Your profile</b>\n\n"+
			"ID: <code>%d</code>\n"+
			"Access level: <b>%d</b>\n"+
			"Registered: %s",
		user.ID, user.AccessLevel, user.CreatedAt.UTC().Format("2006-01-02"),
	)
	b.sendMessage(ctx, msg.Chat.ID, text, nil)
}

// --- Helpers ---

const notRegisteredText = "You are not registered yet. Send /start to register first."

func (b *Bot) clearSession(ctx context.Context, userID int64) {
	if err := b.sessions.Clear(ctx, userID); err != nil {
		b.logger(ctx).Error("clear session", "error", err)
	}
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}

	_, err := b.bot.SendMessage(ctx, params)
	if err != nil {
		b.logger(ctx).Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) replyTo(ctx context.Context, msg *models.Message, text string) {
	_, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    msg.Chat.ID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		ReplyParameters: &models.ReplyParameters{
			MessageID:                msg.ID,
			AllowSendingWithoutReply: true,
		},
	})
	if err != nil {
		b.logger(ctx).Error("reply", "chat_id", msg.Chat.ID, "error", err)
	}
}

func (b *Bot) answerCallback(ctx context.Context, cb *models.CallbackQuery, text string) {
	_, err := b.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
		Text:            text,
	})
	if err != nil {
		b.logger(ctx).Error("answer callback", "error", err)
	}
}

// SendNotification sends a message to a user or chat
func (b *Bot) SendNotification(ctx context.Context, chatID int64, text string) error {
	_, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	return err
}
