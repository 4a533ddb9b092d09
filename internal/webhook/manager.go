package webhook

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Registrar is the part of the Bot API that manages webhooks
type Registrar interface {
	SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error)
	DeleteWebhook(ctx context.Context, params *bot.DeleteWebhookParams) (bool, error)
	GetWebhookInfo(ctx context.Context) (*models.WebhookInfo, error)
}

// Manager keeps the Telegram webhook registration in line with the config
type Manager struct {
	api    Registrar
	url    string
	secret string
	log    *slog.Logger
}

// NewManager creates a new webhook manager. An empty publicURL means the
// bot polls and any registered webhook must be removed.
func NewManager(api Registrar, publicURL, secret string, log *slog.Logger) *Manager {
	url := ""
	if publicURL != "" {
		url = strings.TrimSuffix(publicURL, "/") + Path
	}

	return &Manager{
		api:    api,
		url:    url,
		secret: secret,
		log:    log,
	}
}

// Enabled reports whether updates arrive through the webhook
func (m *Manager) Enabled() bool {
	return m.url != ""
}

// Init registers the webhook, or deletes a stale one when polling
func (m *Manager) Init(ctx context.Context) error {
	if !m.Enabled() {
		if _, err := m.api.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
			return err
		}
		m.log.Info("webhook removed, using long polling")
		return nil
	}

	if _, err := m.api.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:            m.url,
		SecretToken:    m.secret,
		AllowedUpdates: []string{"message", "callback_query"},
	}); err != nil {
		return err
	}

	m.log.Info("webhook registered", "url", m.url)
	return nil
}

// SyncLoop periodically re-registers the webhook if Telegram lost it
func (m *Manager) SyncLoop(ctx context.Context, interval time.Duration) {
	if !m.Enabled() {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info("webhook sync loop started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.sync(ctx); err != nil {
				m.log.Error("sync webhook", "error", err)
			}
		}
	}
}

func (m *Manager) sync(ctx context.Context) error {
	info, err := m.api.GetWebhookInfo(ctx)
	if err != nil {
		return err
	}

	if info.URL == m.url {
		if info.LastErrorMessage != "" {
			m.log.Warn("webhook delivery error", "message", info.LastErrorMessage, "pending", info.PendingUpdateCount)
		}
		return nil
	}

	m.log.Warn("webhook drifted, re-registering", "registered", info.URL)
	return m.Init(ctx)
}
