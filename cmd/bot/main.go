package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/suspectuso/tiergate/internal/config"
	"github.com/suspectuso/tiergate/internal/flow"
	"github.com/suspectuso/tiergate/internal/jobs"
	"github.com/suspectuso/tiergate/internal/payment"
	"github.com/suspectuso/tiergate/internal/storage"
	"github.com/suspectuso/tiergate/internal/telegram"
	"github.com/suspectuso/tiergate/internal/webhook"
)

func main() {
	// Load .env file
	envErr := godotenv.Load()

	// Load config
	cfg := config.Load()

	// Setup logger
	log, closeLog, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open log file:", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(log)

	if envErr != nil {
		log.Debug("no .env file found")
	}

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Initialize storage
	store, err := storage.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "driver", cfg.DBDriver)

	// Initialize payment verifier
	verifier, err := newVerifier(cfg)
	if err != nil {
		log.Error("init payment verifier", "error", err)
		os.Exit(1)
	}
	log.Info("payment verifier initialized", "network", cfg.PaymentNetwork, "asset", cfg.PaymentAsset)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize session store
	sessions, err := newSessionStore(ctx, cfg)
	if err != nil {
		log.Error("init session store", "error", err)
		os.Exit(1)
	}
	log.Info("session store initialized", "backend", cfg.SessionBackend)

	// Initialize telegram bot
	bot, err := telegram.New(cfg, store, verifier, sessions, log)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}
	log.Info("telegram bot initialized")

	// Register or remove the webhook
	webhookManager := webhook.NewManager(bot.GetBot(), cfg.WebhookURL, cfg.WebhookSecret, log)
	if err := webhookManager.Init(ctx); err != nil {
		log.Error("init webhook", "error", err)
		os.Exit(1)
	}

	// Start http server
	var updates http.Handler
	if webhookManager.Enabled() {
		updates = bot.WebhookHandler()
	}
	server := webhook.NewServer(updates, store, cfg.WebhookSecret, log)
	go func() {
		if err := server.Start(ctx, cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			log.Error("http server", "error", err)
		}
	}()

	// Start webhook sync loop
	go webhookManager.SyncLoop(ctx, 5*time.Minute)

	// Start message retention
	if cfg.MessageRetention > 0 {
		retention := jobs.NewRetention(store, cfg.MessageRetention, log)
		if err := retention.Start(cfg.RetentionSchedule); err != nil {
			log.Error("start message retention", "error", err)
			os.Exit(1)
		}
		defer retention.Stop()
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	if webhookManager.Enabled() {
		log.Info("processing webhook updates...")
		bot.StartWebhook(ctx)
		return
	}

	log.Info("starting bot polling...")
	bot.Start(ctx)
}

func newLogger(level, file string) (*slog.Logger, func(), error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = func() { f.Close() }
	}

	log := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl}))
	return log, closeFn, nil
}

func newVerifier(cfg *config.Config) (payment.Verifier, error) {
	expect := payment.Expectation{
		Asset:    cfg.PaymentAsset,
		Wallet:   cfg.WalletAddress,
		Decimals: cfg.PaymentDecimals,
	}

	switch strings.ToLower(cfg.PaymentNetwork) {
	case "tron":
		client := payment.NewClient(cfg.TronscanBaseURL, "", cfg.ExplorerRPS, cfg.ExplorerTimeout)
		return payment.NewTronscanVerifier(client, expect), nil
	case "ton":
		client := payment.NewClient(cfg.TonAPIBaseURL, cfg.TonAPIKey, cfg.ExplorerRPS, cfg.ExplorerTimeout)
		return payment.NewTonAPIVerifier(client, expect), nil
	}
	return nil, fmt.Errorf("unsupported payment network %q", cfg.PaymentNetwork)
}

func newSessionStore(ctx context.Context, cfg *config.Config) (flow.Store, error) {
	if cfg.SessionBackend != "redis" {
		return flow.NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return flow.NewRedisStore(client, cfg.SessionTTL), nil
}
