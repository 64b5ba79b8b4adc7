package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tapcoin/internal/auth"
	"tapcoin/internal/bot"
	"tapcoin/internal/config"
	"tapcoin/internal/game"
	"tapcoin/internal/notify"
	"tapcoin/internal/store"

	"github.com/jonboulle/clockwork"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.LoadDotEnv()
	cfg, err := config.LoadBotFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	st, closeStore, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("store open failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()
	lbCache, closeCache := store.LeaderboardCache(ctx, cfg.Store, logger)
	defer closeCache()

	clock := clockwork.NewRealClock()
	tokens, err := auth.NewIssuer(cfg.AppSecret, cfg.SessionTTL, clock)
	if err != nil {
		logger.Error("token issuer init failed", "err", err)
		os.Exit(1)
	}

	dispatcher := notify.NewDispatcher(logger, cfg.NotifyRate, 0)
	dispatcher.Fallback(notify.LogSender{Log: logger})
	gameSvc := game.NewService(st, logger,
		game.WithClock(clock),
		game.WithNotifier(dispatcher),
		game.WithLeaderboardCache(lbCache),
	)
	handler := bot.NewHandler(gameSvc, tokens, cfg.WebAppURL, logger)

	if cfg.DiscordToken != "" {
		dc, err := bot.NewDiscord(cfg.DiscordToken, handler, logger)
		if err != nil {
			logger.Error("discord init failed", "err", err)
			os.Exit(1)
		}
		if err := dc.Open(); err != nil {
			logger.Error("discord connect failed", "err", err)
			os.Exit(1)
		}
		defer dc.Close()
		dispatcher.Route("discord", notify.DiscordSender{Session: dc.Session()})
	}

	if cfg.WhatsAppEnabled {
		wa, err := bot.NewWhatsApp(ctx, cfg.WhatsAppDatabaseURL, handler, logger)
		if err != nil {
			logger.Error("whatsapp init failed", "err", err)
			os.Exit(1)
		}
		if err := wa.Connect(ctx); err != nil {
			logger.Error("whatsapp connect failed", "err", err)
			os.Exit(1)
		}
		defer wa.Disconnect()
		dispatcher.Route("wa", notify.WhatsAppSender{Client: wa.Client()})
	}

	go dispatcher.Run(ctx)

	reminders, err := bot.NewReminders(gameSvc, cfg.BonusSweepEvery, cfg.BonusSweepBatch, clock, logger)
	if err != nil {
		logger.Error("reminder init failed", "err", err)
		os.Exit(1)
	}
	reminders.Start()

	logger.Info("tapcoin bot running",
		"discord", cfg.DiscordToken != "",
		"whatsapp", cfg.WhatsAppEnabled,
		"bonus_sweep_every", cfg.BonusSweepEvery.String(),
	)
	<-ctx.Done()

	if err := reminders.Shutdown(); err != nil {
		logger.Warn("reminder shutdown", "err", err)
	}
	logger.Info("tapcoin bot shutdown")
}
