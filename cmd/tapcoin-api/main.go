package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tapcoin/internal/api"
	"tapcoin/internal/auth"
	"tapcoin/internal/config"
	"tapcoin/internal/game"
	"tapcoin/internal/notify"
	"tapcoin/internal/store"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.LoadDotEnv()
	cfg, err := config.LoadAPIFromEnv()
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

	// The API never holds a gateway connection. Referral notices to Discord
	// players go out over REST; everything else is logged for the bot.
	dispatcher := notify.NewDispatcher(logger, cfg.NotifyRate, 0)
	dispatcher.Fallback(notify.LogSender{Log: logger})
	if cfg.DiscordToken != "" {
		dg, err := discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			logger.Error("discord session failed", "err", err)
			os.Exit(1)
		}
		dispatcher.Route("discord", notify.DiscordSender{Session: dg})
	}
	go dispatcher.Run(ctx)

	clock := clockwork.NewRealClock()
	tokens, err := auth.NewIssuer(cfg.AppSecret, cfg.SessionTTL, clock)
	if err != nil {
		logger.Error("token issuer init failed", "err", err)
		os.Exit(1)
	}
	gameSvc := game.NewService(st, logger,
		game.WithClock(clock),
		game.WithNotifier(dispatcher),
		game.WithLeaderboardCache(lbCache),
	)

	server := api.New(logger, tokens, gameSvc, cfg.RequestTimeout)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("tapcoin api listening", "addr", cfg.Addr, "store", cfg.Store.Driver)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
