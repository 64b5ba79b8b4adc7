package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type StoreConfig struct {
	// Driver is one of postgres, sqlite or memory.
	Driver      string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string
	CacheTTL    time.Duration
}

type APIConfig struct {
	Addr           string
	Store          StoreConfig
	AppSecret      string
	SessionTTL     time.Duration
	DiscordToken   string
	NotifyRate     float64
	LogLevel       slog.Level
	RequestTimeout time.Duration
}

type BotConfig struct {
	Store               StoreConfig
	AppSecret           string
	SessionTTL          time.Duration
	WebAppURL           string
	DiscordToken        string
	WhatsAppEnabled     bool
	WhatsAppDatabaseURL string
	NotifyRate          float64
	BonusSweepEvery     time.Duration
	BonusSweepBatch     int
	LogLevel            slog.Level
}

type CLIConfig struct {
	APIBaseURL string
}

// LoadDotEnv reads .env from the working directory when present. Variables
// already set in the environment win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("TAPCOIN_API_ADDR", ":8080")
	}

	store, err := loadStore()
	if err != nil {
		return APIConfig{}, err
	}
	cfg := APIConfig{
		Addr:           addr,
		Store:          store,
		AppSecret:      strings.TrimSpace(os.Getenv("APP_SECRET")),
		SessionTTL:     envDurationDefault("SESSION_TTL", 30*24*time.Hour),
		DiscordToken:   strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		NotifyRate:     envFloatDefault("NOTIFY_RATE_PER_SEC", 5),
		LogLevel:       envLevelDefault("LOG_LEVEL", slog.LevelInfo),
		RequestTimeout: envDurationDefault("TAPCOIN_REQUEST_TIMEOUT", 30*time.Second),
	}
	if cfg.AppSecret == "" {
		return cfg, fmt.Errorf("APP_SECRET is required")
	}
	return cfg, nil
}

func LoadBotFromEnv() (BotConfig, error) {
	store, err := loadStore()
	if err != nil {
		return BotConfig{}, err
	}
	cfg := BotConfig{
		Store:               store,
		AppSecret:           strings.TrimSpace(os.Getenv("APP_SECRET")),
		SessionTTL:          envDurationDefault("SESSION_TTL", 30*24*time.Hour),
		WebAppURL:           strings.TrimRight(strings.TrimSpace(os.Getenv("WEBAPP_URL")), "/"),
		DiscordToken:        strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		WhatsAppEnabled:     envBoolDefault("WHATSAPP_ENABLED", false),
		WhatsAppDatabaseURL: envDefault("WHATSAPP_DATABASE_URL", store.DatabaseURL),
		NotifyRate:          envFloatDefault("NOTIFY_RATE_PER_SEC", 5),
		BonusSweepEvery:     envDurationDefault("BONUS_SWEEP_EVERY", 15*time.Minute),
		BonusSweepBatch:     envIntDefault("BONUS_SWEEP_BATCH", 200),
		LogLevel:            envLevelDefault("LOG_LEVEL", slog.LevelInfo),
	}
	if cfg.AppSecret == "" {
		return cfg, fmt.Errorf("APP_SECRET is required")
	}
	if cfg.DiscordToken == "" && !cfg.WhatsAppEnabled {
		return cfg, fmt.Errorf("set DISCORD_BOT_TOKEN or WHATSAPP_ENABLED=true")
	}
	if cfg.WhatsAppEnabled && cfg.WhatsAppDatabaseURL == "" {
		return cfg, fmt.Errorf("WHATSAPP_DATABASE_URL (or DATABASE_URL) is required for WhatsApp")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("TAP_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func loadStore() (StoreConfig, error) {
	cfg := StoreConfig{
		Driver:      strings.ToLower(envDefault("STORE_DRIVER", "postgres")),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:  envDefault("SQLITE_PATH", "tapcoin.db"),
		RedisURL:    strings.TrimSpace(os.Getenv("REDIS_URL")),
		CacheTTL:    envDurationDefault("LEADERBOARD_CACHE_TTL", 5*time.Second),
	}
	switch cfg.Driver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL is required")
		}
	case "sqlite", "memory":
	default:
		return cfg, fmt.Errorf("unknown STORE_DRIVER %q (want postgres, sqlite or memory)", cfg.Driver)
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envLevelDefault(key string, fallback slog.Level) slog.Level {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		return fallback
	}
	return lvl
}
