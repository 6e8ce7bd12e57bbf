package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	APIURL        string
	FeedURL       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MaxSyncs      int
	Cooldown      time.Duration
	HTTPTimeout   time.Duration
	LogLevel      slog.Level
}

func FromEnv() Config {
	// Local development keeps its settings in a dotenv file; absence
	// is fine, real deployments set the environment directly.
	_ = godotenv.Load()

	to := 15 * time.Second
	if v := os.Getenv("HTTP_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			to = d
		}
	}
	lvl := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		lvl = slog.LevelDebug
	}
	return Config{
		Port:          envOr("PORT", "8080"),
		APIURL:        os.Getenv("API_URL"),
		FeedURL:       os.Getenv("FEED_URL"),
		RedisAddr:     envOr("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),
		MaxSyncs:      envInt("MAX_SYNCS", 3),
		Cooldown:      time.Duration(envInt("COOLDOWN_HOURS", 3)) * time.Hour,
		HTTPTimeout:   to,
		LogLevel:      lvl,
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envInt(k string, def int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}
