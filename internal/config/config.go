package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

type AppConfig struct {
	RedisURL    string
	DatabaseURL string

	APIListenAddr string
	WSListenAddr  string

	WebhookSecret string
	MessageDir    string

	SearchRetryMax     int
	SearchIntervalMS   int
	VerifyRetryMax     int
	VerifyDelayMS      int
	HistoryPollMS      int
	HistoryRetryMax    int
	DisconnectGraceSec int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		APIListenAddr:      ":8080",
		WSListenAddr:       ":8081",
		SearchRetryMax:     10,
		SearchIntervalMS:   1000,
		VerifyRetryMax:     10,
		VerifyDelayMS:      500,
		HistoryPollMS:      1000,
		HistoryRetryMax:    10,
		DisconnectGraceSec: 30,
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.WebhookSecret = strings.TrimSpace(os.Getenv("SIGNING_SECRET"))
	cfg.MessageDir = strings.TrimSpace(os.Getenv("MESSAGE_DIR"))

	if v := strings.TrimSpace(os.Getenv("API_LISTEN_ADDR")); v != "" {
		cfg.APIListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("WS_LISTEN_ADDR")); v != "" {
		cfg.WSListenAddr = v
	}

	setPositive := func(env string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	setPositive("SEARCH_RETRY_MAX", &cfg.SearchRetryMax)
	setPositive("SEARCH_INTERVAL_MS", &cfg.SearchIntervalMS)
	setPositive("VERIFY_RETRY_MAX", &cfg.VerifyRetryMax)
	setPositive("VERIFY_DELAY_MS", &cfg.VerifyDelayMS)
	setPositive("HISTORY_POLL_MS", &cfg.HistoryPollMS)
	setPositive("HISTORY_RETRY_MAX", &cfg.HistoryRetryMax)
	setPositive("DISCONNECT_GRACE_SEC", &cfg.DisconnectGraceSec)

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	return cfg, nil
}

// ParseRedisURL turns a redis:// or rediss:// URL into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
