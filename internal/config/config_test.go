package config

import "testing"

func TestLoadRequiresRedisURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without REDIS_URL")
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SEARCH_RETRY_MAX", "25")
	t.Setenv("DISCONNECT_GRACE_SEC", "5")
	t.Setenv("SEARCH_INTERVAL_MS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SearchRetryMax != 25 || cfg.DisconnectGraceSec != 5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.SearchIntervalMS != 1000 {
		t.Fatalf("bad value should keep default: %+v", cfg)
	}
	if cfg.APIListenAddr != ":8080" || cfg.WSListenAddr != ":8081" {
		t.Fatalf("listen defaults: %+v", cfg)
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := ParseRedisURL("redis://:secret@redis.internal:6380/2")
	if err != nil {
		t.Fatalf("ParseRedisURL: %v", err)
	}
	if opts.Addr != "redis.internal:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if _, err := ParseRedisURL("http://nope"); err == nil {
		t.Fatalf("non-redis scheme should fail")
	}
}
