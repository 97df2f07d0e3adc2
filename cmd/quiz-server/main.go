package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	appcfg "github.com/park285/quizduel-backend/internal/config"
	"github.com/park285/quizduel-backend/internal/content"
	"github.com/park285/quizduel-backend/internal/gateway"
	"github.com/park285/quizduel-backend/internal/history"
	"github.com/park285/quizduel-backend/internal/httpapi"
	"github.com/park285/quizduel-backend/internal/match"
	"github.com/park285/quizduel-backend/internal/msgcat"
	"github.com/park285/quizduel-backend/internal/obslog"
	"github.com/park285/quizduel-backend/internal/solo"
	"github.com/park285/quizduel-backend/internal/transport"
	"github.com/park285/quizduel-backend/internal/users"
)

func main() {
	_ = godotenv.Load()

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	opts, err := appcfg.ParseRedisURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		log.Fatalf("redis ping error: %v", err)
	}
	cancelPing()

	cat, err := msgcat.New(cfg.MessageDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	contentStore := content.NewRedisStore(rdb)
	userDir := users.NewDirectory(rdb)
	matchStore := match.NewStore(rdb)
	resultStore := history.NewStore(rdb)

	hub := transport.NewHub()

	matchmaker := match.NewMatchmaker(matchStore, contentStore, userDir, match.MatchmakerConfig{
		SearchRetryMax: cfg.SearchRetryMax,
		SearchInterval: time.Duration(cfg.SearchIntervalMS) * time.Millisecond,
		VerifyRetryMax: cfg.VerifyRetryMax,
		VerifyDelay:    time.Duration(cfg.VerifyDelayMS) * time.Millisecond,
	})
	coordinator := match.NewCoordinator(matchStore, userDir, hub,
		time.Duration(cfg.DisconnectGraceSec)*time.Second)
	reconciler := history.NewReconciler(matchStore, resultStore, userDir, hub, history.ReconcilerConfig{
		PollInterval: time.Duration(cfg.HistoryPollMS) * time.Millisecond,
		PollRetryMax: cfg.HistoryRetryMax,
	})

	var archive *history.Archive
	if cfg.DatabaseURL != "" {
		archive, err = history.NewArchive(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive init error: %v", err)
		}
		reconciler.AttachArchive(archive)
		logger.Info("match archive enabled")
	} else {
		logger.Warn("DATABASE_URL not set, finished matches stay in redis only")
	}

	gateway.New(matchmaker, coordinator, reconciler, cat).Install(hub)

	soloSvc := solo.NewService(solo.NewStore(rdb), contentStore)
	api := httpapi.New(soloSvc, contentStore, matchStore, userDir, reconciler, cat, cfg.WebhookSecret)

	apiServer := &fasthttp.Server{
		Handler: api.Handler(),
		Name:    "quizduel-api",
	}
	go func() {
		logger.Info("api listening", zap.String("addr", cfg.APIListenAddr))
		if err := apiServer.ListenAndServe(cfg.APIListenAddr); err != nil {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/ws", hub.Handler())
	wsServer := &http.Server{Addr: cfg.WSListenAddr, Handler: mux}
	go func() {
		logger.Info("websocket listening", zap.String("addr", cfg.WSListenAddr))
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("websocket server error", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket shutdown error", zap.Error(err))
	}
	if err := apiServer.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("api shutdown error", zap.Error(err))
	}
	if archive != nil {
		_ = archive.Close()
	}
	_ = rdb.Close()
}
