package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"skillforge/internal/checkout"
	"skillforge/internal/community"
	"skillforge/internal/config"
	"skillforge/internal/db"
	"skillforge/internal/gamification"
	internalhttp "skillforge/internal/http"
	"skillforge/internal/kv"
	"skillforge/internal/moderation"
	"skillforge/internal/notify"
	"skillforge/internal/profile"
	"skillforge/internal/remote"
	"skillforge/internal/session"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := kv.OpenSQLite(cfg.LocalDBPath)
	if err != nil {
		log.Fatalf("local store open failed: %v", err)
	}
	defer store.Close()

	notifier := notify.NewCenter(cfg.NotificationTTL)
	defer notifier.Close()

	// The hosted backend is optional: without it every flow runs on the
	// local store. A backend that is configured but unreachable is left to
	// the resolver's probe, which demotes it at runtime.
	var backend *remote.Backend
	if cfg.RemoteConfigured() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			sugar.Warnw("postgres unavailable, running local-only", "error", err)
		} else {
			defer pool.Close()
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
			})
			defer rdb.Close()
			backend = remote.New(pool, rdb, sugar, cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionTTL)
		}
	}

	// A nil *Backend must stay a nil interface for the resolver's checks.
	var sessionRemote session.Remote
	var profileRemote profile.Remote
	if backend != nil {
		sessionRemote = backend
		profileRemote = backend
	}

	profiles := profile.NewCache(profileRemote, store, sugar, cfg.SessionTimeout)
	resolver := session.NewResolver(sessionRemote, store, profiles, notifier, sugar, session.Timeouts{
		Probe:      cfg.ProbeTimeout,
		Session:    cfg.SessionTimeout,
		Auth:       cfg.AuthTimeout,
		LocalDelay: cfg.LocalAuthDelay,
		SessionTTL: cfg.SessionTTL,
	})

	state := resolver.Resolve(ctx)
	sugar.Infow("session resolved", "state", state)

	checkoutClient := checkout.NewClient(cfg.CheckoutURL, cfg.CheckoutTimeout)
	if !cfg.CheckoutConfigured() {
		sugar.Infow("checkout endpoint not configured, purchases disabled")
	}

	server := internalhttp.NewServer(
		cfg,
		resolver,
		profiles,
		gamification.NewService(store, sugar),
		community.NewService(store, sugar),
		moderation.NewService(store, notifier, sugar),
		notifier,
		checkoutClient,
		sugar,
	)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		sugar.Infow("skillforge listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("shutdown error", "error", err)
	}
}
