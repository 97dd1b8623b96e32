package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"infopalbot/internal/api"
	"infopalbot/internal/catalog"
	"infopalbot/internal/clients"
	"infopalbot/internal/config"
	"infopalbot/internal/dialog"
	"infopalbot/internal/queue"
	"infopalbot/internal/repository"
	"infopalbot/internal/scheduler"
	"infopalbot/internal/storage"
	"infopalbot/internal/telegram"
)

func main() {
	cfg := config.Load()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cfg.Telegram.BotToken == "" {
		logrus.Fatal("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.Database.URL == "" {
		logrus.Fatal("DATABASE_URL is required")
	}

	db, err := storage.Open(cfg.Database)
	if err != nil {
		logrus.WithField("error", err).Fatal("Failed to open database")
	}
	repo := repository.New(db)

	// Redis is optional: without it upstream responses are simply not cached.
	var redisCache *storage.RedisCache
	if cfg.Redis.Addr != "" {
		redisCache, err = storage.NewRedisCache(cfg.Redis.Addr)
		if err != nil {
			logrus.WithFields(logrus.Fields{"addr": cfg.Redis.Addr, "error": err}).Warn("Redis unavailable, running without response cache")
			redisCache = nil
		}
	}
	var cache clients.Cache
	if redisCache != nil {
		cache = redisCache
	}

	weather := clients.NewWeatherClient(cfg.APIKeys.Weather, cache)
	news := clients.NewNewsClient(cfg.APIKeys.News, cache)
	events := clients.NewEventsClient(cache)

	cities := catalog.Load(cfg.CitiesFile)

	q := queue.New(cfg.Delivery.QueueCapacity)
	sched := scheduler.New(repo, scheduler.Clients{Weather: weather, News: news, Events: events}, q)
	dialog.Setup(repo, sched, cities, time.Duration(cfg.Dialog.TimeoutSeconds)*time.Second)

	bot, err := telegram.New(cfg.Telegram.BotToken, repo, sched, weather, news, events)
	if err != nil {
		logrus.WithField("error", err).Fatal("Failed to start Telegram bot")
	}

	q.Start(cfg.Delivery.Workers, bot, func(n queue.Notification) {
		if n.SubscriptionID == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := repo.MarkSubscriptionSent(ctx, n.SubscriptionID, time.Now().UTC()); err != nil {
			logrus.WithFields(logrus.Fields{"subscription_id": n.SubscriptionID, "error": err}).Warn("Failed to record delivery time")
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		logrus.WithField("error", err).Fatal("Failed to start scheduler")
	}

	server := api.New(cfg.Server.Port, db, redisCache, sched, q)
	go func() {
		if err := server.Start(); err != nil {
			logrus.WithField("error", err).Error("Admin API stopped")
			stop()
		}
	}()

	go bot.Run(ctx)

	<-ctx.Done()
	logrus.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithField("error", err).Error("Admin API shutdown failed")
	}
	sched.Stop()
	q.Stop()
	logrus.Info("Bye")
}
