package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/phonginreallife/oncall-notifier/db"
	"github.com/phonginreallife/oncall-notifier/internal/config"
	"github.com/phonginreallife/oncall-notifier/internal/logger"
	"github.com/phonginreallife/oncall-notifier/router"
	"github.com/phonginreallife/oncall-notifier/services"
	"github.com/phonginreallife/oncall-notifier/workers"
)

func main() {
	cfg, err := config.Load(os.Getenv("ONCALL_CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level, cfg.Log.Format, "oncall-notifier")
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()
	zlog.Info("Configuration loaded", zap.Strings("sources", cfg.Sources))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, dialect, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pg.Close()
	zlog.Info("Connected to database", zap.String("dialect", string(dialect)))

	if err := db.Migrate(ctx, pg, dialect); err != nil {
		zlog.Fatal("Failed to apply schema", zap.Error(err))
	}

	// Initialize services
	settingsService := services.NewSettingsService(pg, zlog, cfg.SettingFallbacks())
	calendarService := services.NewCalendarService()
	ticketService := services.NewTicketService(pg)
	onCallService := services.NewOnCallService(pg, settingsService, calendarService)

	ateraClient := services.NewAteraClient(cfg.Atera.BaseURL, cfg.Atera.PageSize, cfg.Atera.Timeout, zlog)
	smsSender := services.NewTwilioSender(settingsService, cfg.Twilio.Timeout, zlog)
	notificationService := services.NewNotificationService(ticketService, onCallService, calendarService,
		smsSender, settingsService, cfg.Atera.TicketLinkBase, zlog)
	ingestor := services.NewTicketIngestor(pg, ateraClient, settingsService, ticketService,
		calendarService, notificationService, zlog)

	var cycleLock services.CycleLock
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			zlog.Fatal("Invalid Redis URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			zlog.Warn("Redis not reachable, cycles will be skipped until it is", zap.Error(err))
		}
		cycleLock = services.NewRedisCycleLock(rdb, cfg.Scheduler.LockKey, cfg.Scheduler.LockTTL, zlog)
		zlog.Info("Cross-instance cycle lock enabled", zap.String("key", cfg.Scheduler.LockKey))
	}

	ticketWorker := workers.NewTicketWorker(ingestor, settingsService, cycleLock, cfg.Scheduler.CycleTimeout, zlog)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticketWorker.StartTicketWorker(ctx)
	}()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: router.NewGinRouter(router.Deps{
			PG:       pg,
			Worker:   ticketWorker,
			Tickets:  ticketService,
			Coverage: onCallService,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error("HTTP server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zlog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("HTTP server shutdown failed", zap.Error(err))
	}

	ticketWorker.Stop()
	wg.Wait()
	zlog.Info("Stopped")
}
