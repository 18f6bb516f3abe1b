package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"renaissance-stewcall/common/database"
	"renaissance-stewcall/common/logger"
	mqttcommon "renaissance-stewcall/common/mqtt"
	rediscommon "renaissance-stewcall/common/redis"
	"renaissance-stewcall/internal/config"
	"renaissance-stewcall/internal/consumer"
	"renaissance-stewcall/internal/extractor"
	httpapi "renaissance-stewcall/internal/http"
	"renaissance-stewcall/internal/ledger"
	"renaissance-stewcall/internal/notifier"
	"renaissance-stewcall/internal/repository"
	"renaissance-stewcall/internal/service"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	// 1. config
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. logger
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "stewcall")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	extractor.SetShipZone(cfg.Upstream.ShipZone)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. redis (ledger backend and/or notification stream)
	var redisClient *redis.Client
	if cfg.Ledger.Backend == "redis" || cfg.Notify.RedisEnabled {
		redisClient = rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(ctx, redisClient); err != nil {
			log.Fatal("Failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer redisClient.Close()
	}

	// 4. ledger
	var store ledger.Store
	switch cfg.Ledger.Backend {
	case "redis":
		store = ledger.NewKVStore(ledger.NewRedisKVStore(redisClient), cfg.Ledger.RedisKey)
	default:
		store = ledger.NewFileStore(cfg.Ledger.Path)
	}
	alarmLedger := ledger.New(store, log, ledger.WithRetention(cfg.Ledger.Retention))
	alarmLedger.Load(ctx)

	// 5. notification sinks
	sinks := notifier.NewMulti(log, notifier.NewLogNotifier(log))
	if cfg.MQTT.Enabled {
		mqttClient, err := mqttcommon.NewClient(&cfg.MQTT.MQTTConfig, log)
		if err != nil {
			log.Warn("MQTT unavailable, handheld notifications disabled", zap.Error(err))
		} else {
			defer mqttClient.Disconnect()
			sinks.Add(notifier.NewMQTTNotifier(mqttClient, cfg.MQTT.Topic, cfg.MQTT.QoS))
		}
	}
	if cfg.Notify.RedisEnabled {
		sinks.Add(notifier.NewRedisStreamNotifier(redisClient, cfg.Notify.RedisStream, cfg.Notify.RedisMaxLen))
	}

	// 6. guest directory (optional)
	var db *sql.DB
	var directory repository.GuestDirectory
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			directory = repository.NewGuestRepository(db, log)
			log.Info("Guest directory enabled", zap.String("database", cfg.Database.Database))
		} else {
			log.Warn("DB enabled but connection failed, notifications carry wristband codes only", zap.Error(err))
		}
	}

	// 7. service
	logURLs, xmlURL := cfg.UpstreamURLs()
	fetcher := consumer.NewFetcher(logURLs, xmlURL, cfg.Upstream.Timeout, log)
	svc := service.NewServiceCallService(cfg, alarmLedger, fetcher, sinks, directory, log)
	if err := svc.Start(ctx); err != nil {
		log.Fatal("Failed to start service call service", zap.Error(err))
	}

	// 8. http
	router := httpapi.NewRouter(log)
	router.RegisterHealth()
	router.RegisterServiceCallRoutes(httpapi.NewServiceCallHandler(svc, log))
	srv := service.NewServer("stewcall", cfg.HTTP.Addr, router, 30*time.Second, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	cancel()
	svc.Stop()
	if db != nil {
		_ = db.Close()
	}
	log.Info("Stewcall service stopped")
}
