package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"renaissance-stewcall/common/logger"
	"renaissance-stewcall/internal/aggregator"
	"renaissance-stewcall/internal/config"
	"renaissance-stewcall/internal/consumer"
	"renaissance-stewcall/internal/service"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "stewcall-aggregator")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	logURLs, xmlURL := cfg.UpstreamURLs()
	fetcher := consumer.NewFetcher(logURLs, xmlURL, cfg.Upstream.Timeout, log)
	agg := aggregator.NewAggregator(fetcher, cfg.Aggregator.PollInterval, cfg.Aggregator.HeartbeatInterval, log)

	// no write timeout: streams stay open
	srv := service.NewServer("stewcall-aggregator", cfg.Aggregator.Addr, agg.Handler(), 0, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	log.Info("Aggregating upstream",
		zap.Strings("log_urls", logURLs),
		zap.String("xml_url", xmlURL),
		zap.Duration("poll", cfg.Aggregator.PollInterval),
	)

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}
