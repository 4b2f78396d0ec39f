// Package main provides the API server entry point for the ledger scanner service.
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

	"github.com/ledger-scanner/internal/adapter"
	"github.com/ledger-scanner/internal/api"
	"github.com/ledger-scanner/internal/config"
	"github.com/ledger-scanner/internal/logging"
	"github.com/ledger-scanner/internal/price"
	"github.com/ledger-scanner/internal/service"
)

const rateLimitCooldown = 5 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logger.Sync()

	logger.Info("structured logging initialized",
		zap.String("level", cfg.Logging.Level),
		zap.String("format", cfg.Logging.Format))

	// Upstream clients
	feed := adapter.NewFeedClient(cfg.Feed, cfg.Upstream)
	receipts := adapter.NewReceiptClient(cfg.Chains, cfg.Cache)
	aggregator := adapter.NewAggregatorClient(cfg.Price)
	dex := adapter.NewDEXClient(cfg.Price)

	// Quote cache: in-process LRU, optionally backed by a shared redis tier
	var quoteCache price.QuoteCache = price.NewMemoryCache(cfg.Cache.QuoteSize, cfg.Cache.QuoteTTL)
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		quoteCache = price.NewTieredCache(quoteCache, price.NewRedisCache(redisClient, cfg.Cache.QuoteTTL))
		logger.Info("redis quote-cache tier enabled", zap.String("addr", cfg.Redis.Addr))
	}

	resolver := price.NewResolver(aggregator, dex, quoteCache, price.Options{
		MinLiquidityUSD: cfg.Price.MinLiquidityUSD,
		CurrentBucket:   cfg.Cache.CurrentPriceBucket,
		WarmConcurrency: cfg.Price.WarmConcurrency,
		CooldownSpan:    rateLimitCooldown,
	})
	aggregator.SetRateLimitHook(resolver.Cooldown().Trip)
	dex.SetRateLimitHook(resolver.Cooldown().Trip)

	ledgerService := service.NewLedgerService(feed, receipts, resolver, cfg.Chains, cfg.Feed.PageSize)

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
	server := api.NewServer(serverConfig, ledgerService, logger)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	logger.Info("server started",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.Int("networks", len(cfg.Chains.Enabled)))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
