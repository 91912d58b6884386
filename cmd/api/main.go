package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"toplist-tracker-go/internal/api"
	"toplist-tracker-go/internal/config"
	"toplist-tracker-go/internal/database"
	"toplist-tracker-go/internal/logger"
	"toplist-tracker-go/internal/store"

	"go.uber.org/zap"
)

func main() {
	configDir := "./configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	// Load configuration
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	cache := api.NewCache(&cfg.Cache)
	if rc, ok := cache.(*api.RedisCache); ok {
		log.Info("Caching responses in redis", zap.String("addr", cfg.Cache.Addr))
		defer rc.Close()
	}

	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	server := api.NewServer(cfg.Server.Port, log, store.New(db), cache, ttl)
	server.Start()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}
}
