package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prop-leaderboard-go/internal/config"
	"prop-leaderboard-go/internal/connector"
	"prop-leaderboard-go/internal/database"
	"prop-leaderboard-go/internal/logger"
	"prop-leaderboard-go/internal/secrets"
	"prop-leaderboard-go/internal/session"
	"prop-leaderboard-go/internal/syncer"

	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Credential encryption box
	box, err := secrets.NewBox(cfg.Secrets.EncryptionKey)
	if err != nil {
		log.Fatal("Failed to initialize credential encryption", zap.Error(err))
	}

	// Connector registry: one connector per supported platform
	requestTimeout := time.Duration(cfg.Sync.RequestTimeoutSec) * time.Second
	registry := connector.NewRegistry()
	registry.Register(connector.NewTradeFlowConnector(&cfg.TradeFlow, requestTimeout, log))
	registry.Register(connector.NewSyncFolioConnector(&cfg.SyncFolio, requestTimeout, log))

	// Session store for reusing unexpired upstream tokens across syncs
	sessionTTL := time.Duration(cfg.Sync.SessionTTLMinutes) * time.Minute
	sessions := session.NewStore(time.Minute)
	defer sessions.Close()

	repo := syncer.NewGormRepository(db)
	orchestrator := syncer.NewOrchestrator(log, repo, registry, box, sessions, cfg.Sync.HistoryLimit, sessionTTL)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// API server for manual sync triggers and credential tests
	apiServer := syncer.NewAPIServer(orchestrator, log, cfg.Server.Port)
	apiServer.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Error("API server shutdown failed", zap.Error(err))
		}
	}()

	// Run the periodic fleet sync until shutdown
	interval := time.Duration(cfg.Sync.IntervalMinutes) * time.Minute
	scheduler := syncer.NewScheduler(log, orchestrator, interval)
	scheduler.Run(ctx)

	log.Info("Sync daemon has been shut down.")
}
