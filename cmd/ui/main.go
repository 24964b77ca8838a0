package main

import (
	"fmt"
	"net/http"
	"os"

	"prop-leaderboard-go/internal/config"
	"prop-leaderboard-go/internal/database"
	"prop-leaderboard-go/internal/logger"
	"prop-leaderboard-go/internal/secrets"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
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
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Credential encryption for trader registration
	box, err := secrets.NewBox(cfg.Secrets.EncryptionKey)
	if err != nil {
		log.Fatal("Failed to initialize credential encryption", zap.Error(err))
	}

	// Setup HTTP server
	mux := http.NewServeMux()

	apiHandler := NewAPIHandler(log, db, box)

	// API endpoints
	mux.HandleFunc("/api/leaderboard", apiHandler.LeaderboardHandler)
	mux.HandleFunc("/api/traders", apiHandler.TradersHandler)
	mux.HandleFunc("/api/synclogs", apiHandler.SyncLogsHandler)

	addr := fmt.Sprintf(":%d", cfg.Server.UIPort)
	log.Info("Starting web server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("Web server failed", zap.Error(err))
	}
}
