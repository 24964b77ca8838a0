package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	TradeFlow TradeFlow `mapstructure:"tradeflow"`
	SyncFolio SyncFolio `mapstructure:"syncfolio"`
	Sync      Sync      `mapstructure:"sync"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
	Secrets   Secrets   `mapstructure:"secrets"`
}

// TradeFlow holds the configuration for the execution-platform API.
type TradeFlow struct {
	BaseURL        string  `mapstructure:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// SyncFolio holds the configuration for the trade-sync service API.
type SyncFolio struct {
	BaseURL        string  `mapstructure:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Server holds the configuration for the HTTP surfaces: the sync
// daemon's API port and the leaderboard UI port.
type Server struct {
	Port   int `mapstructure:"port"`
	UIPort int `mapstructure:"ui_port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Sync holds the configuration for the sync engine.
type Sync struct {
	IntervalMinutes   int `mapstructure:"interval_minutes"`
	RequestTimeoutSec int `mapstructure:"request_timeout_sec"`
	HistoryLimit      int `mapstructure:"history_limit"`
	SessionTTLMinutes int `mapstructure:"session_ttl_minutes"`
}

// Secrets holds the configuration for credential encryption at rest.
type Secrets struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("tradeflow.rate_limit", 10) // requests per second
	viper.SetDefault("tradeflow.rate_limit_burst", 5)
	viper.SetDefault("syncfolio.rate_limit", 10)
	viper.SetDefault("syncfolio.rate_limit_burst", 5)
	viper.SetDefault("sync.interval_minutes", 15)
	viper.SetDefault("sync.request_timeout_sec", 30)
	viper.SetDefault("sync.history_limit", 500)
	viper.SetDefault("sync.session_ttl_minutes", 60)
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.ui_port", 8081)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
