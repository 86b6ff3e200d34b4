package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/legalmitra/mitra-bot/internal/answer"
	"github.com/legalmitra/mitra-bot/internal/bot"
	"github.com/legalmitra/mitra-bot/internal/storage"
	"github.com/legalmitra/mitra-bot/pkg/config"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file loaded, using the process environment", zap.Error(err))
	}

	// Load configuration
	path := *configPath
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warn("Config file not found, using defaults and environment", zap.String("path", path))
		path = ""
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", *configPath))
	}

	// Initialize storage
	store, err := openStorage(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	// Initialize the answer provider
	var answerer answer.Answerer
	switch cfg.Answer.Provider {
	case config.ProviderOpenAI:
		logger.Info("Answering with OpenAI", zap.String("model", cfg.OpenAI.Model))
		answerer = answer.NewGPTAnswerer(answer.GPTConfig{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Temperature: cfg.OpenAI.Temperature,
		}, logger)
	default:
		client := answer.NewClient(answer.Config{
			Endpoint:   cfg.Answer.Endpoint,
			Timeout:    cfg.Answer.Timeout,
			MaxRetries: cfg.Answer.MaxRetries,
			RetryDelay: cfg.Answer.RetryDelay,
			TopK:       cfg.Answer.TopK,
			Namespaces: cfg.Answer.Namespaces,
		}, logger)
		checkHealth(ctx, client, logger)
		answerer = client
	}

	// Initialize bot
	b, err := bot.New(cfg.Telegram.Token, bot.Options{
		Storage:           store,
		Answerer:          answerer,
		DemoLimit:         cfg.Demo.MaxMessages,
		ToastDuration:     cfg.Notify.DefaultDuration,
		PollTimeout:       cfg.Telegram.PollTimeout,
		MessagesPerSecond: cfg.Telegram.MessagesPerSecond,
		IdleTimeout:       cfg.Telegram.ChatIdleTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// Start the bot
	if err := b.Start(ctx); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
	logger.Info("Bot stopped")
}

func openStorage(cfg config.DatabaseConfig, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		logger.Info("Using PostgreSQL storage")
		return storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.DBName,
			SSLMode:  cfg.SSLMode,
		}, logger)
	case config.DriverSQLite:
		logger.Info("Using SQLite storage")
		return storage.NewSQLiteStorage(cfg.SQLitePath, logger)
	default:
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	}
}

// checkHealth logs the Answer Service status. A sick backend is not fatal:
// failed questions get the standard error reply.
func checkHealth(ctx context.Context, client *answer.Client, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		logger.Warn("Answer Service health check failed", zap.Error(err))
		return
	}
	logger.Info("Answer Service health",
		zap.String("status", health.Status),
		zap.String("version", health.Version))
}
