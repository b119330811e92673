package main

import (
	"context"
	"flag"
	"log"

	"ai-nutritionist/internal/auth"
	"ai-nutritionist/internal/config"
	"ai-nutritionist/internal/history"
	"ai-nutritionist/internal/llm"
	"ai-nutritionist/internal/metrics"
	"ai-nutritionist/internal/session"
	"ai-nutritionist/internal/web"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if err := cfg.ValidateWeb(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx := context.Background()

	var gen llm.Generator
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, meal plan generation is disabled")
		gen = llm.Disabled()
	} else {
		gemini, err := llm.NewGeminiGenerator(ctx, cfg.GeminiAPIKey)
		if err != nil {
			logger.Fatal("failed to create completion client", zap.Error(err))
		}
		defer gemini.Close()
		gen = gemini
	}

	metricsStore, err := metrics.NewStore(cfg.Storage.MetricsDB)
	if err != nil {
		logger.Fatal("failed to open metrics store", zap.Error(err))
	}
	defer metricsStore.Close()

	store := history.NewStore(cfg.Storage.HistoryFile)
	creds := auth.StaticCredentials(cfg.Users)
	ctrl := session.NewController(creds, store, gen, metricsStore, logger)
	sessions := session.NewManager()

	app := web.New(web.NewHandler(cfg, sessions, ctrl, metricsStore, logger))

	logger.Info("web server listening", zap.String("addr", cfg.Server.Addr))
	if err := app.Listen(cfg.Server.Addr); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
