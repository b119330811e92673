package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-nutritionist/internal/auth"
	"ai-nutritionist/internal/config"
	"ai-nutritionist/internal/history"
	"ai-nutritionist/internal/llm"
	"ai-nutritionist/internal/metrics"
	"ai-nutritionist/internal/session"
	"ai-nutritionist/internal/telegram"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateBot(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ctx := context.Background()

	var gen llm.Generator
	if cfg.GeminiAPIKey == "" {
		log.Println("GEMINI_API_KEY not set, meal plan generation is disabled")
		gen = llm.Disabled()
	} else {
		gemini, err := llm.NewGeminiGenerator(ctx, cfg.GeminiAPIKey)
		if err != nil {
			log.Fatalf("Failed to create completion client: %v", err)
		}
		defer gemini.Close()
		gen = gemini
	}

	metricsStore, err := metrics.NewStore(cfg.Storage.MetricsDB)
	if err != nil {
		log.Fatalf("Failed to open metrics store: %v", err)
	}
	defer metricsStore.Close()

	store := history.NewStore(cfg.Storage.HistoryFile)
	creds := auth.StaticCredentials(cfg.Users)
	ctrl := session.NewController(creds, store, gen, metricsStore, nil)

	bot, err := telegram.NewBot(cfg, ctrl, metricsStore)
	if err != nil {
		log.Fatalf("Failed to initialize Telegram Bot: %v", err)
	}

	bot.RegisterHandlers()

	srv := &http.Server{
		Addr:    cfg.Telegram.ListenAddr,
		Handler: nil,
	}

	go func() {
		log.Printf("Telegram Bot Server listening on %s", cfg.Telegram.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}
