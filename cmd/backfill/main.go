package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/joho/godotenv"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/app"
)

// backfill recomputes file hashes of Passed submissions and schedules their
// similarity scoring. With -schedule it keeps running on a cron expression.
func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error.Printf("Failed to read .env: %v", err)
	}

	defaultConfig := os.Getenv("SEMLA_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "config.toml"
	}
	configPath := flag.String("config", defaultConfig, "Path to config file")
	schedule := flag.String("schedule", "", "Cron expression; run once when empty")
	flag.Parse()

	service, err := app.NewService(*configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to load config: %v", err)
	}
	defer service.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run := func() {
		n, err := service.Backfill(ctx)
		if err != nil {
			logger.Error.Printf("Backfill stopped after %d submissions: %v", n, err)
		}
	}

	if *schedule == "" {
		run()
		return
	}

	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()
	if _, err := scheduler.Cron(*schedule).Do(run); err != nil {
		logger.Error.Fatalf("Invalid schedule %q: %v", *schedule, err)
	}
	scheduler.StartAsync()
	logger.Info.Printf("Backfill scheduled: %s", *schedule)

	<-ctx.Done()
	scheduler.Stop()
	logger.Info.Println("Backfill scheduler stopped")
}
