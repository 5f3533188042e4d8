// Command mealtrack-worker consumes meal events from AMQP, journals them in
// SQLite and exports them to Google Sheets when a spreadsheet is configured.
package main

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"mealtrack/internal/amqp"
	"mealtrack/internal/cli"
	applog "mealtrack/internal/log"
	"mealtrack/internal/sheets"
	gsheet "mealtrack/internal/sheets/google"
	"mealtrack/internal/worker"
)

func main() {
	cfg := cli.LoadConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker, os.Stdout)

	logger.Info("Starting mealtrack-worker")
	cli.ValidateConfigOrExit(logger, cfg)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var exporter sheets.EventExporter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
			OAuthClientJSON: cfg.GoogleOAuthClientJSON,
			OAuthClientFile: cfg.GoogleOAuthClientFile,
			OAuthTokenJSON:  cfg.GoogleOAuthTokenJSON,
			OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
		}, logger.WithComponent(applog.ComponentSheets).Slog())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - events are only journaled")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
		amqp.WithLogger(logger.WithComponent(applog.ComponentAMQP).Slog()))
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	w := worker.NewEventWorker(repo, exporter, logger, cfg.ExportBatchSize)

	var wg sync.WaitGroup
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		logger.Info("Shutting down worker...")
	})

	// A missed backlog is not fatal; the periodic pass retries it.
	if err := w.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", applog.FieldError, err)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		w.RunPeriodic(ctx, cfg.ExportInterval)
	}()
	go func() {
		defer wg.Done()
		if err := amqpClient.ConsumeMealEvents(ctx, w.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	wg.Wait()
	logger.Info("Worker stopped")
}
