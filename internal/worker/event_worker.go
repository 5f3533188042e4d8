// Package worker journals confirmed meal events and exports them to the
// spreadsheet.
package worker

import (
	"context"
	"fmt"
	"time"

	"mealtrack/internal/amqp"
	"mealtrack/internal/core"
	applog "mealtrack/internal/log"
	"mealtrack/internal/sheets"
	"mealtrack/internal/storage"
)

// Journal is the part of the SQLite repository the worker writes to.
type Journal interface {
	RecordEvent(ctx context.Context, ev core.MealEvent) (bool, error)
	GetEvent(ctx context.Context, eventID string) (*storage.JournalEntry, error)
	PendingExports(ctx context.Context, limit int) ([]storage.JournalEntry, error)
	MarkExported(ctx context.Context, eventID, ref string) error
}

// EventWorker handles meal events delivered over AMQP.
type EventWorker struct {
	journal   Journal
	exporter  sheets.EventExporter
	logger    *applog.Logger
	events    *applog.StructuredLogger
	batchSize int
}

// NewEventWorker builds a worker. exporter may be nil, in which case events
// are only journaled.
func NewEventWorker(journal Journal, exporter sheets.EventExporter, logger *applog.Logger, batchSize int) *EventWorker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if batchSize < 1 {
		batchSize = 50
	}
	logger = logger.WithComponent(applog.ComponentWorker)
	return &EventWorker{
		journal:   journal,
		exporter:  exporter,
		logger:    logger,
		events:    applog.NewStructuredLogger(logger),
		batchSize: batchSize,
	}
}

// HandleMessage journals the event and exports it. A returned error makes
// the consumer requeue the message; redeliveries are idempotent.
func (w *EventWorker) HandleMessage(ctx context.Context, msg *amqp.MealEventMessage) error {
	ev := msg.MealEvent

	recorded, err := w.journal.RecordEvent(ctx, ev)
	if err != nil {
		return fmt.Errorf("journal event: %w", err)
	}
	w.events.LogMealEvent(ctx, ev)

	if w.exporter == nil {
		return nil
	}
	if !recorded {
		entry, err := w.journal.GetEvent(ctx, ev.ID)
		if err != nil {
			return fmt.Errorf("load journaled event: %w", err)
		}
		if entry != nil && entry.ExportedAt != nil {
			w.logger.DebugContext(ctx, "Event already exported",
				applog.FieldEventID, ev.ID,
				applog.FieldSheetsRef, entry.SheetsRef)
			return nil
		}
	}
	return w.export(ctx, ev)
}

func (w *EventWorker) export(ctx context.Context, ev core.MealEvent) error {
	ref, err := w.exporter.ExportEvent(ctx, ev)
	if err != nil {
		w.events.LogError(ctx, "Failed to export meal event", err, applog.OpExport,
			applog.NewFields().WithMeal(ev.Date, ev.Meal.ID, ev.Meal.Name))
		return fmt.Errorf("export event %s: %w", ev.ID, err)
	}

	if err := w.journal.MarkExported(ctx, ev.ID, ref); err != nil {
		// the row exists; a later pending pass may export it again
		w.logger.ErrorContext(ctx, "Failed to mark event exported",
			applog.FieldEventID, ev.ID,
			applog.FieldSheetsRef, ref,
			applog.FieldError, err)
	}
	return nil
}

// ProcessPending exports journaled events that never reached the sheet.
// It returns how many were exported.
func (w *EventWorker) ProcessPending(ctx context.Context) (int, error) {
	return w.processPending(ctx, w.batchSize)
}

func (w *EventWorker) processPending(ctx context.Context, limit int) (int, error) {
	if w.exporter == nil {
		return 0, nil
	}
	pending, err := w.journal.PendingExports(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get pending events: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending events", applog.FieldCount, len(pending))

	exported := 0
	for _, entry := range pending {
		if ctx.Err() != nil {
			return exported, ctx.Err()
		}
		if err := w.export(ctx, entry.MealEvent); err != nil {
			continue
		}
		exported++
	}
	return exported, nil
}

// StartupSyncCheck exports a larger backlog once at startup, covering
// downtime of the worker or of the spreadsheet.
func (w *EventWorker) StartupSyncCheck(ctx context.Context) error {
	n, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup sync completed", "synced", n)
	return nil
}

// RunPeriodic calls ProcessPending every interval until ctx is done.
func (w *EventWorker) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
				w.logger.WarnContext(ctx, "Periodic export failed", applog.FieldError, err)
			}
		}
	}
}
