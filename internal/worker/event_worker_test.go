package worker

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mealtrack/internal/amqp"
	"mealtrack/internal/core"
	applog "mealtrack/internal/log"
	sheetsmem "mealtrack/internal/sheets/memory"
	"mealtrack/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Output = io.Discard
	return applog.New(cfg)
}

func newFixture(t *testing.T) (*storage.SQLiteRepository, *sheetsmem.Store, *EventWorker) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "worker.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	sheet := sheetsmem.New()
	return repo, sheet, NewEventWorker(repo, sheet, quietLogger(), 10)
}

func message(id string) *amqp.MealEventMessage {
	return amqp.NewMealEventMessage(core.MealEvent{
		ID:         id,
		Kind:       core.EventCreated,
		UserID:     7,
		Date:       "2024-03-10",
		Meal:       core.MealRecord{ID: "42", Name: "불고기", Amount: 200},
		OccurredAt: time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC),
	})
}

func TestHandleMessageJournalsAndExports(t *testing.T) {
	repo, sheet, w := newFixture(t)
	ctx := context.Background()

	require.NoError(t, w.HandleMessage(ctx, message("e1")))
	assert.Equal(t, 1, sheet.Len())

	entry, err := repo.GetEvent(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.NotNil(t, entry.ExportedAt)
	assert.Equal(t, "mem:1", entry.SheetsRef)
}

func TestHandleMessageRedeliveryIsIdempotent(t *testing.T) {
	_, sheet, w := newFixture(t)
	ctx := context.Background()

	require.NoError(t, w.HandleMessage(ctx, message("e1")))
	require.NoError(t, w.HandleMessage(ctx, message("e1")))
	assert.Equal(t, 1, sheet.Len(), "exported once")
}

func TestHandleMessageExportFailureRequeuesThenRecovers(t *testing.T) {
	repo, sheet, w := newFixture(t)
	ctx := context.Background()

	sheet.FailWith(errors.New("quota exceeded"))
	err := w.HandleMessage(ctx, message("e1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	pending, err := repo.PendingExports(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "journaled even though export failed")

	// redelivery after the sheet recovers exports the journaled event
	sheet.FailWith(nil)
	require.NoError(t, w.HandleMessage(ctx, message("e1")))
	assert.Equal(t, 1, sheet.Len())
}

func TestProcessPending(t *testing.T) {
	repo, sheet, w := newFixture(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := repo.RecordEvent(ctx, message(id).MealEvent)
		require.NoError(t, err)
	}

	n, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, sheet.Len())

	n, err = w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStartupSyncCheck(t *testing.T) {
	repo, sheet, w := newFixture(t)
	ctx := context.Background()
	_, err := repo.RecordEvent(ctx, message("a").MealEvent)
	require.NoError(t, err)

	require.NoError(t, w.StartupSyncCheck(ctx))
	assert.Equal(t, 1, sheet.Len())
}

func TestJournalOnlyWithoutExporter(t *testing.T) {
	repo, _, _ := newFixture(t)
	w := NewEventWorker(repo, nil, quietLogger(), 0)
	ctx := context.Background()

	require.NoError(t, w.HandleMessage(ctx, message("e1")))
	n, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	entry, err := repo.GetEvent(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Nil(t, entry.ExportedAt)
}

func TestRunPeriodicStopsOnCancel(t *testing.T) {
	repo, sheet, w := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := repo.RecordEvent(ctx, message("a").MealEvent)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		w.RunPeriodic(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return sheet.Len() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
