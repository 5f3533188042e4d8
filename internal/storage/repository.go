// Package storage keeps the local session and the journal of confirmed meal
// events in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mealtrack/internal/core"
	applog "mealtrack/internal/log"

	_ "modernc.org/sqlite"
)

// fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Session is the scoped user of this installation.
type Session struct {
	UserID    int64
	Age       int
	UpdatedAt time.Time
}

// JournalEntry is a recorded meal event plus its export state.
type JournalEntry struct {
	core.MealEvent
	ReceivedAt time.Time
	ExportedAt *time.Time
	SheetsRef  string
}

type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewSQLiteRepository(dbPath string, logger *slog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between the worker and the API
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, logger: logger, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveSession replaces the stored session.
func (r *SQLiteRepository) SaveSession(ctx context.Context, userID int64, age int) (Session, error) {
	if userID < 0 {
		return Session{}, fmt.Errorf("invalid user id %d", userID)
	}
	if age < 0 {
		return Session{}, fmt.Errorf("invalid age %d", age)
	}
	s := Session{UserID: userID, Age: age, UpdatedAt: r.now().UTC()}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, age, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			age = excluded.age,
			updated_at = excluded.updated_at
	`, s.UserID, s.Age, s.UpdatedAt.Format(timeLayout))
	if err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}

	r.logger.InfoContext(ctx, "Session saved",
		applog.FieldComponent, applog.ComponentStorage,
		applog.FieldUserID, userID)
	return s, nil
}

// LoadSession returns the stored session; ok is false when none was saved.
func (r *SQLiteRepository) LoadSession(ctx context.Context) (s Session, ok bool, err error) {
	var updated string
	err = r.db.QueryRowContext(ctx, `
		SELECT user_id, age, updated_at FROM sessions WHERE id = 1
	`).Scan(&s.UserID, &s.Age, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("load session: %w", err)
	}
	s.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return s, true, nil
}

func (r *SQLiteRepository) ClearSession(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// RecordEvent journals ev. Redelivered events are ignored, in which case
// recorded is false.
func (r *SQLiteRepository) RecordEvent(ctx context.Context, ev core.MealEvent) (recorded bool, err error) {
	if ev.ID == "" {
		return false, errors.New("record event: missing event id")
	}
	m := ev.Meal
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO meal_events (
			event_id, kind, user_id, date, meal_id, food_name, amount,
			calories, protein, carbs, fat, sodium, sugar, cholesterol,
			saturated_fat, trans_fat, meal_created, occurred_at, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`, ev.ID, string(ev.Kind), ev.UserID, ev.Date, m.ID, m.Name, m.Amount,
		m.Calories, m.Protein, m.Carbs, m.Fat, m.Sodium, m.Sugar, m.Cholesterol,
		m.SaturatedFat, m.TransFat, m.CreatedAt,
		ev.OccurredAt.UTC().Format(timeLayout), r.now().UTC().Format(timeLayout))
	if err != nil {
		return false, fmt.Errorf("record event %s: %w", ev.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record event %s: %w", ev.ID, err)
	}
	if n == 0 {
		r.logger.DebugContext(ctx, "Duplicate meal event ignored",
			applog.FieldComponent, applog.ComponentStorage,
			applog.FieldEventID, ev.ID)
		return false, nil
	}

	r.logger.InfoContext(ctx, "Meal event journaled",
		applog.FieldComponent, applog.ComponentStorage,
		applog.FieldOperation, applog.OpJournal,
		applog.FieldEventID, ev.ID,
		applog.FieldEventKind, string(ev.Kind),
		applog.FieldMealID, m.ID,
		applog.FieldDate, ev.Date)
	return true, nil
}

const entryColumns = `
	event_id, kind, user_id, date, meal_id, food_name, amount,
	calories, protein, carbs, fat, sodium, sugar, cholesterol,
	saturated_fat, trans_fat, meal_created, occurred_at, received_at,
	exported_at, sheets_ref`

// GetEvent returns one journal entry, or nil if it does not exist.
func (r *SQLiteRepository) GetEvent(ctx context.Context, eventID string) (*JournalEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM meal_events WHERE event_id = ?`, eventID)
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// PendingExports lists unexported events, oldest first.
func (r *SQLiteRepository) PendingExports(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM meal_events
		WHERE exported_at IS NULL
		ORDER BY occurred_at ASC, event_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending exports: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("list pending exports: %w", err)
	}
	return entries, nil
}

// EventsForDate lists the journal of one user's day in occurrence order.
func (r *SQLiteRepository) EventsForDate(ctx context.Context, userID int64, date string) ([]JournalEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM meal_events
		WHERE user_id = ? AND date = ?
		ORDER BY occurred_at ASC, event_id ASC
	`, userID, date)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", date, err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", date, err)
	}
	return entries, nil
}

// MarkExported stamps an event with the spreadsheet reference it was written to.
func (r *SQLiteRepository) MarkExported(ctx context.Context, eventID, ref string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE meal_events SET exported_at = ?, sheets_ref = ? WHERE event_id = ?
	`, r.now().UTC().Format(timeLayout), ref, eventID)
	if err != nil {
		return fmt.Errorf("mark exported %s: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark exported %s: %w", eventID, err)
	}
	if n == 0 {
		return fmt.Errorf("mark exported %s: %w", eventID, sql.ErrNoRows)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]JournalEntry, error) {
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var (
			e                  JournalEntry
			kind               string
			occurred, received string
			exported, ref      sql.NullString
		)
		m := &e.Meal
		if err := rows.Scan(&e.ID, &kind, &e.UserID, &e.Date, &m.ID, &m.Name, &m.Amount,
			&m.Calories, &m.Protein, &m.Carbs, &m.Fat, &m.Sodium, &m.Sugar, &m.Cholesterol,
			&m.SaturatedFat, &m.TransFat, &m.CreatedAt, &occurred, &received,
			&exported, &ref); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = core.EventKind(kind)
		e.OccurredAt, _ = time.Parse(timeLayout, occurred)
		e.ReceivedAt, _ = time.Parse(timeLayout, received)
		if exported.Valid {
			if t, err := time.Parse(timeLayout, exported.String); err == nil {
				e.ExportedAt = &t
			}
		}
		e.SheetsRef = ref.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
