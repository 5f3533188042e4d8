// Package ledger keeps the date-keyed cache of meal records and mediates every
// create, read, update and delete against the remote meal service.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mealtrack/internal/core"
	applog "mealtrack/internal/log"
	"mealtrack/internal/remote"
)

// Notifier receives every mutation the remote service has confirmed.
type Notifier interface {
	PublishMealEvent(ctx context.Context, ev core.MealEvent) error
}

// Ledger owns the meal cache. It is safe for concurrent use.
type Ledger struct {
	svc         remote.MealService
	cal         core.Calendar
	userID      int64
	logger      *slog.Logger
	notifier    Notifier
	concurrency int

	mu          sync.Mutex
	buckets     map[string][]core.MealRecord
	index       map[string]string // meal id -> date key
	fetched     map[string]bool   // keys whose bucket mirrors a remote listing
	generations map[string]uint64
	inflight    int
	lastErr     string
}

type Option func(*Ledger)

// WithUserID scopes reads and creations to a user. Zero means unscoped.
func WithUserID(id int64) Option {
	return func(l *Ledger) { l.userID = id }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

// WithConcurrency bounds how many days FetchRange loads at once.
func WithConcurrency(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

func New(svc remote.MealService, cal core.Calendar, opts ...Option) *Ledger {
	l := &Ledger{
		svc:         svc,
		cal:         cal,
		logger:      slog.Default(),
		concurrency: 4,
		buckets:     map[string][]core.MealRecord{},
		index:       map[string]string{},
		fetched:     map[string]bool{},
		generations: map[string]uint64{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Calendar returns the calendar used to key buckets.
func (l *Ledger) Calendar() core.Calendar { return l.cal }

// UserID returns the user the ledger is scoped to.
func (l *Ledger) UserID() int64 { return l.userID }

// FetchMealsForDate replaces the bucket for date with the remote's records.
// Only the most recently issued fetch for a day may commit; an older one that
// completes later is discarded and returns nil.
func (l *Ledger) FetchMealsForDate(ctx context.Context, date time.Time) error {
	key := l.cal.Key(date)

	l.mu.Lock()
	l.inflight++
	l.lastErr = ""
	l.generations[key]++
	gen := l.generations[key]
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.inflight--
		l.mu.Unlock()
	}()

	wires, err := l.svc.ListMeals(ctx, key, l.userID)

	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.generations[key] {
		l.logger.DebugContext(ctx, "Discarding superseded fetch",
			applog.FieldDate, key, applog.FieldGeneration, gen)
		return nil
	}
	if err != nil {
		l.lastErr = remote.Message(err)
		l.logger.WarnContext(ctx, "Failed to fetch meals",
			applog.FieldComponent, applog.ComponentLedger,
			applog.FieldOperation, applog.OpFetch,
			applog.FieldDate, key,
			applog.FieldError, err)
		return fmt.Errorf("fetch meals for %s: %w", key, err)
	}

	records := make([]core.MealRecord, 0, len(wires))
	for _, w := range wires {
		records = append(records, remote.ToRecord(w))
	}
	l.replaceBucket(key, records)

	l.logger.DebugContext(ctx, "Fetched meals",
		applog.FieldDate, key, applog.FieldCount, len(records))
	return nil
}

// replaceBucket swaps in records and re-points the id index. Caller holds mu.
func (l *Ledger) replaceBucket(key string, records []core.MealRecord) {
	for _, r := range l.buckets[key] {
		if l.index[r.ID] == key {
			delete(l.index, r.ID)
		}
	}
	for _, r := range records {
		if prev, ok := l.index[r.ID]; ok && prev != key {
			l.removeFrom(prev, r.ID)
		}
		l.index[r.ID] = key
	}
	l.buckets[key] = records
	l.fetched[key] = true
}

// FetchRange loads every day in [from, to]. Days that succeed are committed
// even when another day fails; the first failure is returned.
func (l *Ledger) FetchRange(ctx context.Context, from, to time.Time) error {
	days := l.cal.Days(from, to)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for _, day := range days {
		g.Go(func() error {
			return l.FetchMealsForDate(gctx, day)
		})
	}
	return g.Wait()
}

// MealsForDate returns a sorted copy of the bucket for date. A day never
// fetched yields an empty slice.
func (l *Ledger) MealsForDate(date time.Time) []core.MealRecord {
	key := l.cal.Key(date)
	l.mu.Lock()
	out := make([]core.MealRecord, len(l.buckets[key]))
	copy(out, l.buckets[key])
	l.mu.Unlock()

	core.SortMeals(out, l.cal.Loc())
	return out
}

// Cached returns the sorted bucket for date and whether a fetch has filled
// it. A bucket holding only locally added meals is not complete and reports
// false.
func (l *Ledger) Cached(date time.Time) ([]core.MealRecord, bool) {
	key := l.cal.Key(date)
	l.mu.Lock()
	bucket, ok := l.buckets[key], l.fetched[key]
	out := make([]core.MealRecord, len(bucket))
	copy(out, bucket)
	l.mu.Unlock()

	core.SortMeals(out, l.cal.Loc())
	return out, ok
}

// CreateMeal stores input remotely under date and files the confirmed record.
func (l *Ledger) CreateMeal(ctx context.Context, date time.Time, input core.MealRecord) (core.MealRecord, error) {
	if err := input.Validate(); err != nil {
		l.setErr(err.Error())
		return core.MealRecord{}, fmt.Errorf("create meal: %w", err)
	}

	key := l.cal.Key(date)
	w, err := l.svc.CreateMeal(ctx, l.userID, remote.NewCreateRequest(input, key))
	if err != nil {
		l.fail(ctx, applog.OpCreate, key, err)
		return core.MealRecord{}, fmt.Errorf("create meal: %w", err)
	}

	rec := remote.ToRecord(w)
	l.AddMealLocal(date, rec)
	l.setErr("")

	l.notify(ctx, core.EventCreated, key, rec)
	return rec, nil
}

// AddMealLocal files an already persisted record under date without a
// network call. A record with the same id is replaced, wherever it is filed.
// The day is not marked fetched.
func (l *Ledger) AddMealLocal(date time.Time, record core.MealRecord) {
	key := l.cal.Key(date)
	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.index[record.ID]; ok && prev != key {
		l.removeFrom(prev, record.ID)
	}
	bucket := l.buckets[key]
	if i := indexOf(bucket, record.ID); i >= 0 {
		updated := make([]core.MealRecord, len(bucket))
		copy(updated, bucket)
		updated[i] = record
		l.buckets[key] = updated
	} else {
		l.buckets[key] = append(bucket, record)
	}
	l.index[record.ID] = key
}

// UpdateMeal replaces the meal's mutable fields remotely, then in the cache.
// ID and CreatedAt are kept from the cached record.
func (l *Ledger) UpdateMeal(ctx context.Context, date time.Time, id string, updated core.MealRecord) error {
	key := l.cal.Key(date)
	if err := updated.Validate(); err != nil {
		l.setErr(err.Error())
		return fmt.Errorf("update meal %s: %w", id, err)
	}
	n, err := remote.ParseID(id)
	if err != nil {
		l.setErr(err.Error())
		return fmt.Errorf("update meal: %w", err)
	}

	if _, err := l.svc.UpdateMeal(ctx, n, remote.FromRecord(updated)); err != nil {
		l.fail(ctx, applog.OpUpdate, key, err)
		return fmt.Errorf("update meal %s: %w", id, err)
	}

	merged := updated
	merged.ID = id
	merged.Name = strings.TrimSpace(updated.Name)

	l.mu.Lock()
	if home, i := l.locate(key, id); i >= 0 {
		bucket := make([]core.MealRecord, len(l.buckets[home]))
		copy(bucket, l.buckets[home])
		merged.CreatedAt = bucket[i].CreatedAt
		bucket[i] = merged
		l.buckets[home] = bucket
		key = home
	}
	l.lastErr = ""
	l.mu.Unlock()

	l.notify(ctx, core.EventUpdated, key, merged)
	return nil
}

// DeleteMeal removes the meal remotely and then from whichever bucket holds
// it. An id the cache does not know is a no-op locally.
func (l *Ledger) DeleteMeal(ctx context.Context, date time.Time, id string) error {
	key := l.cal.Key(date)
	n, err := remote.ParseID(id)
	if err != nil {
		l.setErr(err.Error())
		return fmt.Errorf("delete meal: %w", err)
	}

	if err := l.svc.DeleteMeal(ctx, n); err != nil {
		l.fail(ctx, applog.OpDelete, key, err)
		return fmt.Errorf("delete meal %s: %w", id, err)
	}

	removed := core.MealRecord{ID: id}
	l.mu.Lock()
	if home, i := l.locate(key, id); i >= 0 {
		removed = l.buckets[home][i]
		l.removeFrom(home, id)
		delete(l.index, id)
		key = home
	}
	l.lastErr = ""
	l.mu.Unlock()

	l.notify(ctx, core.EventDeleted, key, removed)
	return nil
}

// locate finds id in the assumed bucket, then through the id index. It
// returns the bucket key and position, or -1. Caller holds mu.
func (l *Ledger) locate(assumed, id string) (string, int) {
	if i := indexOf(l.buckets[assumed], id); i >= 0 {
		return assumed, i
	}
	if home, ok := l.index[id]; ok {
		if i := indexOf(l.buckets[home], id); i >= 0 {
			return home, i
		}
	}
	return "", -1
}

// removeFrom drops id from the bucket without mutating the previous slice.
// Caller holds mu.
func (l *Ledger) removeFrom(key, id string) {
	bucket := l.buckets[key]
	i := indexOf(bucket, id)
	if i < 0 {
		return
	}
	out := make([]core.MealRecord, 0, len(bucket)-1)
	out = append(out, bucket[:i]...)
	out = append(out, bucket[i+1:]...)
	l.buckets[key] = out
}

func indexOf(bucket []core.MealRecord, id string) int {
	for i, r := range bucket {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) setErr(msg string) {
	l.mu.Lock()
	l.lastErr = msg
	l.mu.Unlock()
}

func (l *Ledger) fail(ctx context.Context, op, key string, err error) {
	l.setErr(remote.Message(err))
	l.logger.WarnContext(ctx, "Meal operation failed",
		applog.FieldComponent, applog.ComponentLedger,
		applog.FieldOperation, op,
		applog.FieldDate, key,
		applog.FieldError, err)
}

func (l *Ledger) notify(ctx context.Context, kind core.EventKind, key string, rec core.MealRecord) {
	if l.notifier == nil {
		return
	}
	now := time.Now
	if l.cal.Now != nil {
		now = l.cal.Now
	}
	ev := core.MealEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		UserID:     l.userID,
		Date:       key,
		Meal:       rec,
		OccurredAt: now().UTC(),
	}
	if err := l.notifier.PublishMealEvent(ctx, ev); err != nil {
		l.logger.WarnContext(ctx, "Failed to publish meal event",
			applog.FieldEventID, ev.ID,
			applog.FieldEventKind, string(kind),
			applog.FieldMealID, rec.ID,
			applog.FieldError, err)
	}
}

// Loading reports whether any fetch is in flight.
func (l *Ledger) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inflight > 0
}

// Err returns the last failure message, or "" after a successful operation.
func (l *Ledger) Err() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Dates returns the keys of every cached bucket in ascending order.
func (l *Ledger) Dates() []string {
	l.mu.Lock()
	keys := make([]string, 0, len(l.buckets))
	for k := range l.buckets {
		keys = append(keys, k)
	}
	l.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Reset drops every cached bucket. Fetches already in flight will not commit.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.generations {
		l.generations[k]++
	}
	l.buckets = map[string][]core.MealRecord{}
	l.index = map[string]string{}
	l.fetched = map[string]bool{}
	l.lastErr = ""
}
