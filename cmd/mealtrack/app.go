package main

import (
	"context"
	"errors"
	"fmt"

	"mealtrack/internal/amqp"
	"mealtrack/internal/backend"
	"mealtrack/internal/cache"
	"mealtrack/internal/config"
	"mealtrack/internal/core"
	"mealtrack/internal/ledger"
	applog "mealtrack/internal/log"
	"mealtrack/internal/remote"
	"mealtrack/internal/stats"
	"mealtrack/internal/storage"
)

// app is everything a command needs, wired from configuration.
type app struct {
	cfg       *config.Config
	logger    *applog.Logger
	cal       core.Calendar
	backend   remote.Backend
	ledger    *ledger.Ledger
	stats     *stats.Service
	repo      *storage.SQLiteRepository
	publisher *amqp.Client
	caches    *cache.Manager

	closers []func() error
}

// newApp builds the ledger stack. The user scope is, in order: the configured
// user id, else the saved session's. Confirmed mutations invalidate the stats
// caches and, when AMQP is configured, are published as meal events.
func newApp(ctx context.Context, cfg *config.Config, logger *applog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.cal, err = core.NewCalendar(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	bcfg, err := backend.FromAppConfig(cfg, a.cal.Loc())
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Slog()).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}
	a.backend = res.Backend
	if res.Cleanup != nil {
		a.closers = append(a.closers, res.Cleanup)
	}

	a.repo, err = storage.NewSQLiteRepository(cfg.SQLiteDBPath, logger.WithComponent(applog.ComponentStorage).Slog())
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	a.closers = append(a.closers, a.repo.Close)

	userID := cfg.UserID
	if userID == 0 {
		sess, ok, err := a.repo.LoadSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		if ok {
			userID = sess.UserID
		}
	}

	notifiers := ledger.Fanout{ledger.NotifierFunc(func(ctx context.Context, ev core.MealEvent) error {
		return a.stats.PublishMealEvent(ctx, ev)
	})}
	if cfg.AMQPURL != "" {
		pub, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
			amqp.WithLogger(logger.WithComponent(applog.ComponentAMQP).Slog()))
		if err != nil {
			// Events are best effort; the ledger works without them.
			logger.Warn("AMQP unavailable, meal events will not be published", applog.FieldError, err)
		} else {
			a.publisher = pub
			a.closers = append(a.closers, pub.Close)
			notifiers = append(notifiers, pub)
		}
	}

	a.ledger = ledger.New(a.backend, a.cal,
		ledger.WithUserID(userID),
		ledger.WithLogger(logger.WithComponent(applog.ComponentLedger).Slog()),
		ledger.WithNotifier(notifiers),
		ledger.WithConcurrency(cfg.FetchConcurrency))

	a.stats = stats.New(a.ledger, a.backend, stats.Options{
		CacheSize:   cfg.StatsCacheSize,
		CacheTTL:    cfg.StatsCacheTTL,
		Concurrency: cfg.FetchConcurrency,
		Logger:      logger.WithComponent(applog.ComponentStats).Slog(),
	})

	a.caches = cache.NewManager(logger.WithComponent(applog.ComponentCache).Slog())
	for _, c := range a.stats.Caches() {
		a.caches.Register(c)
	}
	return a, nil
}

// Close releases everything newApp opened, last opened first.
func (a *app) Close() error {
	if a.caches != nil {
		a.caches.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
