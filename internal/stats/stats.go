// Package stats derives daily summaries and age-group comparisons from the
// meal ledger, falling back to the remote service for days not cached locally.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"mealtrack/internal/cache"
	"mealtrack/internal/core"
	applog "mealtrack/internal/log"
	"mealtrack/internal/remote"
)

// MealSource is the local view of cached meals. *ledger.Ledger satisfies it.
type MealSource interface {
	Calendar() core.Calendar
	UserID() int64
	Cached(date time.Time) ([]core.MealRecord, bool)
}

// Remote is the part of the backend statistics fall back to.
type Remote interface {
	remote.SummaryReader
	remote.AverageReader
}

type Service struct {
	meals       MealSource
	remote      Remote
	logger      *slog.Logger
	concurrency int

	summaries *cache.LRUCache[core.DaySummary]
	averages  *cache.LRUCache[[]core.AverageNutrient]
	group     singleflight.Group
}

type Options struct {
	CacheSize   int
	CacheTTL    time.Duration
	Concurrency int
	Logger      *slog.Logger
}

func New(meals MealSource, r Remote, opts Options) *Service {
	if opts.CacheSize < 1 {
		opts.CacheSize = 64
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		meals:       meals,
		remote:      r,
		logger:      opts.Logger,
		concurrency: opts.Concurrency,
		summaries:   cache.NewLRUCache[core.DaySummary](opts.CacheSize, opts.CacheTTL),
		averages:    cache.NewLRUCache[[]core.AverageNutrient](opts.CacheSize, opts.CacheTTL),
	}
}

// Caches exposes the service's caches for periodic cleanup.
func (s *Service) Caches() []cache.Cleaner {
	return []cache.Cleaner{s.summaries, s.averages}
}

func summaryKey(date string, userID int64) string {
	return "summary:" + date + ":" + strconv.FormatInt(userID, 10)
}

// DaySummary totals the meals of date. A day the ledger has fetched is
// summarized locally; any other day is asked of the remote and cached.
func (s *Service) DaySummary(ctx context.Context, date time.Time) (core.DaySummary, error) {
	cal := s.meals.Calendar()
	key := cal.Key(date)
	if records, ok := s.meals.Cached(date); ok {
		return core.Summarize(key, records, cal.Loc()), nil
	}

	ck := summaryKey(key, s.meals.UserID())
	if sum, ok := s.summaries.Get(ck); ok {
		return sum, nil
	}

	v, _, err := s.shared(ctx, ck, func(ctx context.Context) (any, error) {
		return s.remote.MealSummary(ctx, key, s.meals.UserID())
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to load day summary",
			applog.FieldComponent, applog.ComponentStats,
			applog.FieldOperation, applog.OpSummary,
			applog.FieldDate, key,
			applog.FieldError, err)
		return core.DaySummary{}, fmt.Errorf("day summary for %s: %w", key, err)
	}
	sum := v.(core.DaySummary)
	s.summaries.Set(ck, sum)
	return sum, nil
}

// shared runs fn once for every concurrent caller of key. fn does not see
// any one caller's cancellation; each caller stops waiting on its own ctx.
func (s *Service) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, bool, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return fn(detached)
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	}
}

// Averages returns a copy of the survey averages for an age group.
// Concurrent callers for the same group share one remote request.
func (s *Service) Averages(ctx context.Context, ageGroup string) ([]core.AverageNutrient, error) {
	ck := "avg:" + ageGroup
	if avgs, ok := s.averages.Get(ck); ok {
		return slices.Clone(avgs), nil
	}

	v, shared, err := s.shared(ctx, ck, func(ctx context.Context) (any, error) {
		return s.remote.AverageNutrition(ctx, ageGroup)
	})
	if err != nil {
		return nil, fmt.Errorf("averages for %s: %w", ageGroup, err)
	}
	avgs := v.([]core.AverageNutrient)
	if len(avgs) > 0 {
		s.averages.Set(ck, slices.Clone(avgs))
	}
	s.logger.DebugContext(ctx, "Loaded nutrient averages",
		applog.FieldAgeGroup, ageGroup,
		applog.FieldCount, len(avgs),
		"shared", shared)
	return slices.Clone(avgs), nil
}

// Compare measures the day's totals against the averages for age.
func (s *Service) Compare(ctx context.Context, date time.Time, age int) (core.Comparison, error) {
	group := core.AgeGroupFor(age)

	var (
		sum  core.DaySummary
		avgs []core.AverageNutrient
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sum, err = s.DaySummary(gctx, date)
		return err
	})
	g.Go(func() error {
		var err error
		avgs, err = s.Averages(gctx, group)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Comparison{}, err
	}
	return core.Compare(sum.Date, group, sum.Totals, avgs), nil
}

// RemoteCompare asks the remote service to compare the day for the scoped
// user, using the profile the service holds.
func (s *Service) RemoteCompare(ctx context.Context, date time.Time) (core.Comparison, error) {
	key := s.meals.Calendar().Key(date)
	cmp, err := s.remote.CompareNutrition(ctx, s.meals.UserID(), key)
	if err != nil {
		return core.Comparison{}, fmt.Errorf("remote compare for %s: %w", key, err)
	}
	return cmp, nil
}

// Range summarizes every day in [from, to] in ascending order.
func (s *Service) Range(ctx context.Context, from, to time.Time) ([]core.DaySummary, error) {
	days := s.meals.Calendar().Days(from, to)
	out := make([]core.DaySummary, len(days))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, d := range days {
		g.Go(func() error {
			sum, err := s.DaySummary(gctx, d)
			if err != nil {
				return err
			}
			out[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Week summarizes the week holding date, for weeks beginning on first.
func (s *Service) Week(ctx context.Context, date time.Time, first time.Weekday) (core.WeekSummary, error) {
	days := s.meals.Calendar().Week(date, first)
	sums, err := s.Range(ctx, days[0], days[len(days)-1])
	if err != nil {
		return core.WeekSummary{}, err
	}
	return core.SummarizeWeek(sums), nil
}

// Month counts the meals of every day in the month holding date, laid out
// as a grid of weeks beginning on first.
func (s *Service) Month(ctx context.Context, date time.Time, first time.Weekday) (core.MonthCalendar, error) {
	cal := s.meals.Calendar()
	from, to := cal.MonthBounds(date)
	sums, err := s.Range(ctx, from, to)
	if err != nil {
		return core.MonthCalendar{}, err
	}
	counts := make(map[string]int, len(sums))
	for _, sum := range sums {
		counts[sum.Date] = sum.TotalMeals
	}

	grid := cal.MonthGrid(date, first)
	keys := make([]string, len(grid))
	for i, d := range grid {
		keys[i] = cal.Key(d)
	}
	return core.BuildMonth(from.Format(core.MonthKeyLayout), keys, counts), nil
}

// PublishMealEvent drops cached summaries for the event's day, so it can be
// chained behind the ledger as a notifier.
func (s *Service) PublishMealEvent(_ context.Context, ev core.MealEvent) error {
	s.summaries.DeletePrefix("summary:" + ev.Date + ":")
	return nil
}
