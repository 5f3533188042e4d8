package ledger

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mealtrack/internal/core"
	"mealtrack/internal/remote"
	"mealtrack/internal/remote/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	seoul, _ = time.LoadLocation("Asia/Seoul")
	fixedNow = time.Date(2024, 3, 10, 9, 0, 0, 0, seoul)
)

func day(d int) time.Time { return time.Date(2024, 3, d, 15, 30, 0, 0, seoul) }

func testCalendar() core.Calendar {
	return core.Calendar{Location: seoul, Now: func() time.Time { return fixedNow }}
}

// scripted wraps the in-memory backend with failure and blocking hooks.
type scripted struct {
	*memory.Store
	listHook  func(ctx context.Context, date string, userID int64) ([]remote.WireMeal, error)
	deleteErr error
	updateErr error
	calls     atomic.Int32
}

func newScripted() *scripted {
	return &scripted{Store: memory.New(memory.WithLocation(seoul), memory.WithClock(func() time.Time { return fixedNow }))}
}

func (s *scripted) ListMeals(ctx context.Context, date string, userID int64) ([]remote.WireMeal, error) {
	s.calls.Add(1)
	if s.listHook != nil {
		return s.listHook(ctx, date, userID)
	}
	return s.Store.ListMeals(ctx, date, userID)
}

func (s *scripted) UpdateMeal(ctx context.Context, id int64, req remote.UpdateMealRequest) (remote.WireMeal, error) {
	s.calls.Add(1)
	if s.updateErr != nil {
		return remote.WireMeal{}, s.updateErr
	}
	return s.Store.UpdateMeal(ctx, id, req)
}

func (s *scripted) DeleteMeal(ctx context.Context, id int64) error {
	s.calls.Add(1)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Store.DeleteMeal(ctx, id)
}

func (s *scripted) seed(t *testing.T, date, name string) int64 {
	t.Helper()
	w, err := s.Store.CreateMeal(context.Background(), 0, remote.CreateMealRequest{FoodName: name, IntakeDate: date})
	require.NoError(t, err)
	return w.ID
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []core.MealEvent
	err    error
}

func (n *recordingNotifier) PublishMealEvent(_ context.Context, ev core.MealEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func ids(records []core.MealRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestFetchScenario(t *testing.T) {
	svc := newScripted()
	svc.listHook = func(_ context.Context, date string, _ int64) ([]remote.WireMeal, error) {
		assert.Equal(t, "2024-03-10", date)
		return []remote.WireMeal{{
			ID:       7,
			FoodName: "Rice",
			NutritionData: remote.NutritionData{
				Amount: 200, Calories: 300, Protein: 5, Carbs: 65, Fat: 1, Sodium: 10,
			},
			CreatedAt: "2024-03-10T12:00:00",
		}}, nil
	}
	l := New(svc, testCalendar())

	require.NoError(t, l.FetchMealsForDate(context.Background(), day(10)))

	want := []core.MealRecord{{
		ID:     "7",
		Name:   "Rice",
		Amount: 200,
		Nutrients: core.Nutrients{
			Calories: 300, Protein: 5, Carbs: 65, Fat: 1, Sodium: 10,
		},
		CreatedAt: "2024-03-10T12:00:00",
	}}
	if diff := cmp.Diff(want, l.MealsForDate(day(10))); diff != "" {
		t.Errorf("MealsForDate mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, l.Err())
	assert.False(t, l.Loading())
}

func TestFetchReplacesBucketWholesale(t *testing.T) {
	svc := newScripted()
	first := svc.seed(t, "2024-03-10", "Rice")
	l := New(svc, testCalendar())
	ctx := context.Background()

	require.NoError(t, l.FetchMealsForDate(ctx, day(10)))
	l.AddMealLocal(day(10), core.MealRecord{ID: "999", Name: "Local only"})
	require.Len(t, l.MealsForDate(day(10)), 2)

	require.NoError(t, l.FetchMealsForDate(ctx, day(10)))
	got := l.MealsForDate(day(10))
	require.Len(t, got, 1)
	assert.Equal(t, remote.ToRecord(remote.WireMeal{ID: first}).ID, got[0].ID)
}

func TestMealsForDateNeverFetched(t *testing.T) {
	l := New(newScripted(), testCalendar())
	got := l.MealsForDate(day(1))
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMealsForDateIsSortedCopy(t *testing.T) {
	l := New(newScripted(), testCalendar())
	l.AddMealLocal(day(10), core.MealRecord{ID: "2", Name: "b"})
	l.AddMealLocal(day(10), core.MealRecord{ID: "10", Name: "a"})
	l.AddMealLocal(day(10), core.MealRecord{ID: "3", Name: "c", CreatedAt: "2024-03-10T18:00:00"})
	l.AddMealLocal(day(10), core.MealRecord{ID: "1", Name: "d", CreatedAt: "2024-03-10T08:00:00"})

	got := l.MealsForDate(day(10))
	assert.Equal(t, []string{"1", "3", "10", "2"}, ids(got))

	got[0].Name = "mutated"
	assert.Equal(t, "d", l.MealsForDate(day(10))[0].Name)
}

func TestDeleteRemovesExactlyOne(t *testing.T) {
	svc := newScripted()
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		svc.seed(t, "2024-03-10", name)
	}
	l := New(svc, testCalendar())
	ctx := context.Background()
	require.NoError(t, l.FetchMealsForDate(ctx, day(10)))

	// Keep ids 4, 5 and 6 only, then delete 5.
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, l.DeleteMeal(ctx, day(10), id))
	}
	require.Equal(t, []string{"4", "5", "6"}, ids(l.MealsForDate(day(10))))

	require.NoError(t, l.DeleteMeal(ctx, day(10), "5"))
	assert.Equal(t, []string{"4", "6"}, ids(l.MealsForDate(day(10))))
	assert.Empty(t, l.Err())
}

func TestDeleteUnknownIDIsLocalNoop(t *testing.T) {
	svc := newScripted()
	svc.seed(t, "2024-03-10", "a")
	l := New(svc, testCalendar())
	ctx := context.Background()
	require.NoError(t, l.FetchMealsForDate(ctx, day(10)))

	// The remote knows id 2, the cache does not.
	svc.seed(t, "2024-03-11", "b")
	before := l.MealsForDate(day(10))
	require.NoError(t, l.DeleteMeal(ctx, day(10), "2"))
	if diff := cmp.Diff(before, l.MealsForDate(day(10))); diff != "" {
		t.Errorf("bucket changed (-before +after):\n%s", diff)
	}
}

func TestDeleteFindsRecordInAnotherBucket(t *testing.T) {
	svc := newScripted()
	id := svc.seed(t, "2024-03-09", "Late snack")
	l := New(svc, testCalendar())
	ctx := context.Background()
	require.NoError(t, l.FetchMealsForDate(ctx, day(9)))

	require.NoError(t, l.DeleteMeal(ctx, day(10), "1"))
	assert.Empty(t, l.MealsForDate(day(9)))
	_, err := svc.GetMeal(ctx, id)
	assert.True(t, remote.IsNotFound(err))
}

func TestFailedMutationLeavesCacheUntouched(t *testing.T) {
	failure := &remote.StatusError{Code: http.StatusInternalServerError}

	tests := []struct {
		name   string
		mutate func(l *Ledger) error
		setup  func(s *scripted)
	}{
		{
			name:   "delete",
			setup:  func(s *scripted) { s.deleteErr = failure },
			mutate: func(l *Ledger) error { return l.DeleteMeal(context.Background(), day(10), "1") },
		},
		{
			name:  "update",
			setup: func(s *scripted) { s.updateErr = failure },
			mutate: func(l *Ledger) error {
				return l.UpdateMeal(context.Background(), day(10), "1", core.MealRecord{Name: "Changed"})
			},
		},
		{
			name:  "update transport failure",
			setup: func(s *scripted) { s.updateErr = &remote.TransportError{Op: "PUT /meals/1", Err: errors.New("connection refused")} },
			mutate: func(l *Ledger) error {
				return l.UpdateMeal(context.Background(), day(10), "1", core.MealRecord{Name: "Changed"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newScripted()
			svc.seed(t, "2024-03-10", "Rice")
			svc.seed(t, "2024-03-10", "Soup")
			l := New(svc, testCalendar())
			require.NoError(t, l.FetchMealsForDate(context.Background(), day(10)))
			before := l.MealsForDate(day(10))

			tt.setup(svc)
			require.Error(t, tt.mutate(l))

			if diff := cmp.Diff(before, l.MealsForDate(day(10))); diff != "" {
				t.Errorf("bucket changed (-before +after):\n%s", diff)
			}
			assert.NotEmpty(t, l.Err())
		})
	}
}

func TestStatusMessageIsRecorded(t *testing.T) {
	svc := newScripted()
	svc.deleteErr = &remote.StatusError{Code: http.StatusBadGateway}
	l := New(svc, testCalendar())

	err := l.DeleteMeal(context.Background(), day(10), "3")
	require.Error(t, err)
	assert.Equal(t, "HTTP error! status: 502", l.Err())

	svc.deleteErr = &remote.StatusError{Code: http.StatusNotFound, Detail: "식사를 찾을 수 없습니다"}
	require.Error(t, l.DeleteMeal(context.Background(), day(10), "3"))
	assert.Equal(t, "식사를 찾을 수 없습니다", l.Err())
}

func TestInvalidIDSkipsNetwork(t *testing.T) {
	svc := newScripted()
	l := New(svc, testCalendar())

	err := l.DeleteMeal(context.Background(), day(10), "abc")
	assert.ErrorIs(t, err, remote.ErrInvalidID)
	err = l.UpdateMeal(context.Background(), day(10), "", core.MealRecord{Name: "x"})
	assert.ErrorIs(t, err, remote.ErrInvalidID)
	assert.Zero(t, svc.calls.Load())
	assert.NotEmpty(t, l.Err())
}

func TestUpdatePreservesIdentityAndCreatedAt(t *testing.T) {
	svc := newScripted()
	svc.seed(t, "2024-03-10", "Rice")
	l := New(svc, testCalendar())
	ctx := context.Background()
	require.NoError(t, l.FetchMealsForDate(ctx, day(10)))
	orig := l.MealsForDate(day(10))[0]
	require.NotEmpty(t, orig.CreatedAt)

	err := l.UpdateMeal(ctx, day(10), "1", core.MealRecord{
		ID:        "ignored",
		Name:      "  Fried rice ",
		Amount:    250,
		Nutrients: core.Nutrients{Calories: 420, SaturatedFat: 3.2},
		CreatedAt: "2030-01-01T00:00:00",
	})
	require.NoError(t, err)

	got := l.MealsForDate(day(10))[0]
	want := core.MealRecord{
		ID:        "1",
		Name:      "Fried rice",
		Amount:    250,
		Nutrients: core.Nutrients{Calories: 420, SaturatedFat: 3.2},
		CreatedAt: orig.CreatedAt,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("updated record mismatch (-want +got):\n%s", diff)
	}

	remoteMeal, err := svc.GetMeal(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 3.2, remoteMeal.NutritionData.SaturatedFat, 1e-9)
}

func TestUpdateValidatesInput(t *testing.T) {
	svc := newScripted()
	l := New(svc, testCalendar())

	err := l.UpdateMeal(context.Background(), day(10), "1", core.MealRecord{Name: "x", Amount: -1})
	assert.ErrorIs(t, err, core.ErrNegativeAmount)
	assert.Zero(t, svc.calls.Load())
}

func TestAddMealLocalReplacesDuplicateID(t *testing.T) {
	l := New(newScripted(), testCalendar())
	l.AddMealLocal(day(10), core.MealRecord{ID: "1", Name: "first"})
	l.AddMealLocal(day(10), core.MealRecord{ID: "1", Name: "second"})

	got := l.MealsForDate(day(10))
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Name)

	l.AddMealLocal(day(11), core.MealRecord{ID: "1", Name: "moved"})
	assert.Empty(t, l.MealsForDate(day(10)))
	assert.Equal(t, "moved", l.MealsForDate(day(11))[0].Name)
}

func TestCreateMealFilesAndNotifies(t *testing.T) {
	svc := newScripted()
	n := &recordingNotifier{err: errors.New("broker down")}
	l := New(svc, testCalendar(), WithNotifier(n), WithUserID(7))

	rec, err := l.CreateMeal(context.Background(), day(12), core.MealRecord{
		Name: "Kimchi", Amount: 50, Nutrients: core.Nutrients{Calories: 15},
	})
	require.NoError(t, err)
	assert.Equal(t, "1", rec.ID)
	assert.Equal(t, []core.MealRecord{rec}, l.MealsForDate(day(12)))

	stored, err := svc.GetMeal(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-12", stored.IntakeDate)
	require.NotNil(t, stored.UserID)
	assert.Equal(t, int64(7), *stored.UserID)

	require.Len(t, n.events, 1)
	ev := n.events[0]
	assert.Equal(t, core.EventCreated, ev.Kind)
	assert.Equal(t, "2024-03-12", ev.Date)
	assert.Equal(t, int64(7), ev.UserID)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, fixedNow.UTC(), ev.OccurredAt)
}

func TestCreateMealRejectsInvalidInput(t *testing.T) {
	svc := newScripted()
	l := New(svc, testCalendar())

	_, err := l.CreateMeal(context.Background(), day(12), core.MealRecord{Name: "  "})
	assert.ErrorIs(t, err, core.ErrEmptyName)
	assert.Equal(t, 0, svc.Len())
	assert.NotEmpty(t, l.Err())
}

func TestFetchFailureKeepsBucketAndRecordsError(t *testing.T) {
	svc := newScripted()
	svc.seed(t, "2024-03-10", "Rice")
	l := New(svc, testCalendar())
	ctx := context.Background()
	require.NoError(t, l.FetchMealsForDate(ctx, day(10)))
	before := l.MealsForDate(day(10))

	svc.listHook = func(context.Context, string, int64) ([]remote.WireMeal, error) {
		return nil, &remote.TransportError{Op: "GET /meals/2024-03-10", Err: errors.New("connection refused")}
	}
	err := l.FetchMealsForDate(ctx, day(10))
	require.Error(t, err)
	assert.True(t, remote.IsTransport(err))
	assert.Equal(t, before, l.MealsForDate(day(10)))
	assert.Contains(t, l.Err(), "connection refused")

	svc.listHook = nil
	require.NoError(t, l.FetchMealsForDate(ctx, day(10)))
	assert.Empty(t, l.Err())
}

func TestStaleFetchIsDiscarded(t *testing.T) {
	svc := newScripted()
	release := make(chan struct{})
	started := make(chan struct{})
	var n atomic.Int32
	svc.listHook = func(context.Context, string, int64) ([]remote.WireMeal, error) {
		if n.Add(1) == 1 {
			close(started)
			<-release
			return []remote.WireMeal{{ID: 1, FoodName: "stale"}}, nil
		}
		return []remote.WireMeal{{ID: 2, FoodName: "fresh"}}, nil
	}
	l := New(svc, testCalendar())
	ctx := context.Background()

	slow := make(chan error, 1)
	go func() { slow <- l.FetchMealsForDate(ctx, day(10)) }()
	<-started
	assert.True(t, l.Loading())

	require.NoError(t, l.FetchMealsForDate(ctx, day(10)))
	assert.True(t, l.Loading(), "slow fetch still in flight")

	close(release)
	require.NoError(t, <-slow)
	assert.False(t, l.Loading())

	got := l.MealsForDate(day(10))
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].Name)
}

func TestFetchRange(t *testing.T) {
	svc := newScripted()
	svc.seed(t, "2024-03-08", "a")
	svc.seed(t, "2024-03-09", "b")
	svc.seed(t, "2024-03-10", "c")
	l := New(svc, testCalendar(), WithConcurrency(2))

	require.NoError(t, l.FetchRange(context.Background(), day(8), day(10)))
	assert.Equal(t, []string{"2024-03-08", "2024-03-09", "2024-03-10"}, l.Dates())
	assert.Len(t, l.MealsForDate(day(9)), 1)
}

func TestFetchRangeReportsFailure(t *testing.T) {
	svc := newScripted()
	svc.listHook = func(ctx context.Context, date string, userID int64) ([]remote.WireMeal, error) {
		if date == "2024-03-09" {
			return nil, &remote.StatusError{Code: http.StatusServiceUnavailable}
		}
		return svc.Store.ListMeals(ctx, date, userID)
	}
	l := New(svc, testCalendar(), WithConcurrency(1))

	err := l.FetchRange(context.Background(), day(8), day(10))
	var se *remote.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Contains(t, l.Dates(), "2024-03-08")
}

func TestReset(t *testing.T) {
	l := New(newScripted(), testCalendar())
	l.AddMealLocal(day(10), core.MealRecord{ID: "1", Name: "a"})
	require.Len(t, l.Dates(), 1)

	l.Reset()
	assert.Empty(t, l.Dates())
	assert.Empty(t, l.MealsForDate(day(10)))
	assert.Empty(t, l.Err())
}

func TestConcurrentOperations(t *testing.T) {
	svc := newScripted()
	for i := 0; i < 5; i++ {
		svc.seed(t, "2024-03-10", "meal")
	}
	l := New(svc, testCalendar())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = l.FetchMealsForDate(ctx, day(10))
		}()
		go func() {
			defer wg.Done()
			_ = l.MealsForDate(day(10))
		}()
	}
	wg.Wait()

	assert.False(t, l.Loading())
	assert.Len(t, l.MealsForDate(day(10)), 5)
}

func TestCached(t *testing.T) {
	l := New(newScripted(), testCalendar())

	_, ok := l.Cached(day(10))
	assert.False(t, ok)

	require.NoError(t, l.FetchMealsForDate(context.Background(), day(10)))
	got, ok := l.Cached(day(10))
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestCachedIgnoresLocalOnlyBucket(t *testing.T) {
	svc := newScripted()
	svc.seed(t, "2024-03-10", "Rice")
	l := New(svc, testCalendar())

	_, err := l.CreateMeal(context.Background(), day(10), core.MealRecord{Name: "Soup"})
	require.NoError(t, err)

	got, ok := l.Cached(day(10))
	assert.False(t, ok, "a created meal must not mark the day fetched")
	require.Len(t, got, 1)
	assert.Equal(t, "Soup", got[0].Name)

	require.NoError(t, l.FetchMealsForDate(context.Background(), day(10)))
	got, ok = l.Cached(day(10))
	assert.True(t, ok)
	assert.Len(t, got, 2)

	l.Reset()
	_, ok = l.Cached(day(10))
	assert.False(t, ok)
}

func TestFanout(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{err: errors.New("b failed")}
	f := Fanout{a, nil, b}

	err := f.PublishMealEvent(context.Background(), core.MealEvent{ID: "ev-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b failed")
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}
