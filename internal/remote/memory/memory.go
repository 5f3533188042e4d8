// Package memory is an in-process meal backend. It serves local development
// when no remote API is available and stands in for the remote in tests.
package memory

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"mealtrack/internal/core"
	"mealtrack/internal/remote"
)

// createdLayout mirrors the naive timestamps the remote backend emits.
const createdLayout = "2006-01-02T15:04:05.000000"

type storedMeal struct {
	meal remote.WireMeal
	date string
}

type Store struct {
	mu       sync.Mutex
	meals    map[int64]storedMeal
	nextID   int64
	averages map[string][]core.AverageNutrient
	ages     map[int64]int
	loc      *time.Location
	now      func() time.Time
}

var _ remote.Backend = (*Store)(nil)

type Option func(*Store)

// WithLocation sets the zone created_at timestamps are written in.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

// WithClock replaces time.Now for created_at stamping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		meals:    map[int64]storedMeal{},
		averages: map[string][]core.AverageNutrient{},
		ages:     map[int64]int{},
		loc:      time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed is the YAML layout of a seed file.
type Seed struct {
	Users []struct {
		ID  int64 `yaml:"id"`
		Age int   `yaml:"age"`
	} `yaml:"users"`
	Meals []struct {
		UserID    int64              `yaml:"user_id"`
		Date      string             `yaml:"date"`
		FoodName  string             `yaml:"food_name"`
		CreatedAt string             `yaml:"created_at"`
		Nutrition map[string]float64 `yaml:"nutrition"`
	} `yaml:"meals"`
	Averages map[string][]core.AverageNutrient `yaml:"averages"`
}

// NewFromFile loads a YAML seed. A missing file yields an empty store.
func NewFromFile(path string, opts ...Option) (*Store, error) {
	s := New(opts...)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	if err := s.Load(data); err != nil {
		return nil, fmt.Errorf("load seed file %s: %w", path, err)
	}
	return s, nil
}

// Load adds the contents of a YAML seed document to the store.
func (s *Store) Load(data []byte) error {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range seed.Users {
		s.ages[u.ID] = u.Age
	}
	for group, rows := range seed.Averages {
		s.averages[group] = append([]core.AverageNutrient(nil), rows...)
	}
	for i, m := range seed.Meals {
		if strings.TrimSpace(m.FoodName) == "" {
			return fmt.Errorf("meal %d: %w", i, core.ErrEmptyName)
		}
		if _, err := time.Parse(core.DateKeyLayout, m.Date); err != nil {
			return fmt.Errorf("meal %d: %w: %q", i, core.ErrInvalidDateKey, m.Date)
		}
		s.nextID++
		w := remote.WireMeal{
			ID:            s.nextID,
			FoodName:      m.FoodName,
			NutritionData: nutritionFromMap(m.Nutrition),
			IntakeDate:    m.Date,
			CreatedAt:     m.CreatedAt,
		}
		if m.UserID != 0 {
			uid := m.UserID
			w.UserID = &uid
		}
		s.meals[w.ID] = storedMeal{meal: w, date: m.Date}
	}
	return nil
}

func nutritionFromMap(m map[string]float64) remote.NutritionData {
	return remote.NutritionData{
		Amount:       m["amount"],
		Calories:     m["calories"],
		Protein:      m["protein"],
		Carbs:        m["carbs"],
		Fat:          m["fat"],
		Sodium:       m["sodium"],
		Sugar:        m["sugar"],
		Cholesterol:  m["cholesterol"],
		SaturatedFat: m["saturated_fat"],
		TransFat:     m["trans_fat"],
	}
}

func notFound(id int64) error {
	return &remote.StatusError{Code: http.StatusNotFound, Detail: fmt.Sprintf("식사를 찾을 수 없습니다 (id=%d)", id)}
}

func ownedBy(w remote.WireMeal, userID int64) bool {
	return userID == 0 || (w.UserID != nil && *w.UserID == userID)
}

// mealsOn returns the meals filed under date in id order. Caller holds mu.
func (s *Store) mealsOn(date string, userID int64) []remote.WireMeal {
	out := []remote.WireMeal{}
	for _, sm := range s.meals {
		if sm.date == date && ownedBy(sm.meal, userID) {
			out = append(out, sm.meal)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) ListMeals(_ context.Context, date string, userID int64) ([]remote.WireMeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mealsOn(date, userID), nil
}

func (s *Store) GetMeal(_ context.Context, id int64) (remote.WireMeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sm, ok := s.meals[id]
	if !ok {
		return remote.WireMeal{}, notFound(id)
	}
	return sm.meal, nil
}

func (s *Store) CreateMeal(_ context.Context, userID int64, req remote.CreateMealRequest) (remote.WireMeal, error) {
	if strings.TrimSpace(req.FoodName) == "" {
		return remote.WireMeal{}, &remote.StatusError{Code: http.StatusUnprocessableEntity, Detail: "food_name is required"}
	}
	date := req.IntakeDate
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().In(s.loc)
	if date == "" {
		date = now.Format(core.DateKeyLayout)
	}
	s.nextID++
	w := remote.WireMeal{
		ID:            s.nextID,
		FoodName:      req.FoodName,
		NutritionData: req.NutritionData,
		IntakeDate:    date,
		CreatedAt:     now.Format(createdLayout),
	}
	if userID != 0 {
		w.UserID = &userID
	}
	s.meals[w.ID] = storedMeal{meal: w, date: date}
	return w, nil
}

func (s *Store) UpdateMeal(_ context.Context, id int64, req remote.UpdateMealRequest) (remote.WireMeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sm, ok := s.meals[id]
	if !ok {
		return remote.WireMeal{}, notFound(id)
	}
	if name := strings.TrimSpace(req.FoodName); name != "" {
		sm.meal.FoodName = name
	}
	sm.meal.NutritionData = req.NutritionData
	s.meals[id] = sm
	return sm.meal, nil
}

func (s *Store) DeleteMeal(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meals[id]; !ok {
		return notFound(id)
	}
	delete(s.meals, id)
	return nil
}

func (s *Store) MealSummary(_ context.Context, date string, userID int64) (core.DaySummary, error) {
	s.mu.Lock()
	meals := s.mealsOn(date, userID)
	s.mu.Unlock()

	records := make([]core.MealRecord, 0, len(meals))
	for _, m := range meals {
		records = append(records, remote.ToRecord(m))
	}
	return core.Summarize(date, records, s.loc), nil
}

func (s *Store) CompareNutrition(ctx context.Context, userID int64, date string) (core.Comparison, error) {
	s.mu.Lock()
	age, ok := s.ages[userID]
	s.mu.Unlock()
	group := core.DefaultAgeGroup
	if ok {
		group = core.AgeGroupFor(age)
	}

	summary, err := s.MealSummary(ctx, date, userID)
	if err != nil {
		return core.Comparison{}, err
	}
	if summary.TotalMeals == 0 {
		return core.Comparison{}, fmt.Errorf("%w: 해당 날짜의 영양소 기록이 없습니다", remote.ErrRejected)
	}
	averages, _ := s.AverageNutrition(ctx, group)
	return core.Compare(date, group, summary.Totals, averages), nil
}

func (s *Store) AverageNutrition(_ context.Context, ageGroup string) ([]core.AverageNutrient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.AverageNutrient{}, s.averages[ageGroup]...), nil
}

// ScanLabel reads the upload as plain text, one "name value" pair per line,
// so label fixtures can be written by hand.
func (s *Store) ScanLabel(_ context.Context, image io.Reader, _ string) (core.LabelScan, error) {
	data, err := io.ReadAll(image)
	if err != nil {
		return core.LabelScan{}, fmt.Errorf("read image: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return core.LabelScan{}, fmt.Errorf("%w: 텍스트를 인식하지 못했습니다", remote.ErrScanFailed)
	}

	found := map[string]float64{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimRight(fields[1], "kcalmg"), 64)
		if err != nil {
			continue
		}
		found[fields[0]] = v
	}

	scan := core.LabelScan{FullText: text, Values: map[string]float64{}, Missing: []string{}}
	for _, name := range core.LabelNutrients {
		if v, ok := found[name]; ok {
			scan.Values[name] = v
		} else {
			scan.Missing = append(scan.Missing, name)
		}
	}
	return scan, nil
}

// Len reports how many meals are stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.meals)
}
