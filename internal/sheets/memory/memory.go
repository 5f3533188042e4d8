package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"mealtrack/internal/core"
	ports "mealtrack/internal/sheets"
)

var (
	_ ports.EventExporter = (*Store)(nil)
	_ ports.EventLister   = (*Store)(nil)
)

// Store keeps exported events in process, in append order.
type Store struct {
	mu    sync.Mutex
	items []core.MealEvent
	fail  error
}

func New() *Store {
	return &Store{}
}

// FailWith makes every following export return err; nil clears it.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

// ExportEvent stores the event and returns a synthetic row reference.
func (s *Store) ExportEvent(_ context.Context, ev core.MealEvent) (string, error) {
	if ev.ID == "" {
		return "", errors.New("export event: missing event id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.items = append(s.items, ev)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

func (s *Store) ListEvents(_ context.Context, date string) ([]core.MealEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.MealEvent
	for _, ev := range s.items {
		if ev.Date == date {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
