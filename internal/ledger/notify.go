package ledger

import (
	"context"
	"errors"

	"mealtrack/internal/core"
)

// Fanout delivers each event to every notifier in order and joins their errors.
type Fanout []Notifier

func (f Fanout) PublishMealEvent(ctx context.Context, ev core.MealEvent) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.PublishMealEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev core.MealEvent) error

func (f NotifierFunc) PublishMealEvent(ctx context.Context, ev core.MealEvent) error {
	return f(ctx, ev)
}
