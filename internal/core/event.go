package core

import "time"

// EventKind names a confirmed ledger mutation.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// MealEvent describes a mutation the remote service has confirmed. Meal is
// the record after the change; for deletions only Meal.ID is guaranteed.
type MealEvent struct {
	ID         string     `json:"id"`
	Kind       EventKind  `json:"kind"`
	UserID     int64      `json:"user_id"`
	Date       string     `json:"date"`
	Meal       MealRecord `json:"meal"`
	OccurredAt time.Time  `json:"occurred_at"`
}
