package sheets

import (
	"context"

	"mealtrack/internal/core"
)

// Ports for outbound adapters.
type (
	// EventExporter appends one confirmed meal event to an external ledger
	// and returns a reference to where it landed.
	EventExporter interface {
		ExportEvent(ctx context.Context, ev core.MealEvent) (rowRef string, err error)
	}

	// EventLister reads exported events back for one day.
	EventLister interface {
		ListEvents(ctx context.Context, date string) ([]core.MealEvent, error)
	}
)
