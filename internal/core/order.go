package core

import (
	"sort"
	"time"
)

// SortMeals orders records in place: timestamped records first, ascending by
// creation time; then records without a usable timestamp. Ties and untimed
// records fall back to lexicographic ID order, so the order is total.
func SortMeals(records []MealRecord, loc *time.Location) {
	type keyed struct {
		rec   MealRecord
		at    time.Time
		timed bool
	}
	ks := make([]keyed, len(records))
	for i, r := range records {
		at, ok := r.CreatedTime(loc)
		ks[i] = keyed{rec: r, at: at, timed: ok}
	}

	sort.SliceStable(ks, func(i, j int) bool {
		a, b := ks[i], ks[j]
		if a.timed != b.timed {
			return a.timed
		}
		if a.timed && !a.at.Equal(b.at) {
			return a.at.Before(b.at)
		}
		return a.rec.ID < b.rec.ID
	})

	for i := range ks {
		records[i] = ks[i].rec
	}
}

// SortedMeals returns a sorted copy of records.
func SortedMeals(records []MealRecord, loc *time.Location) []MealRecord {
	out := make([]MealRecord, len(records))
	copy(out, records)
	SortMeals(out, loc)
	return out
}
