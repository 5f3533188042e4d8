package core

import "time"

// Period is the part of the day a meal was logged in.
type Period string

const (
	Breakfast Period = "breakfast"
	Lunch     Period = "lunch"
	Dinner    Period = "dinner"
	Snack     Period = "snack"
)

// DaySummary aggregates every meal logged on one calendar day.
type DaySummary struct {
	Date          string         `json:"date"`
	TotalMeals    int            `json:"totalMeals"`
	Totals        Nutrients      `json:"totals"`
	Amount        float64        `json:"amount"`
	MealsByPeriod map[Period]int `json:"mealsByPeriod"`
}

// PeriodOf buckets an hour of the day: before 11 breakfast, before 15 lunch,
// before 20 dinner, snack otherwise.
func PeriodOf(hour int) Period {
	switch {
	case hour < 11:
		return Breakfast
	case hour < 15:
		return Lunch
	case hour < 20:
		return Dinner
	default:
		return Snack
	}
}

// Summarize totals the records of the day keyed by date. Records without a
// usable timestamp count towards totals but not towards any period.
func Summarize(date string, records []MealRecord, loc *time.Location) DaySummary {
	s := DaySummary{
		Date:          date,
		TotalMeals:    len(records),
		MealsByPeriod: map[Period]int{},
	}
	for _, r := range records {
		s.Totals = s.Totals.Add(r.Nutrients)
		s.Amount += r.Amount
		if at, ok := r.CreatedTime(loc); ok {
			if loc != nil {
				at = at.In(loc)
			}
			s.MealsByPeriod[PeriodOf(at.Hour())]++
		}
	}
	return s
}
