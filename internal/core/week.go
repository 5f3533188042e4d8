package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// MonthKeyLayout is the YYYY-MM form months are addressed by.
const MonthKeyLayout = "2006-01"

// DefaultWeekStart is the first day of a week unless configured otherwise.
const DefaultWeekStart = time.Sunday

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekday accepts an English day name, its three-letter abbreviation,
// or a number from 0 (Sunday) to 6. An empty string is DefaultWeekStart.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultWeekStart, nil
	}
	if d, ok := weekdays[s]; ok {
		return d, nil
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// WeekStart returns midnight of the first day of the week holding t, for
// weeks that begin on first.
func (c Calendar) WeekStart(t time.Time, first time.Weekday) time.Time {
	loc := c.location()
	t = t.In(loc)
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	back := (int(d.Weekday()) - int(first) + 7) % 7
	return d.AddDate(0, 0, -back)
}

// Week returns midnight of the seven days of the week holding t.
func (c Calendar) Week(t time.Time, first time.Weekday) []time.Time {
	start := c.WeekStart(t, first)
	return c.Days(start, start.AddDate(0, 0, 6))
}

// ParseMonth returns midnight of the first day of a YYYY-MM month.
func (c Calendar) ParseMonth(key string) (time.Time, error) {
	t, err := time.ParseInLocation(MonthKeyLayout, strings.TrimSpace(key), c.location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q: want YYYY-MM", key)
	}
	return t, nil
}

// MonthBounds returns midnight of the first and last day of the month
// holding t.
func (c Calendar) MonthBounds(t time.Time) (time.Time, time.Time) {
	loc := c.location()
	t = t.In(loc)
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	return first, first.AddDate(0, 1, -1)
}

// MonthGrid returns the days of the month holding t, padded at both ends to
// whole weeks beginning on first.
func (c Calendar) MonthGrid(t time.Time, first time.Weekday) []time.Time {
	from, to := c.MonthBounds(t)
	start := c.WeekStart(from, first)
	end := c.WeekStart(to, first).AddDate(0, 0, 6)
	return c.Days(start, end)
}

// MacroRatios are the whole-percent shares of protein, carbs and fat in
// their combined weight.
type MacroRatios struct {
	Protein int `json:"protein"`
	Carbs   int `json:"carbs"`
	Fat     int `json:"fat"`
}

// WeekSummary aggregates the day summaries of one week.
type WeekSummary struct {
	Start       string       `json:"start"`
	End         string       `json:"end"`
	Days        []DaySummary `json:"days"`
	Totals      Nutrients    `json:"totals"`
	TotalMeals  int          `json:"totalMeals"`
	LoggedDays  int          `json:"loggedDays"`
	Averages    Nutrients    `json:"averages"`
	MacroRatios MacroRatios  `json:"macroRatios"`
}

// SummarizeWeek totals days, which are in ascending order. Averages are per
// day with calories logged, or over every day when none has any; calories
// round to whole kcal and the rest to one decimal.
func SummarizeWeek(days []DaySummary) WeekSummary {
	w := WeekSummary{Days: days}
	if len(days) == 0 {
		return w
	}
	w.Start = days[0].Date
	w.End = days[len(days)-1].Date

	for _, d := range days {
		w.Totals = w.Totals.Add(d.Totals)
		w.TotalMeals += d.TotalMeals
		if d.Totals.Calories > 0 {
			w.LoggedDays++
		}
	}

	n := w.LoggedDays
	if n == 0 {
		n = len(days)
	}
	w.Averages = averageOf(w.Totals, n)
	w.MacroRatios = ratiosOf(w.Totals)
	return w
}

func averageOf(total Nutrients, days int) Nutrients {
	per := func(v float64) float64 { return math.Round(v/float64(days)*10) / 10 }
	return Nutrients{
		Calories:     math.Round(total.Calories / float64(days)),
		Protein:      per(total.Protein),
		Carbs:        per(total.Carbs),
		Fat:          per(total.Fat),
		Sodium:       per(total.Sodium),
		Sugar:        per(total.Sugar),
		Cholesterol:  per(total.Cholesterol),
		SaturatedFat: per(total.SaturatedFat),
		TransFat:     per(total.TransFat),
	}
}

func ratiosOf(total Nutrients) MacroRatios {
	sum := total.Protein + total.Carbs + total.Fat
	if sum <= 0 {
		return MacroRatios{}
	}
	pct := func(v float64) int { return int(math.Round(v / sum * 100)) }
	return MacroRatios{
		Protein: pct(total.Protein),
		Carbs:   pct(total.Carbs),
		Fat:     pct(total.Fat),
	}
}

// CalendarDay is one cell of a month grid.
type CalendarDay struct {
	Date    string `json:"date"`
	Meals   int    `json:"meals"`
	InMonth bool   `json:"inMonth"`
}

// MonthCalendar counts logged meals per day over a month grid.
type MonthCalendar struct {
	Month      string        `json:"month"`
	Days       []CalendarDay `json:"days"`
	TotalMeals int           `json:"totalMeals"`
	LoggedDays int           `json:"loggedDays"`
}

// BuildMonth lays counts, keyed by date, over grid. Grid days outside month
// carry no count.
func BuildMonth(month string, grid []string, counts map[string]int) MonthCalendar {
	m := MonthCalendar{Month: month, Days: make([]CalendarDay, 0, len(grid))}
	for _, key := range grid {
		day := CalendarDay{Date: key, InMonth: strings.HasPrefix(key, month+"-")}
		if day.InMonth {
			day.Meals = counts[key]
			m.TotalMeals += day.Meals
			if day.Meals > 0 {
				m.LoggedDays++
			}
		}
		m.Days = append(m.Days, day)
	}
	return m
}
