package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"mealtrack/internal/core"
)

// Columns A..R of a meal sheet.
var header = []string{
	"Event ID", "Kind", "Occurred At", "User ID", "Date", "Meal ID", "Food Name", "Amount (g)",
	"Calories", "Protein", "Carbs", "Fat", "Sodium", "Sugar", "Cholesterol",
	"Saturated Fat", "Trans Fat", "Created At",
}

const lastColumn = "R"

// eventRow renders ev in header order.
func eventRow(ev core.MealEvent) []any {
	m := ev.Meal
	return []any{
		ev.ID, string(ev.Kind), ev.OccurredAt.UTC().Format(time.RFC3339), ev.UserID, ev.Date,
		m.ID, m.Name, m.Amount,
		m.Calories, m.Protein, m.Carbs, m.Fat, m.Sodium, m.Sugar, m.Cholesterol,
		m.SaturatedFat, m.TransFat, m.CreatedAt,
	}
}

// checkHeader reports whether values (the first row of a sheet) is empty,
// and fails when it holds a header with missing columns.
func checkHeader(values [][]interface{}) (empty bool, err error) {
	if len(values) == 0 || len(values[0]) == 0 {
		return true, nil
	}
	got := toStrings(values[0])
	var missing []string
	for _, h := range header {
		if indexOf(got, h) == -1 {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return false, fmt.Errorf("unexpected meal sheet header: missing %s; got headers=%v", strings.Join(missing, ","), got)
	}
	return false, nil
}

// parseRows turns sheet rows back into events, keeping only those for date.
// The first row is treated as the header and used to locate columns.
func parseRows(values [][]interface{}, date string) ([]core.MealEvent, error) {
	if len(values) == 0 {
		return nil, nil
	}
	if _, err := checkHeader(values[:1]); err != nil {
		return nil, err
	}
	cols := toStrings(values[0])
	idx := make(map[string]int, len(header))
	for _, h := range header {
		idx[h] = indexOf(cols, h)
	}

	var out []core.MealEvent
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		get := func(h string) string { return safeGet(row, idx[h]) }
		if get("Date") != date || get("Event ID") == "" {
			continue
		}
		userID, _ := strconv.ParseInt(get("User ID"), 10, 64)
		occurred, _ := time.Parse(time.RFC3339, get("Occurred At"))
		ev := core.MealEvent{
			ID:         get("Event ID"),
			Kind:       core.EventKind(get("Kind")),
			UserID:     userID,
			Date:       date,
			OccurredAt: occurred,
			Meal: core.MealRecord{
				ID:        get("Meal ID"),
				Name:      get("Food Name"),
				Amount:    parseNumber(get("Amount (g)")),
				CreatedAt: get("Created At"),
				Nutrients: core.Nutrients{
					Calories:     parseNumber(get("Calories")),
					Protein:      parseNumber(get("Protein")),
					Carbs:        parseNumber(get("Carbs")),
					Fat:          parseNumber(get("Fat")),
					Sodium:       parseNumber(get("Sodium")),
					Sugar:        parseNumber(get("Sugar")),
					Cholesterol:  parseNumber(get("Cholesterol")),
					SaturatedFat: parseNumber(get("Saturated Fat")),
					TransFat:     parseNumber(get("Trans Fat")),
				},
			},
		}
		out = append(out, ev)
	}
	return out, nil
}

// parseNumber accepts a decimal comma and thousands separators the sheet
// locale may add. Unparseable cells read as zero.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
