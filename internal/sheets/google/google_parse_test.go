package google

import (
	"testing"
	"time"

	"mealtrack/internal/core"
)

func headerRow() []interface{} {
	row := make([]interface{}, len(header))
	for i, h := range header {
		row[i] = h
	}
	return row
}

func TestEventRowMatchesHeader(t *testing.T) {
	ev := core.MealEvent{
		ID: "e1", Kind: core.EventCreated, UserID: 7, Date: "2024-03-10",
		OccurredAt: time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC),
		Meal:       core.MealRecord{ID: "42", Name: "라면", Amount: 120, Nutrients: core.Nutrients{Sodium: 1790}},
	}
	row := eventRow(ev)
	if len(row) != len(header) {
		t.Fatalf("row has %d cells, header has %d", len(row), len(header))
	}
	if row[6] != "라면" || row[12] != 1790.0 {
		t.Errorf("unexpected row: %v", row)
	}
	if row[2] != "2024-03-10T03:00:00Z" {
		t.Errorf("occurred at = %v", row[2])
	}
}

func TestCheckHeader(t *testing.T) {
	empty, err := checkHeader(nil)
	if err != nil || !empty {
		t.Fatalf("nil values: empty=%v err=%v", empty, err)
	}
	empty, err = checkHeader([][]interface{}{headerRow()})
	if err != nil || empty {
		t.Fatalf("full header: empty=%v err=%v", empty, err)
	}
	_, err = checkHeader([][]interface{}{{"Event ID", "Kind"}})
	if err == nil {
		t.Fatal("expected error for partial header")
	}
}

func TestParseRows(t *testing.T) {
	values := [][]interface{}{
		headerRow(),
		{"e1", "created", "2024-03-10T03:00:00Z", 7.0, "2024-03-10", "42", "김밥", 230.0, 480.0, 12.0, 70.0, 15.0, "1,200", "3,5", 20.0, 4.0, 0.0, "2024-03-10T12:00:00"},
		{"e2", "created", "2024-03-11T03:00:00Z", 7.0, "2024-03-11", "43", "other day"},
		{"", "created", "", "", "2024-03-10"},
	}
	events, err := parseRows(values, "2024-03-10")
	if err != nil {
		t.Fatalf("parseRows() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.UserID != 7 || ev.Meal.Name != "김밥" || ev.Kind != core.EventCreated {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Meal.Sodium != 1200 {
		t.Errorf("sodium = %v, want 1200", ev.Meal.Sodium)
	}
	if ev.Meal.Sugar != 3.5 {
		t.Errorf("sugar = %v, want 3.5", ev.Meal.Sugar)
	}
	if !ev.OccurredAt.Equal(time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC)) {
		t.Errorf("occurred at = %v", ev.OccurredAt)
	}
}

func TestParseNumber(t *testing.T) {
	tests := map[string]float64{
		"":        0,
		"12":      12,
		"3,5":     3.5,
		"1,234.5": 1234.5,
		"n/a":     0,
	}
	for in, want := range tests {
		if got := parseNumber(in); got != want {
			t.Errorf("parseNumber(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Meals", 2024, "2024 Meals"},
		{"2023 Meals", 2024, "2023 Meals"},
		{"  ", 2024, ""},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}
