package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"mealtrack/internal/core"
)

func TestParseDate(t *testing.T) {
	cal := core.Calendar{
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2024, 3, 5, 23, 0, 0, 0, time.UTC) },
	}

	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{"explicit", "2024-02-29", "2024-02-29", false},
		{"today", "today", "2024-03-05", false},
		{"today any case", "Today", "2024-03-05", false},
		{"empty", "", "2024-03-05", false},
		{"wrong layout", "05/03/2024", "", true},
		{"impossible day", "2023-02-29", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.SetPathValue("date", tt.value)

			got, err := ParseDate(r, cal)
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidDateKey) {
					t.Fatalf("err = %v, want ErrInvalidDateKey", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if key := cal.Key(got); key != tt.want {
				t.Errorf("date = %s, want %s", key, tt.want)
			}
		})
	}
}

func TestParseAge(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		fallback int
		want     int
		wantErr  bool
	}{
		{"from query", "age=34", -1, 34, false},
		{"fallback", "", 40, 40, false},
		{"required", "", -1, 0, true},
		{"not a number", "age=old", 30, 0, true},
		{"negative", "age=-2", 30, 0, true},
		{"too large", "age=200", 30, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			got, err := ParseAge(q, tt.fallback)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("age = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseBool(t *testing.T) {
	q, _ := url.ParseQuery("a=1&b=TRUE&c=no&d=")
	for key, want := range map[string]bool{"a": true, "b": true, "c": false, "d": false, "missing": false} {
		if got := ParseBool(q, key); got != want {
			t.Errorf("ParseBool(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestDecodeMeal(t *testing.T) {
	body := `{"id":"5","name":" Rice\n","amount":210,"calories":300,"saturatedFat":1.5}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()

	rec, err := DecodeMeal(w, r)
	if err != nil {
		t.Fatalf("DecodeMeal: %v", err)
	}
	if rec.ID != "" {
		t.Errorf("ID = %q, want it dropped", rec.ID)
	}
	if rec.Name != "Rice" {
		t.Errorf("Name = %q, want %q", rec.Name, "Rice")
	}
	if rec.Amount != 210 || rec.Calories != 300 || rec.SaturatedFat != 1.5 {
		t.Errorf("unexpected values: %+v", rec)
	}
}

func TestDecodeJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "", "empty"},
		{"malformed", "{", "invalid JSON"},
		{"too large", `{"name":"` + strings.Repeat("a", maxJSONBody) + `"}`, "exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var v map[string]any
			err := DecodeJSON(httptest.NewRecorder(), r, &v)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("\t김치\x00찌개 \r\n"); got != "김치찌개" {
		t.Errorf("sanitizeInput = %q", got)
	}
}
