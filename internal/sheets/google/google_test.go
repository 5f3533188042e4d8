package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"mealtrack/internal/core"
)

// fakeSheets serves the handful of Values endpoints the client uses.
type fakeSheets struct {
	mu          sync.Mutex
	header      []interface{}
	rows        [][]interface{}
	headerPuts  int
	appendCalls int
	paths       []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.Method+" "+r.URL.Path)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "!A1:R1"):
		vr := gsheet.ValueRange{}
		if f.header != nil {
			vr.Values = [][]interface{}{f.header}
		}
		json.NewEncoder(w).Encode(vr)
	case r.Method == http.MethodPut:
		var vr gsheet.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		f.header = vr.Values[0]
		f.headerPuts++
		json.NewEncoder(w).Encode(gsheet.UpdateValuesResponse{})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
		var vr gsheet.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		f.rows = append(f.rows, vr.Values...)
		f.appendCalls++
		json.NewEncoder(w).Encode(gsheet.AppendValuesResponse{
			Updates: &gsheet.UpdateValuesResponse{UpdatedRange: "'2024 Meals'!A2:R2"},
		})
	case r.Method == http.MethodGet:
		all := [][]interface{}{f.header}
		all = append(all, f.rows...)
		json.NewEncoder(w).Encode(gsheet.ValueRange{Values: all})
	default:
		http.Error(w, "unexpected", http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return NewWithService(svc, "sheet-1", "Meals", nil)
}

func sampleEvent(id string) core.MealEvent {
	return core.MealEvent{
		ID: id, Kind: core.EventCreated, UserID: 7, Date: "2024-03-10",
		OccurredAt: time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC),
		Meal:       core.MealRecord{ID: "42", Name: "떡볶이", Amount: 300, Nutrients: core.Nutrients{Calories: 480}},
	}
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{}, nil)
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "x"}, nil)
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "x", CredentialsFile: "/does/not/exist.json"}, nil)
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExportEvent_WritesHeaderOnce(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	ref, err := c.ExportEvent(ctx, sampleEvent("e1"))
	if err != nil {
		t.Fatalf("ExportEvent() error = %v", err)
	}
	if ref != "'2024 Meals'!A2:R2" {
		t.Errorf("ref = %q", ref)
	}
	if _, err := c.ExportEvent(ctx, sampleEvent("e2")); err != nil {
		t.Fatalf("ExportEvent() error = %v", err)
	}

	if fake.headerPuts != 1 {
		t.Errorf("header written %d times, want 1", fake.headerPuts)
	}
	if fake.appendCalls != 2 {
		t.Errorf("append calls = %d, want 2", fake.appendCalls)
	}
	if got := fake.rows[0][6]; got != "떡볶이" {
		t.Errorf("food name cell = %v", got)
	}
	if !strings.Contains(fake.paths[0], "2024 Meals") {
		t.Errorf("expected year-prefixed tab, got %v", fake.paths[0])
	}
}

func TestExportEvent_RejectsForeignHeader(t *testing.T) {
	fake := &fakeSheets{header: []interface{}{"Month", "Day", "Description"}}
	c := newTestClient(t, fake)

	_, err := c.ExportEvent(context.Background(), sampleEvent("e1"))
	if err == nil || !strings.Contains(err.Error(), "unexpected meal sheet header") {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.appendCalls != 0 {
		t.Error("nothing should be appended under a foreign header")
	}
}

func TestExportEvent_Validation(t *testing.T) {
	c := &Client{spreadsheetID: "x"}
	if _, err := c.ExportEvent(context.Background(), core.MealEvent{}); err == nil {
		t.Error("expected error for missing id")
	}
	if _, err := c.ExportEvent(context.Background(), sampleEvent("e1")); err == nil {
		t.Error("expected error for nil service")
	}
}

func TestListEvents_RoundTrip(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	if _, err := c.ExportEvent(ctx, sampleEvent("e1")); err != nil {
		t.Fatal(err)
	}
	events, err := c.ListEvents(ctx, "2024-03-10")
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 1 || events[0].ID != "e1" || events[0].Meal.Calories != 480 {
		t.Errorf("unexpected events: %+v", events)
	}
}
