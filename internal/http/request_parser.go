// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating request data:
// date path segments, query parameters and JSON bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"mealtrack/internal/core"
)

const maxJSONBody = 1 << 20

var (
	errMissingAge = errors.New("age is required")
	errEmptyBody  = errors.New("request body is empty")
)

// ParseDate reads the {date} path value. "today" and an empty value resolve
// to the calendar's current day.
func ParseDate(r *http.Request, cal core.Calendar) (time.Time, error) {
	v := strings.TrimSpace(r.PathValue("date"))
	if v == "" || strings.EqualFold(v, "today") {
		return cal.Today(), nil
	}
	return cal.Parse(v)
}

// ParseMonth reads the {month} path value as YYYY-MM. An empty value or
// "current" is the month holding today.
func ParseMonth(r *http.Request, cal core.Calendar) (time.Time, error) {
	v := strings.TrimSpace(r.PathValue("month"))
	if v == "" || strings.EqualFold(v, "current") {
		from, _ := cal.MonthBounds(cal.Today())
		return from, nil
	}
	return cal.ParseMonth(v)
}

// ParseAge reads the "age" query parameter, falling back to fallback when it
// is absent. A fallback below zero means the parameter is required.
func ParseAge(query url.Values, fallback int) (int, error) {
	v := strings.TrimSpace(query.Get("age"))
	if v == "" {
		if fallback < 0 {
			return 0, errMissingAge
		}
		return fallback, nil
	}
	age, err := strconv.Atoi(v)
	if err != nil || age < 0 || age > 150 {
		return 0, fmt.Errorf("invalid age %q", v)
	}
	return age, nil
}

// ParseBool accepts the usual spellings of a flag; anything else is false.
func ParseBool(query url.Values, key string) bool {
	switch strings.ToLower(strings.TrimSpace(query.Get(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// DecodeJSON reads a JSON body of at most 1 MiB into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return fmt.Errorf("request body exceeds %d bytes", mbe.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// DecodeMeal reads a meal record from the body. Any id in the body is
// ignored; the path decides which meal is addressed.
func DecodeMeal(w http.ResponseWriter, r *http.Request) (core.MealRecord, error) {
	var rec core.MealRecord
	if err := DecodeJSON(w, r, &rec); err != nil {
		return core.MealRecord{}, err
	}
	rec.ID = ""
	rec.Name = sanitizeInput(rec.Name)
	return rec, nil
}

// sanitizeInput trims s and drops control characters.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s))
}
