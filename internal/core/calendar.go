package core

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // zone data for hosts without a system database
)

// DateKeyLayout is the canonical bucket key format.
const DateKeyLayout = "2006-01-02"

// DefaultTimezone is used when no zone is configured.
const DefaultTimezone = "Asia/Seoul"

var ErrInvalidDateKey = errors.New("invalid date key")

// Calendar canonicalizes instants to local calendar days in an explicit zone.
type Calendar struct {
	Location *time.Location
	// Now is the clock used by Today. Defaults to time.Now.
	Now func() time.Time
}

// NewCalendar loads the named zone. An empty name selects DefaultTimezone.
func NewCalendar(zone string) (Calendar, error) {
	if zone == "" {
		zone = DefaultTimezone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Calendar{}, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return Calendar{Location: loc}, nil
}

func (c Calendar) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Loc returns the calendar's zone, UTC when unset.
func (c Calendar) Loc() *time.Location {
	return c.location()
}

// Key returns the YYYY-MM-DD key of the day containing t.
func (c Calendar) Key(t time.Time) string {
	return t.In(c.location()).Format(DateKeyLayout)
}

// Parse returns midnight of the keyed day.
func (c Calendar) Parse(key string) (time.Time, error) {
	t, err := time.ParseInLocation(DateKeyLayout, key, c.location())
	if err != nil || t.Format(DateKeyLayout) != key {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateKey, key)
	}
	return t, nil
}

// Today returns midnight of the current day.
func (c Calendar) Today() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	t := now().In(c.location())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.location())
}

// Days returns midnight of every day in [from, to], inclusive. It returns
// nil when to precedes from.
func (c Calendar) Days(from, to time.Time) []time.Time {
	loc := c.location()
	from = from.In(loc)
	to = to.In(loc)
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, loc)

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
