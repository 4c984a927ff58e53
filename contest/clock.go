package contest

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
	timeLayout  = "15:04"
)

// Clock maps instants to civil days and months in one fixed offset. The
// offset is a deployment constant and never derived from the host zone.
type Clock struct {
	loc *time.Location
}

// NewClock returns a clock for loc (UTC when nil).
func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{loc: loc}
}

// Location returns the clock's fixed zone.
func (c Clock) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Civil converts now into the clock's zone.
func (c Clock) Civil(now time.Time) time.Time { return now.In(c.Location()) }

// Today returns the civil date of now as YYYY-MM-DD.
func (c Clock) Today(now time.Time) string { return c.Civil(now).Format(dayLayout) }

// MonthKey returns the civil month of now as YYYY-MM.
func (c Clock) MonthKey(now time.Time) string { return c.Civil(now).Format(monthLayout) }

// TimeOfDay returns the civil wall time of now as HH:MM.
func (c Clock) TimeOfDay(now time.Time) string { return c.Civil(now).Format(timeLayout) }

// DayWindow returns the half-open window [start, end) covering day.
func (c Clock) DayWindow(day string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(dayLayout, day, c.Location())
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse day %q: %w", day, err)
	}
	return start, start.AddDate(0, 0, 1), nil
}

// EffectiveDay clamps a configured day-of-month to the last day of the civil
// month containing now, so a "31st" trigger fires on the 30th in April.
func (c Clock) EffectiveDay(configured int, now time.Time) int {
	t := c.Civil(now)
	last := LastDayOfMonth(t.Year(), t.Month())
	if configured > last {
		return last
	}
	return configured
}

// LastDayOfMonth returns the number of days in the given month.
func LastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ParseOffset parses a fixed UTC offset such as "+03:00", "-0530", "+3" or
// "UTC" into a zone named after it.
func ParseOffset(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	if upper == "" || upper == "UTC" || upper == "Z" {
		return time.UTC, nil
	}
	upper = strings.TrimPrefix(upper, "UTC")
	sign := 1
	switch {
	case strings.HasPrefix(upper, "+"):
		upper = upper[1:]
	case strings.HasPrefix(upper, "-"):
		sign = -1
		upper = upper[1:]
	default:
		return nil, fmt.Errorf("offset %q: missing sign", s)
	}
	var hh, mm string
	switch {
	case strings.Contains(upper, ":"):
		hh, mm, _ = strings.Cut(upper, ":")
	case len(upper) == 4:
		hh, mm = upper[:2], upper[2:]
	default:
		hh, mm = upper, "0"
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 14 {
		return nil, fmt.Errorf("offset %q: bad hours", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return nil, fmt.Errorf("offset %q: bad minutes", s)
	}
	secs := sign * (h*3600 + m*60)
	name := fmt.Sprintf("UTC%c%02d:%02d", "+-"[boolIndex(sign < 0)], h, m)
	return time.FixedZone(name, secs), nil
}

func boolIndex(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ParseTimeOfDay validates a wall time like "9:05" and normalizes it to "09:05".
func ParseTimeOfDay(s string) (string, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return "", fmt.Errorf("time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return "", fmt.Errorf("time %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return "", fmt.Errorf("time %q: bad minute", s)
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}
