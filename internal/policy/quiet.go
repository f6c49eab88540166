// Package policy decides whether a geofence hit may be dispatched.
package policy

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/PratikDhanave/geofence-engine/internal/models"
)

// DefaultTimezone applies when the settings row leaves the zone empty.
const DefaultTimezone = "Europe/Rome"

// ErrInvalidTime is returned for quiet-hours bounds that are not "HH:MM".
var ErrInvalidTime = errors.New("quiet hours bound must be HH:MM")

// IsQuietHours reports whether now, seen in q.Timezone, falls inside the window.
//
// Non-wrapping windows are half-open [start,end). A window with start > end
// wraps past midnight and covers [start,2400) and [0,end]. An empty Start or End
// disables quiet hours.
func IsQuietHours(q models.QuietHours, now time.Time) (bool, error) {
	if strings.TrimSpace(q.Start) == "" || strings.TrimSpace(q.End) == "" {
		return false, nil
	}

	start, err := parseHHMM(q.Start)
	if err != nil {
		return false, err
	}
	end, err := parseHHMM(q.End)
	if err != nil {
		return false, err
	}

	tz := strings.TrimSpace(q.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return false, fmt.Errorf("quiet hours timezone %q: %w", tz, err)
	}

	cur, _ := strconv.Atoi(now.In(loc).Format("1504"))

	if start <= end {
		return cur >= start && cur < end, nil
	}
	return cur >= start || cur <= end, nil
}

// parseHHMM turns "22:00" (or "2200") into 2200.
func parseHHMM(s string) (int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ":", "")
	if len(s) != 4 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	if v/100 > 24 || v%100 > 59 || v > 2400 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return v, nil
}

// DayStart returns local midnight of now in tz (DefaultTimezone when empty).
func DayStart(now time.Time, tz string) (time.Time, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("timezone %q: %w", tz, err)
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc), nil
}
