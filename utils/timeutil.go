package utils

import (
	"fmt"
	"time"
)

// All times are stored and transmitted in UTC; the venue displays them in
// its local zone.
const DisplayZone = "America/New_York"

// Display formats used on announcements. DisplayTimeLayout round-trips to
// the minute.
const (
	DisplayDateLayout = "Mon, Jan 2 2006"
	DisplayTimeLayout = "3:04 PM"
)

func displayLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(DisplayZone)
	if err != nil {
		return nil, fmt.Errorf("failed to load display zone %s: %v", DisplayZone, err)
	}
	return loc, nil
}

// ParseTimestamp parses an ISO8601 timestamp from a bus payload. Payloads
// are produced in UTC but may omit the offset, so a bare local-less form is
// accepted and pinned to UTC.
func ParseTimestamp(value string) (time.Time, error) {
	layouts := []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, value, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q: %v", value, lastErr)
}

// FormatTimestamp renders a reference-zone (UTC) instant for the wire.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ToDisplay converts a reference-zone instant into the venue's display zone.
func ToDisplay(t time.Time) (time.Time, error) {
	loc, err := displayLocation()
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

// DisplayClock renders an instant as the venue shows it: 12-hour clock in
// the display zone.
func DisplayClock(t time.Time) (string, error) {
	local, err := ToDisplay(t)
	if err != nil {
		return "", err
	}
	return local.Format(DisplayTimeLayout), nil
}

// DisplayDate renders the announcement date line in the display zone.
func DisplayDate(t time.Time) (string, error) {
	local, err := ToDisplay(t)
	if err != nil {
		return "", err
	}
	return local.Format(DisplayDateLayout), nil
}

// ParseDisplayClock parses a 12-hour clock string shown on an announcement
// back into a reference-zone instant on the given display-zone date.
func ParseDisplayClock(date time.Time, clock string) (time.Time, error) {
	loc, err := displayLocation()
	if err != nil {
		return time.Time{}, err
	}
	parsed, err := time.ParseInLocation(DisplayTimeLayout, clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable clock string %q: %v", clock, err)
	}
	local := date.In(loc)
	combined := time.Date(local.Year(), local.Month(), local.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, loc)
	return combined.UTC(), nil
}
