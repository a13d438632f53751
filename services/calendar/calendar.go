// Package calendar talks to the venue calendar: it reads the public ICS
// feed to detect private-room booking conflicts and posts approved
// reservations to the calendar API.
package calendar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	coordinator_constants "github.com/brandonscholten/capstone-spring-2025/constants/coordinator"
)

// ErrConflict is returned by CreateEntry when the requested window is
// already blocked on the venue calendar and the entry was not forced.
var ErrConflict = errors.New("calendar: requested window conflicts with an existing reservation")

// Entry is a private-room reservation to be written to the venue calendar.
type Entry struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Start       string `json:"start"`
	End         string `json:"end"`
	TimeZone    string `json:"timeZone"`
	Force       bool   `json:"force"`
}

// Booking is an existing entry parsed out of the ICS feed. RoomSize is
// derived from the entry title and defaults to a full-room hold when the
// title carries no marker.
type Booking struct {
	Title    string
	Start    time.Time
	End      time.Time
	RoomSize string
}

// Client reads the venue's ICS feed and writes entries through its API.
type Client struct {
	feedURL string
	apiURL  string
	http    *http.Client
}

// New builds a calendar client from CALENDAR_FEED_URL and
// CALENDAR_API_URL, falling back to the provided values when the
// environment is unset.
func New(feedURL, apiURL string) *Client {
	if v := os.Getenv("CALENDAR_FEED_URL"); v != "" {
		feedURL = v
	}
	if v := os.Getenv("CALENDAR_API_URL"); v != "" {
		apiURL = v
	}
	return &Client{
		feedURL: feedURL,
		apiURL:  apiURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// CreateEntry books a private room on the venue calendar. Unless the
// entry is forced, the window is first checked against the ICS feed and
// ErrConflict is returned when it is blocked.
func (c *Client) CreateEntry(entry Entry, roomSize string) error {
	if !entry.Force {
		start, end, err := entryWindow(entry)
		if err != nil {
			return fmt.Errorf("invalid entry window: %w", err)
		}
		bookings, err := c.FetchBookings()
		if err != nil {
			return fmt.Errorf("fetching calendar feed: %w", err)
		}
		if WindowBlocked(bookings, start, end, roomSize) {
			return ErrConflict
		}
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding calendar entry: %w", err)
	}
	resp, err := c.http.Post(c.apiURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting calendar entry: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("calendar API returned status %d", resp.StatusCode)
	}
	log.Printf("[CALENDAR] Created entry %q (%s - %s)", entry.Title, entry.Start, entry.End)
	return nil
}

// FetchBookings downloads the ICS feed and returns the reservations it
// contains. Entries without parseable start and end times are skipped.
func (c *Client) FetchBookings() ([]Booking, error) {
	resp, err := c.http.Get(c.feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetching ICS feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ICS feed returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading ICS feed: %w", err)
	}
	content := string(data)
	if !strings.Contains(content, "BEGIN:VCALENDAR") {
		return nil, fmt.Errorf("feed does not look like iCalendar data")
	}

	return ParseBookings(strings.NewReader(content))
}

// ParseBookings decodes iCalendar data and extracts the booking windows.
func ParseBookings(r io.Reader) ([]Booking, error) {
	decoder := ical.NewDecoder(r)

	var bookings []Booking
	for {
		cal, err := decoder.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding calendar: %w", err)
		}

		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			booking, ok := parseBooking(comp)
			if !ok {
				continue
			}
			bookings = append(bookings, booking)
		}
	}
	return bookings, nil
}

func parseBooking(comp *ical.Component) (Booking, bool) {
	booking := Booking{RoomSize: coordinator_constants.ROOM_FULL}

	if prop := comp.Props.Get(ical.PropSummary); prop != nil {
		booking.Title = prop.Value
		booking.RoomSize = roomSizeFromTitle(prop.Value)
	}

	prop := comp.Props.Get(ical.PropDateTimeStart)
	if prop == nil {
		return Booking{}, false
	}
	start, err := parseDateTimeProperty(prop)
	if err != nil {
		log.Printf("[CALENDAR-ERROR] Skipping entry %q: %v", booking.Title, err)
		return Booking{}, false
	}
	booking.Start = start

	prop = comp.Props.Get(ical.PropDateTimeEnd)
	if prop == nil {
		return Booking{}, false
	}
	end, err := parseDateTimeProperty(prop)
	if err != nil {
		log.Printf("[CALENDAR-ERROR] Skipping entry %q: %v", booking.Title, err)
		return Booking{}, false
	}
	booking.End = end

	return booking, true
}

func parseDateTimeProperty(prop *ical.Prop) (time.Time, error) {
	if t, err := prop.DateTime(time.UTC); err == nil {
		return t, nil
	}

	// Some feeds emit bare datetimes the library refuses; parse those
	// directly.
	formats := []string{
		"20060102T150405",
		"20060102T150405Z",
		time.RFC3339,
		"2006-01-02T15:04:05",
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, prop.Value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse datetime value %q", prop.Value)
}

// roomSizeFromTitle reads the room marker the approval workflow appends
// to reservation titles. Entries without a marker hold the whole room.
func roomSizeFromTitle(title string) string {
	if strings.Contains(title, "(Half Room)") {
		return coordinator_constants.ROOM_HALF
	}
	return coordinator_constants.ROOM_FULL
}

// WindowBlocked reports whether a reservation of the given room size can
// NOT be placed in [start, end). A full-room booking blocks everything it
// overlaps. Half-room bookings share the room in pairs: a third
// overlapping half is blocked, and a full-room request is blocked by any
// overlapping half.
func WindowBlocked(bookings []Booking, start, end time.Time, roomSize string) bool {
	halves := 0
	for _, b := range bookings {
		if !overlaps(b.Start, b.End, start, end) {
			continue
		}
		if b.RoomSize == coordinator_constants.ROOM_FULL {
			return true
		}
		halves++
	}
	if roomSize == coordinator_constants.ROOM_FULL {
		return halves > 0
	}
	return halves >= 2
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func entryWindow(entry Entry) (time.Time, time.Time, error) {
	loc := time.UTC
	if entry.TimeZone != "" {
		parsed, err := time.LoadLocation(entry.TimeZone)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("unknown time zone %q: %w", entry.TimeZone, err)
		}
		loc = parsed
	}
	start, err := parseEntryTime(entry.Start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start: %w", err)
	}
	end, err := parseEntryTime(entry.End, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end: %w", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end %s is not after start %s", entry.End, entry.Start)
	}
	return start, end, nil
}

func parseEntryTime(value string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp %q", value)
}
