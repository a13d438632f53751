package calendar

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	coordinator_constants "github.com/brandonscholten/capstone-spring-2025/constants/coordinator"
)

func window(startHour, endHour int) (time.Time, time.Time) {
	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	return day.Add(time.Duration(startHour) * time.Hour), day.Add(time.Duration(endHour) * time.Hour)
}

func booking(startHour, endHour int, roomSize string) Booking {
	start, end := window(startHour, endHour)
	return Booking{Title: "existing", Start: start, End: end, RoomSize: roomSize}
}

func TestWindowBlocked(t *testing.T) {
	start, end := window(18, 21)

	t.Run("Empty calendar never blocks", func(t *testing.T) {
		assert.False(t, WindowBlocked(nil, start, end, coordinator_constants.ROOM_FULL))
		assert.False(t, WindowBlocked(nil, start, end, coordinator_constants.ROOM_HALF))
	})

	t.Run("Overlapping full room blocks everything", func(t *testing.T) {
		bookings := []Booking{booking(19, 20, coordinator_constants.ROOM_FULL)}
		assert.True(t, WindowBlocked(bookings, start, end, coordinator_constants.ROOM_FULL))
		assert.True(t, WindowBlocked(bookings, start, end, coordinator_constants.ROOM_HALF))
	})

	t.Run("One half blocks a full request but not another half", func(t *testing.T) {
		bookings := []Booking{booking(19, 20, coordinator_constants.ROOM_HALF)}
		assert.True(t, WindowBlocked(bookings, start, end, coordinator_constants.ROOM_FULL))
		assert.False(t, WindowBlocked(bookings, start, end, coordinator_constants.ROOM_HALF))
	})

	t.Run("Two halves fill the room", func(t *testing.T) {
		bookings := []Booking{
			booking(18, 20, coordinator_constants.ROOM_HALF),
			booking(19, 21, coordinator_constants.ROOM_HALF),
		}
		assert.True(t, WindowBlocked(bookings, start, end, coordinator_constants.ROOM_HALF))
	})

	t.Run("Adjacent bookings do not overlap", func(t *testing.T) {
		bookings := []Booking{
			booking(15, 18, coordinator_constants.ROOM_FULL),
			booking(21, 23, coordinator_constants.ROOM_FULL),
		}
		assert.False(t, WindowBlocked(bookings, start, end, coordinator_constants.ROOM_FULL))
	})
}

const sampleFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//venue//calendar//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:res-1\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"DTSTART:20250314T230000Z\r\n" +
	"DTEND:20250315T020000Z\r\n" +
	"SUMMARY:Birthday Party (Half Room)\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:res-2\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"DTSTART:20250320T180000Z\r\n" +
	"DTEND:20250320T220000Z\r\n" +
	"SUMMARY:Corporate Retreat\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseBookings(t *testing.T) {
	bookings, err := ParseBookings(strings.NewReader(sampleFeed))
	assert.NoError(t, err)
	assert.Len(t, bookings, 2)

	t.Run("Room size comes from the title marker", func(t *testing.T) {
		assert.Equal(t, coordinator_constants.ROOM_HALF, bookings[0].RoomSize)
	})

	t.Run("Unmarked entries hold the whole room", func(t *testing.T) {
		assert.Equal(t, coordinator_constants.ROOM_FULL, bookings[1].RoomSize)
	})

	t.Run("Windows parse as UTC instants", func(t *testing.T) {
		assert.Equal(t, time.Date(2025, 3, 14, 23, 0, 0, 0, time.UTC), bookings[0].Start)
		assert.Equal(t, time.Date(2025, 3, 15, 2, 0, 0, 0, time.UTC), bookings[0].End)
	})
}

func TestCreateEntry(t *testing.T) {
	newTestClient := func(t *testing.T, apiHandler http.HandlerFunc) (*Client, *httptest.Server, *httptest.Server) {
		feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(sampleFeed))
		}))
		api := httptest.NewServer(apiHandler)
		client := &Client{
			feedURL: feed.URL,
			apiURL:  api.URL,
			http:    feed.Client(),
		}
		return client, feed, api
	}

	t.Run("Conflicting window returns ErrConflict without posting", func(t *testing.T) {
		posted := false
		client, feed, api := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			posted = true
		})
		defer feed.Close()
		defer api.Close()

		err := client.CreateEntry(Entry{
			Title:    "Org's Session (Full Room)",
			Start:    "2025-03-14T23:30:00",
			End:      "2025-03-15T01:00:00",
			TimeZone: "UTC",
		}, coordinator_constants.ROOM_FULL)

		assert.ErrorIs(t, err, ErrConflict)
		assert.False(t, posted)
	})

	t.Run("Force skips the conflict check", func(t *testing.T) {
		var received Entry
		client, feed, api := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		})
		defer feed.Close()
		defer api.Close()

		err := client.CreateEntry(Entry{
			Title:    "Org's Session (Full Room)",
			Start:    "2025-03-14T23:30:00",
			End:      "2025-03-15T01:00:00",
			TimeZone: "UTC",
			Force:    true,
		}, coordinator_constants.ROOM_FULL)

		assert.NoError(t, err)
		assert.Equal(t, "Org's Session (Full Room)", received.Title)
		assert.True(t, received.Force)
	})

	t.Run("Free window posts the entry", func(t *testing.T) {
		posted := false
		client, feed, api := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			posted = true
		})
		defer feed.Close()
		defer api.Close()

		err := client.CreateEntry(Entry{
			Title:    "Org's Session (Half Room)",
			Start:    "2025-04-01T18:00:00",
			End:      "2025-04-01T21:00:00",
			TimeZone: "UTC",
		}, coordinator_constants.ROOM_HALF)

		assert.NoError(t, err)
		assert.True(t, posted)
	})

	t.Run("API failure is not a conflict", func(t *testing.T) {
		client, feed, api := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		defer feed.Close()
		defer api.Close()

		err := client.CreateEntry(Entry{
			Title:    "Org's Session (Half Room)",
			Start:    "2025-04-01T18:00:00",
			End:      "2025-04-01T21:00:00",
			TimeZone: "UTC",
		}, coordinator_constants.ROOM_HALF)

		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrConflict)
	})
}
