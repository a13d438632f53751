package bus

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	coordinator_constants "github.com/brandonscholten/capstone-spring-2025/constants/coordinator"
	"github.com/brandonscholten/capstone-spring-2025/utils"
)

// The CRUD backend publishes loosely-typed JSON. Everything is validated
// here, at the boundary, so the coordinator only ever sees well-formed
// sessions: timestamps parsed, capacity numeric, kind resolved.

// SessionCreated is the normalized session_created payload.
type SessionCreated struct {
	ID           string
	Kind         string // "game" or "event"
	Title        string
	Description  string
	Organizer    string
	StartTime    time.Time // UTC
	EndTime      time.Time // UTC
	Capacity     int       // games only; 0 for events
	Participants []string
	Price        string
	Catalogue    string
	Image        string
}

// RoomRequest is the normalized room_request_created payload.
type RoomRequest struct {
	SessionCreated

	Email           string
	RoomSize        string // "half" or "full"
	ReservationName string
	Password        string

	// The payload as published, replayed into the backend on approval
	Raw json.RawMessage
}

// rawSession covers both kinds of session_created message plus the room
// request extras. Field presence decides the kind.
type rawSession struct {
	ID          json.Number `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	StartTime   string      `json:"start_time"`
	EndTime     string      `json:"end_time"`

	// event kind
	Price string      `json:"price"`
	Game  json.Number `json:"game"`

	// game kind
	Organizer string      `json:"organizer"`
	Players   string      `json:"players"` // capacity, as a display string
	Catalogue json.Number `json:"catalogue"`

	Participants []string `json:"participants"`
	Image        string   `json:"image"`

	// room request extras
	Email              string          `json:"email"`
	HalfPrivateRoom    json.RawMessage `json:"halfPrivateRoom"`
	FirstLastName      string          `json:"firstLastName"`
	PrivateRoomRequest bool            `json:"privateRoomRequest"`
	Password           string          `json:"password"`
}

// DecodeSessionCreated validates a session_created message.
func DecodeSessionCreated(data []byte) (*SessionCreated, error) {
	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed session_created payload: %v", err)
	}
	return normalize(&raw)
}

// DecodeRoomRequest validates a room_request_created message.
func DecodeRoomRequest(data []byte) (*RoomRequest, error) {
	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed room_request_created payload: %v", err)
	}
	if !raw.PrivateRoomRequest {
		return nil, fmt.Errorf("room_request_created payload without privateRoomRequest flag")
	}

	session, err := normalize(&raw)
	if err != nil {
		return nil, err
	}

	roomSize, err := parseRoomSize(raw.HalfPrivateRoom)
	if err != nil {
		return nil, err
	}

	request := &RoomRequest{
		SessionCreated:  *session,
		Email:           strings.TrimSpace(raw.Email),
		RoomSize:        roomSize,
		ReservationName: strings.TrimSpace(raw.FirstLastName),
		Password:        raw.Password,
		Raw:             json.RawMessage(data),
	}
	if request.ReservationName == "" {
		request.ReservationName = session.Organizer
	}
	return request, nil
}

func normalize(raw *rawSession) (*SessionCreated, error) {
	if raw.ID.String() == "" {
		return nil, fmt.Errorf("session payload missing id")
	}
	if raw.Title == "" {
		return nil, fmt.Errorf("session payload missing title")
	}

	start, err := utils.ParseTimestamp(raw.StartTime)
	if err != nil {
		return nil, fmt.Errorf("session %s: %v", raw.ID, err)
	}
	end, err := utils.ParseTimestamp(raw.EndTime)
	if err != nil {
		return nil, fmt.Errorf("session %s: %v", raw.ID, err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("session %s: end time %s is not after start time %s",
			raw.ID, raw.EndTime, raw.StartTime)
	}

	session := &SessionCreated{
		ID:           raw.ID.String(),
		Title:        raw.Title,
		Description:  raw.Description,
		Organizer:    raw.Organizer,
		StartTime:    start,
		EndTime:      end,
		Participants: raw.Participants,
		Price:        raw.Price,
		Catalogue:    raw.Catalogue.String(),
		Image:        raw.Image,
	}

	// Games carry an organizer and a capacity; everything else is a venue
	// event with an open roster.
	if raw.Organizer != "" || raw.Players != "" {
		session.Kind = coordinator_constants.KIND_GAME
		capacity, err := strconv.Atoi(strings.TrimSpace(raw.Players))
		if err != nil {
			// Capacity arrives as a display string; a non-numeric value
			// is fatal to this session, never a guess
			return nil, fmt.Errorf("session %s: unparseable capacity %q", raw.ID, raw.Players)
		}
		if capacity < 1 {
			return nil, fmt.Errorf("session %s: capacity %d below the organizer floor", raw.ID, capacity)
		}
		if seats := initialRosterSize(raw.Organizer, raw.Participants); seats > capacity {
			return nil, fmt.Errorf("session %s: %d participants on a capacity of %d", raw.ID, seats, capacity)
		}
		session.Capacity = capacity
	} else {
		session.Kind = coordinator_constants.KIND_EVENT
		session.Catalogue = raw.Game.String()
	}

	return session, nil
}

// initialRosterSize counts the seats a payload claims at creation: the
// organizer plus the distinct participants. The roster must fit the
// capacity from the moment the session exists.
func initialRosterSize(organizer string, participants []string) int {
	seen := make(map[string]bool)
	if organizer != "" {
		seen[organizer] = true
	}
	for _, p := range participants {
		if p != "" {
			seen[p] = true
		}
	}
	return len(seen)
}

// parseRoomSize accepts both encodings seen on the wire: a bare boolean
// (true = half room) and the strings "half"/"full".
func parseRoomSize(value json.RawMessage) (string, error) {
	if len(value) == 0 {
		return "", fmt.Errorf("room request missing halfPrivateRoom")
	}

	var b bool
	if err := json.Unmarshal(value, &b); err == nil {
		if b {
			return coordinator_constants.ROOM_HALF, nil
		}
		return coordinator_constants.ROOM_FULL, nil
	}

	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case coordinator_constants.ROOM_HALF:
			return coordinator_constants.ROOM_HALF, nil
		case coordinator_constants.ROOM_FULL:
			return coordinator_constants.ROOM_FULL, nil
		}
	}
	return "", fmt.Errorf("unrecognized halfPrivateRoom value %s", value)
}
