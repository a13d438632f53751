package coordinator_constants

import "time"

// Session kinds carried on the bus and in the registry
const (
	KIND_GAME  = "game"
	KIND_EVENT = "event"
)

// Logical channels the gateway broadcasts to. The actual room ids are
// configuration (CHANNEL_* env vars), these are the fallbacks.
const (
	CHANNEL_GAMES      = "games"
	CHANNEL_EVENTS     = "events"
	CHANNEL_MODERATION = "moderation"
)

// RSVP affordances
const (
	REACTION_ATTEND  = "👍"
	REACTION_DECLINE = "👎"
)

// Bus channels published by the CRUD backend
const (
	BUS_SESSION_CREATED      = "session_created"
	BUS_ROOM_REQUEST_CREATED = "room_request_created"
)

// Room sizes for private-room requests
const (
	ROOM_HALF = "half"
	ROOM_FULL = "full"
)

// Parties at or above this capacity must go through the room request flow
const ROOM_REQUIRED_CAPACITY = 10

// Timing
const (
	REMINDER_LEAD    = 1 * time.Hour
	DECISION_TIMEOUT = 60 * time.Second // bounded wait for a moderator reaction
	REASON_TIMEOUT   = 60 * time.Second
)

// Scheduled action kinds
const (
	ACTION_REMINDER = "reminder"
	ACTION_TEARDOWN = "teardown"
)
