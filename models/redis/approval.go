package redis

import (
	"encoding/json"
	"time"
)

// Decision states of a room request. Pending requests go terminal exactly
// once; there is no retry after a denial.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
)

// ApprovalRequest tracks one private-room request through moderation. It is
// keyed by the moderation message id so moderator reactions can be routed
// back to it.
type ApprovalRequest struct {
	MessageID string `json:"message_id"`

	// Requester contact: either a chat username or an email, never both.
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`

	RoomSize        string `json:"room_size"` // "half" or "full"
	ReservationName string `json:"reservation_name"`

	Organizer string    `json:"organizer"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"` // UTC
	EndTime   time.Time `json:"end_time"`   // UTC

	Decision     Decision `json:"decision"`
	DenialReason string   `json:"denial_reason,omitempty"`

	// The original creation payload, replayed into the CRUD backend when
	// the request is approved.
	Payload json.RawMessage `json:"payload"`

	CreatedAt time.Time `json:"created_at"`
}
