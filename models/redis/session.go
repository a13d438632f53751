package redis

import "time"

// Response states for a (session, member) pair. A member holds at most one
// mark at a time.
type ResponseState string

const (
	ResponseAttending ResponseState = "attending"
	ResponseDeclined  ResponseState = "declined"
)

// Session is the live registry entry behind one announcement. The roster
// here is the authority for capacity decisions; the announcement's roster
// and count fields are projections of it.
type Session struct {
	Id          string `json:"id"` // Matches the record id in the CRUD backend
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Organizer   string `json:"organizer"`

	StartTime time.Time `json:"start_time"` // UTC
	EndTime   time.Time `json:"end_time"`   // UTC

	// Capacity only applies to game sessions, events are uncapped
	Capacity int      `json:"capacity"`
	Roster   []string `json:"roster"` // Roster[0] is always the organizer

	// Declined marks kept so attend/decline stay mutually exclusive even
	// for members who never attended
	Declined map[string]bool `json:"declined"`

	Price     string `json:"price,omitempty"`
	Catalogue string `json:"catalogue,omitempty"` // Matches catalogue.id for games
	ImageURL  string `json:"image,omitempty"`

	AnnouncementID string `json:"announcement_id"`
	Channel        string `json:"channel"`
}

// IsGame reports whether capacity rules apply to this session.
func (s *Session) IsGame() bool {
	return s.Kind == "game"
}

// Attending reports whether the member currently holds the attend mark.
func (s *Session) Attending(member string) bool {
	for _, m := range s.Roster {
		if m == member {
			return true
		}
	}
	return false
}

// Response returns the member's current RSVP state, if any.
func (s *Session) Response(member string) (ResponseState, bool) {
	if s.Attending(member) {
		return ResponseAttending, true
	}
	if s.Declined[member] {
		return ResponseDeclined, true
	}
	return "", false
}
