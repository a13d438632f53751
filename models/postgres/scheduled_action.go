package postgres

import (
	"time"

	"gorm.io/datatypes"
)

/*
 * 'ScheduledAction' is one pending deferred side effect (a pre-start
 * reminder or a post-end teardown) for a live session. Rows outlive the
 * process: on startup every pending row is re-armed, so reminders and
 * teardowns survive restarts. Rows are deleted once fired.
 */
type ScheduledAction struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	SessionID string    `gorm:"size:64;not null;index:idx_scheduled_actions_session"`
	Kind      string    `gorm:"size:16;not null"` // "reminder" or "teardown"
	MemberID  string    `gorm:"size:50"`          // set for reminders
	FireAt    time.Time `gorm:"not null;index:idx_scheduled_actions_fire_at"`
	// Extra context for the fire-time handler (announcement id, channel)
	Payload   datatypes.JSON
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}
