package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	coordinator_constants "github.com/brandonscholten/capstone-spring-2025/constants/coordinator"
	models "github.com/brandonscholten/capstone-spring-2025/models/postgres"
	redis_models "github.com/brandonscholten/capstone-spring-2025/models/redis"
	"github.com/brandonscholten/capstone-spring-2025/services/backend"
	"github.com/brandonscholten/capstone-spring-2025/utils"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Registry is the slice of the session store the scheduler reads at fire
// time.
type Registry interface {
	GetSession(sessionId string) (*redis_models.Session, error)
	DeleteSession(session *redis_models.Session) error
}

// Surface delivers reminder notices and removes announcements.
type Surface interface {
	Notify(member, text string) error
	DeleteMessage(messageID string) error
}

// Backend is the persistence collaborator slice used by teardown.
type Backend interface {
	DeleteSession(kind, sessionID string) error
}

// actionPayload is the fire-time context stored with each row, so restored
// actions can still run when the registry entry has meanwhile vanished.
type actionPayload struct {
	AnnouncementID string    `json:"announcement_id"`
	Kind           string    `json:"kind"`
	Title          string    `json:"title"`
	StartTime      time.Time `json:"start_time"`
	// Late reminders were already inside the lead window when scheduled
	Late bool `json:"late,omitempty"`
}

// Scheduler binds the two time-triggered side effects to each live session:
// pre-start reminders per attendee and post-end teardown. Actions are
// persisted as rows and re-armed on startup, so they survive restarts.
type Scheduler struct {
	db       *gorm.DB
	registry Registry
	surface  Surface
	backend  Backend
}

func New(db *gorm.DB, registry Registry, surface Surface, backend Backend) *Scheduler {
	return &Scheduler{
		db:       db,
		registry: registry,
		surface:  surface,
		backend:  backend,
	}
}

// ScheduleReminder arms a private notice for the member at one reminder
// lead before the session starts. A reminder already inside the lead window
// fires immediately with "starting soon" wording. Scheduling is idempotent
// per (session, member) while a reminder is still pending.
func (s *Scheduler) ScheduleReminder(session *redis_models.Session, member string) error {
	var existing models.ScheduledAction
	err := s.db.Where("session_id = ? AND kind = ? AND member_id = ?",
		session.Id, coordinator_constants.ACTION_REMINDER, member).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("error checking pending reminder: %v", err)
	}

	fireAt := session.StartTime.Add(-coordinator_constants.REMINDER_LEAD)
	payload, err := json.Marshal(actionPayload{
		AnnouncementID: session.AnnouncementID,
		Kind:           session.Kind,
		Title:          session.Title,
		StartTime:      session.StartTime,
		Late:           !fireAt.After(time.Now()),
	})
	if err != nil {
		return fmt.Errorf("error marshaling reminder payload: %v", err)
	}

	action := models.ScheduledAction{
		SessionID: session.Id,
		Kind:      coordinator_constants.ACTION_REMINDER,
		MemberID:  member,
		FireAt:    fireAt,
		Payload:   datatypes.JSON(payload),
	}
	if err := s.db.Create(&action).Error; err != nil {
		return fmt.Errorf("error persisting reminder: %v", err)
	}

	s.arm(action)
	log.Printf("[SCHEDULE] Reminder for %s on session %s at %s", member, session.Id, fireAt)
	return nil
}

// ScheduleTeardown arms the announcement deletion and record cleanup at the
// session's end time. There is no cancellation path; a session cannot be
// un-scheduled once posted.
func (s *Scheduler) ScheduleTeardown(session *redis_models.Session) error {
	payload, err := json.Marshal(actionPayload{
		AnnouncementID: session.AnnouncementID,
		Kind:           session.Kind,
		Title:          session.Title,
		StartTime:      session.StartTime,
	})
	if err != nil {
		return fmt.Errorf("error marshaling teardown payload: %v", err)
	}

	action := models.ScheduledAction{
		SessionID: session.Id,
		Kind:      coordinator_constants.ACTION_TEARDOWN,
		FireAt:    session.EndTime,
		Payload:   datatypes.JSON(payload),
	}
	if err := s.db.Create(&action).Error; err != nil {
		return fmt.Errorf("error persisting teardown: %v", err)
	}

	s.arm(action)
	log.Printf("[SCHEDULE] Teardown for session %s at %s", session.Id, session.EndTime)
	return nil
}

// RestorePending re-arms every persisted action. Called once at startup;
// past-due actions fire immediately.
func (s *Scheduler) RestorePending() error {
	var actions []models.ScheduledAction
	if err := s.db.Find(&actions).Error; err != nil {
		return fmt.Errorf("error loading pending actions: %v", err)
	}

	for _, action := range actions {
		s.arm(action)
	}
	log.Printf("[SCHEDULE] Restored %d pending actions", len(actions))
	return nil
}

// arm starts the deferred task for one persisted row. Non-positive delays
// fire on their own goroutine right away.
func (s *Scheduler) arm(action models.ScheduledAction) {
	delay := time.Until(action.FireAt)
	run := func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[SCHEDULE-ERROR] Recovered firing action %d (%s): %v",
					action.ID, action.Kind, r)
			}
		}()
		s.fire(action)
	}

	if delay <= 0 {
		go run()
		return
	}
	time.AfterFunc(delay, run)
}

func (s *Scheduler) fire(action models.ScheduledAction) {
	// Fire-once: the row goes away no matter how the side effect lands
	defer func() {
		if err := s.db.Delete(&models.ScheduledAction{}, action.ID).Error; err != nil {
			log.Printf("[SCHEDULE-ERROR] Failed to delete fired action %d: %v", action.ID, err)
		}
	}()

	var payload actionPayload
	if err := json.Unmarshal(action.Payload, &payload); err != nil {
		log.Printf("[SCHEDULE-ERROR] Unparseable payload on action %d: %v", action.ID, err)
		return
	}

	switch action.Kind {
	case coordinator_constants.ACTION_REMINDER:
		s.fireReminder(action, payload)
	case coordinator_constants.ACTION_TEARDOWN:
		s.fireTeardown(action, payload)
	default:
		log.Printf("[SCHEDULE-ERROR] Unknown action kind %q on action %d", action.Kind, action.ID)
	}
}

func (s *Scheduler) fireReminder(action models.ScheduledAction, payload actionPayload) {
	// Re-check the attend affordance at fire time; a member who declined
	// since scheduling gets no reminder
	session, err := s.registry.GetSession(action.SessionID)
	if err != nil {
		log.Printf("[REMINDER-ERROR] Session %s lookup failed: %v", action.SessionID, err)
		return
	}
	if session == nil || !session.Attending(action.MemberID) {
		log.Printf("[REMINDER] Suppressed for %s on session %s (no longer attending)",
			action.MemberID, action.SessionID)
		return
	}

	clock, err := utils.DisplayClock(session.StartTime)
	if err != nil {
		log.Printf("[REMINDER-ERROR] Session %s: %v", action.SessionID, err)
		return
	}

	var text string
	if payload.Late {
		text = fmt.Sprintf("%q is starting soon, at %s. See you there!", session.Title, clock)
	} else {
		text = fmt.Sprintf("Reminder: %q starts in one hour, at %s.", session.Title, clock)
	}
	if err := s.surface.Notify(action.MemberID, text); err != nil {
		log.Printf("[REMINDER] Could not reach %s for session %s: %v",
			action.MemberID, action.SessionID, err)
	}
}

func (s *Scheduler) fireTeardown(action models.ScheduledAction, payload actionPayload) {
	announcementID := payload.AnnouncementID
	kind := payload.Kind

	session, err := s.registry.GetSession(action.SessionID)
	if err != nil {
		log.Printf("[TEARDOWN-ERROR] Session %s lookup failed: %v", action.SessionID, err)
	}
	if session != nil {
		announcementID = session.AnnouncementID
		kind = session.Kind
		if err := s.registry.DeleteSession(session); err != nil {
			log.Printf("[TEARDOWN-ERROR] Failed to drop session %s from registry: %v",
				action.SessionID, err)
		}
	}

	if announcementID != "" {
		if err := s.surface.DeleteMessage(announcementID); err != nil {
			log.Printf("[TEARDOWN-ERROR] Failed to delete announcement %s: %v", announcementID, err)
		}
	}

	// The record may be gone already (manual deletion); not-found is fine
	if err := s.backend.DeleteSession(kind, action.SessionID); err != nil && !errors.Is(err, backend.ErrNotFound) {
		log.Printf("[TEARDOWN-ERROR] Failed to delete record for session %s: %v",
			action.SessionID, err)
		return
	}
	log.Printf("[TEARDOWN] Session %s cleaned up", action.SessionID)
}
