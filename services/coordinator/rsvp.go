package coordinator

import (
	"errors"
	"fmt"
	"log"
	"sync"

	coordinator_constants "github.com/brandonscholten/capstone-spring-2025/constants/coordinator"
	redis_models "github.com/brandonscholten/capstone-spring-2025/models/redis"
	"github.com/brandonscholten/capstone-spring-2025/services/announcer"
	"github.com/brandonscholten/capstone-spring-2025/services/backend"
	"github.com/brandonscholten/capstone-spring-2025/services/gateway"
)

// Registry is the authoritative session store. Capacity decisions always
// derive from the roster length here, never from a displayed count.
type Registry interface {
	GetSession(sessionId string) (*redis_models.Session, error)
	GetSessionByAnnouncement(messageId string) (*redis_models.Session, error)
	SaveSession(session *redis_models.Session) error
}

// Surface is the slice of the gateway the coordinator talks back through.
type Surface interface {
	GetMessage(messageID string) (*gateway.Message, bool)
	RetractReaction(messageID, member, emoji string) error
	Notify(member, text string) error
}

// Projector refreshes the announcement's roster/count display fields.
type Projector interface {
	RefreshAnnouncement(session *redis_models.Session) error
}

// Backend is the persistence collaborator slice for participant mutation.
type Backend interface {
	AddParticipant(kind, sessionID, member string) error
	RemoveParticipant(kind, sessionID, member string) error
}

// Reminders schedules the pre-start notice for a new attendee.
type Reminders interface {
	ScheduleReminder(session *redis_models.Session, member string) error
}

// Coordinator owns the per-(session, member) RSVP state machine:
// NOT_RESPONDED -> ATTENDING | DECLINED, with toggling between the two and
// full retraction back to NOT_RESPONDED. It enforces capacity and mutual
// exclusivity of the two affordances.
type Coordinator struct {
	registry  Registry
	surface   Surface
	projector Projector
	backend   Backend
	reminders Reminders

	// Serializes roster mutations per session so read-modify-write
	// cycles cannot interleave
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(registry Registry, surface Surface, projector Projector, backendClient Backend, reminders Reminders) *Coordinator {
	return &Coordinator{
		registry:  registry,
		surface:   surface,
		projector: projector,
		backend:   backendClient,
		reminders: reminders,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (c *Coordinator) sessionLock(sessionID string) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	lock, ok := c.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[sessionID] = lock
	}
	return lock
}

// HandleReactionAdd processes an affordance being set on a message. Events
// on messages that are not session announcements are ignored.
func (c *Coordinator) HandleReactionAdd(member, messageID, emoji string) {
	if emoji != coordinator_constants.REACTION_ATTEND && emoji != coordinator_constants.REACTION_DECLINE {
		return
	}

	session, err := c.resolveSession(messageID)
	if err != nil {
		log.Printf("[RSVP-ERROR] %v", err)
		return
	}
	if session == nil {
		return
	}

	lock := c.sessionLock(session.Id)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock so this mutation starts from current state
	session, err = c.registry.GetSession(session.Id)
	if err != nil || session == nil {
		log.Printf("[RSVP-ERROR] Session vanished while handling reaction on %s: %v", messageID, err)
		return
	}

	if emoji == coordinator_constants.REACTION_ATTEND {
		c.handleAttend(session, member)
	} else {
		c.handleDecline(session, member)
	}
}

// HandleReactionRemove processes an affordance being fully retracted,
// returning the member to NOT_RESPONDED.
func (c *Coordinator) HandleReactionRemove(member, messageID, emoji string) {
	if emoji != coordinator_constants.REACTION_ATTEND && emoji != coordinator_constants.REACTION_DECLINE {
		return
	}

	session, err := c.resolveSession(messageID)
	if err != nil {
		log.Printf("[RSVP-ERROR] %v", err)
		return
	}
	if session == nil {
		return
	}

	lock := c.sessionLock(session.Id)
	lock.Lock()
	defer lock.Unlock()

	session, err = c.registry.GetSession(session.Id)
	if err != nil || session == nil {
		log.Printf("[RSVP-ERROR] Session vanished while handling retraction on %s: %v", messageID, err)
		return
	}

	switch emoji {
	case coordinator_constants.REACTION_ATTEND:
		c.retractAttend(session, member)
	case coordinator_constants.REACTION_DECLINE:
		if session.Declined[member] {
			delete(session.Declined, member)
			if err := c.registry.SaveSession(session); err != nil {
				log.Printf("[RSVP-ERROR] Failed to clear decline mark for %s on session %s: %v",
					member, session.Id, err)
			}
		}
	}
}

func (c *Coordinator) handleAttend(session *redis_models.Session, member string) {
	// Exclusivity: drop any decline the member had set first
	clearedDecline := false
	if session.Declined[member] {
		delete(session.Declined, member)
		clearedDecline = true
		if err := c.surface.RetractReaction(session.AnnouncementID, member, coordinator_constants.REACTION_DECLINE); err != nil {
			log.Printf("[RSVP-ERROR] Failed to retract decline for %s on session %s: %v",
				member, session.Id, err)
		}
	}

	if session.Attending(member) {
		// Repeated attend toggle; only the decline cleanup above matters
		if err := c.registry.SaveSession(session); err != nil {
			log.Printf("[RSVP-ERROR] Failed to save session %s: %v", session.Id, err)
		}
		return
	}

	// Admission decides against the authoritative roster, never the
	// displayed count
	if session.IsGame() && len(session.Roster)+1 > session.Capacity {
		log.Printf("[RSVP] Session %s is full (%d/%d), rejecting %s",
			session.Id, len(session.Roster), session.Capacity, member)
		if err := c.surface.RetractReaction(session.AnnouncementID, member, coordinator_constants.REACTION_ATTEND); err != nil {
			log.Printf("[RSVP-ERROR] Failed to retract attend for %s on session %s: %v",
				member, session.Id, err)
		}
		notice := fmt.Sprintf("Sorry, %q is already full (%d players).", session.Title, session.Capacity)
		if err := c.surface.Notify(member, notice); err != nil {
			log.Printf("[RSVP] Could not deliver full notice to %s: %v", member, err)
		}
		// The retracted decline still has to leave the registry, or the
		// mark survives with no affordance behind it
		if clearedDecline {
			if err := c.registry.SaveSession(session); err != nil {
				log.Printf("[RSVP-ERROR] Failed to save session %s: %v", session.Id, err)
			}
		}
		return
	}

	// Fail closed: the persisted record moves first, the roster follows
	if err := c.backend.AddParticipant(session.Kind, session.Id, member); err != nil {
		log.Printf("[RSVP-ERROR] Failed to persist participant %s on session %s: %v",
			member, session.Id, err)
		if err := c.surface.RetractReaction(session.AnnouncementID, member, coordinator_constants.REACTION_ATTEND); err != nil {
			log.Printf("[RSVP-ERROR] Failed to retract attend for %s on session %s: %v",
				member, session.Id, err)
		}
		if clearedDecline {
			if err := c.registry.SaveSession(session); err != nil {
				log.Printf("[RSVP-ERROR] Failed to save session %s: %v", session.Id, err)
			}
		}
		return
	}

	session.Roster = append(session.Roster, member)
	if err := c.registry.SaveSession(session); err != nil {
		log.Printf("[RSVP-ERROR] Failed to save session %s after admit: %v", session.Id, err)
		return
	}

	if err := c.projector.RefreshAnnouncement(session); err != nil {
		log.Printf("[RSVP-ERROR] Failed to refresh announcement for session %s: %v", session.Id, err)
	}
	if err := c.reminders.ScheduleReminder(session, member); err != nil {
		log.Printf("[RSVP-ERROR] Failed to schedule reminder for %s on session %s: %v",
			member, session.Id, err)
	}
	log.Printf("[RSVP] %s is attending session %s (%d/%s)",
		member, session.Id, len(session.Roster), capacityLabel(session))
}

func (c *Coordinator) handleDecline(session *redis_models.Session, member string) {
	// Exclusivity: drop the attend affordance before recording the decline
	if session.Attending(member) {
		if err := c.surface.RetractReaction(session.AnnouncementID, member, coordinator_constants.REACTION_ATTEND); err != nil {
			log.Printf("[RSVP-ERROR] Failed to retract attend for %s on session %s: %v",
				member, session.Id, err)
		}
		if !c.removeFromRoster(session, member) {
			// Organizer slot is a floor; their decline is retracted
			if err := c.surface.RetractReaction(session.AnnouncementID, member, coordinator_constants.REACTION_DECLINE); err != nil {
				log.Printf("[RSVP-ERROR] Failed to retract decline for organizer %s on session %s: %v",
					member, session.Id, err)
			}
			return
		}
	}

	// A decline with no prior attend is recorded but inert: no calls out,
	// no notices
	session.Declined[member] = true
	if err := c.registry.SaveSession(session); err != nil {
		log.Printf("[RSVP-ERROR] Failed to save session %s after decline: %v", session.Id, err)
		return
	}
	if err := c.projector.RefreshAnnouncement(session); err != nil {
		log.Printf("[RSVP-ERROR] Failed to refresh announcement for session %s: %v", session.Id, err)
	}
	log.Printf("[RSVP] %s declined session %s (%d/%s)",
		member, session.Id, len(session.Roster), capacityLabel(session))
}

func (c *Coordinator) retractAttend(session *redis_models.Session, member string) {
	if !session.Attending(member) {
		return
	}
	if !c.removeFromRoster(session, member) {
		return
	}
	if err := c.registry.SaveSession(session); err != nil {
		log.Printf("[RSVP-ERROR] Failed to save session %s after retraction: %v", session.Id, err)
		return
	}
	if err := c.projector.RefreshAnnouncement(session); err != nil {
		log.Printf("[RSVP-ERROR] Failed to refresh announcement for session %s: %v", session.Id, err)
	}
	log.Printf("[RSVP] %s withdrew from session %s (%d/%s)",
		member, session.Id, len(session.Roster), capacityLabel(session))
}

// removeFromRoster drops a member from the roster and the persisted record.
// The organizer (roster member #1) is never removed through this flow;
// returns false when the removal was refused or failed.
func (c *Coordinator) removeFromRoster(session *redis_models.Session, member string) bool {
	if len(session.Roster) > 0 && session.Roster[0] == member {
		log.Printf("[RSVP] Organizer %s cannot leave session %s", member, session.Id)
		return false
	}

	idx := -1
	for i, m := range session.Roster {
		if m == member {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	// Floor: the roster never drops below the organizer slot
	if len(session.Roster) <= 1 {
		return false
	}

	err := c.backend.RemoveParticipant(session.Kind, session.Id, member)
	if err != nil && !errors.Is(err, backend.ErrNotFound) && !errors.Is(err, backend.ErrNotParticipant) {
		log.Printf("[RSVP-ERROR] Failed to remove participant %s from session %s: %v",
			member, session.Id, err)
		return false
	}

	session.Roster = append(session.Roster[:idx], session.Roster[idx+1:]...)
	return true
}

// resolveSession finds the session behind a message: the registry's
// announcement index first, the announcement's hidden id field as the
// fallback. A message with a hidden id field that fails to decode is fatal
// to this operation. A nil, nil return means the message is simply not a
// session announcement.
func (c *Coordinator) resolveSession(messageID string) (*redis_models.Session, error) {
	session, err := c.registry.GetSessionByAnnouncement(messageID)
	if err != nil {
		return nil, fmt.Errorf("registry lookup for message %s: %v", messageID, err)
	}
	if session != nil {
		return session, nil
	}

	msg, ok := c.surface.GetMessage(messageID)
	if !ok {
		return nil, nil
	}
	if _, present := msg.Embed.Field(announcer.FieldHiddenID); !present {
		return nil, nil
	}

	sessionID, err := announcer.SessionIDFromEmbed(msg.Embed)
	if err != nil {
		return nil, fmt.Errorf("announcement %s carries an undecodable session id: %v", messageID, err)
	}
	session, err = c.registry.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("registry lookup for session %s: %v", sessionID, err)
	}
	return session, nil
}

func capacityLabel(session *redis_models.Session) string {
	if session.IsGame() {
		return fmt.Sprintf("%d", session.Capacity)
	}
	return "open"
}
