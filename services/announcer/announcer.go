package announcer

import (
	"fmt"
	"log"
	"strconv"

	coordinator_constants "github.com/brandonscholten/capstone-spring-2025/constants/coordinator"
	redis_models "github.com/brandonscholten/capstone-spring-2025/models/redis"
	"github.com/brandonscholten/capstone-spring-2025/services/bus"
	"github.com/brandonscholten/capstone-spring-2025/services/gateway"
)

// Surface is the slice of the gateway the announcer posts through.
type Surface interface {
	PostMessage(channel string, embed gateway.Embed, affordances ...string) (*gateway.Message, error)
	GetMessage(messageID string) (*gateway.Message, bool)
	EditMessageEmbed(messageID string, embed gateway.Embed) error
}

// Registry is the live session store.
type Registry interface {
	SaveSession(session *redis_models.Session) error
}

// Teardowns schedules the post-end removal of a session.
type Teardowns interface {
	ScheduleTeardown(session *redis_models.Session) error
}

// Announcer turns validated session_created payloads into affordance-bearing
// announcements and registers the session for the coordinator.
type Announcer struct {
	surface   Surface
	registry  Registry
	teardowns Teardowns

	gamesChannel  string
	eventsChannel string
}

func New(surface Surface, registry Registry, teardowns Teardowns, gamesChannel, eventsChannel string) *Announcer {
	if gamesChannel == "" {
		gamesChannel = coordinator_constants.CHANNEL_GAMES
	}
	if eventsChannel == "" {
		eventsChannel = coordinator_constants.CHANNEL_EVENTS
	}
	return &Announcer{
		surface:       surface,
		registry:      registry,
		teardowns:     teardowns,
		gamesChannel:  gamesChannel,
		eventsChannel: eventsChannel,
	}
}

// HandleSessionCreated posts the announcement for a freshly persisted
// session, registers it, and binds its teardown to the end time.
func (a *Announcer) HandleSessionCreated(payload *bus.SessionCreated) {
	session := sessionFromPayload(payload)

	channel := a.eventsChannel
	if session.IsGame() {
		channel = a.gamesChannel
	}
	session.Channel = channel

	embed, err := BuildEmbed(session)
	if err != nil {
		log.Printf("[ANNOUNCE-ERROR] Session %s: %v", session.Id, err)
		return
	}

	msg, err := a.surface.PostMessage(channel, embed,
		coordinator_constants.REACTION_ATTEND,
		coordinator_constants.REACTION_DECLINE)
	if err != nil {
		log.Printf("[ANNOUNCE-ERROR] Failed to post announcement for session %s: %v", session.Id, err)
		return
	}
	session.AnnouncementID = msg.ID

	if err := a.registry.SaveSession(session); err != nil {
		log.Printf("[ANNOUNCE-ERROR] Failed to register session %s: %v", session.Id, err)
		return
	}

	if err := a.teardowns.ScheduleTeardown(session); err != nil {
		log.Printf("[ANNOUNCE-ERROR] Failed to schedule teardown for session %s: %v", session.Id, err)
	}

	log.Printf("[ANNOUNCE] Posted %s session %s (%q) to #%s, teardown at %s",
		session.Kind, session.Id, session.Title, channel, session.EndTime)
}

// RefreshAnnouncement re-renders the roster and attending-count projections
// after a roster mutation. Only the two projection fields change; the rest
// of the posted embed stays as announced.
func (a *Announcer) RefreshAnnouncement(session *redis_models.Session) error {
	msg, ok := a.surface.GetMessage(session.AnnouncementID)
	if !ok {
		return fmt.Errorf("announcement %s for session %s is gone", session.AnnouncementID, session.Id)
	}

	embed := msg.Embed
	embed.Fields = append([]gateway.EmbedField(nil), msg.Embed.Fields...)
	embed.SetField(FieldPlayers, rosterLine(session))
	embed.SetField(FieldAttending, strconv.Itoa(len(session.Roster)))
	return a.surface.EditMessageEmbed(session.AnnouncementID, embed)
}

func sessionFromPayload(payload *bus.SessionCreated) *redis_models.Session {
	session := &redis_models.Session{
		Id:          payload.ID,
		Kind:        payload.Kind,
		Title:       payload.Title,
		Description: payload.Description,
		Organizer:   payload.Organizer,
		StartTime:   payload.StartTime,
		EndTime:     payload.EndTime,
		Capacity:    payload.Capacity,
		Price:       payload.Price,
		Catalogue:   payload.Catalogue,
		ImageURL:    payload.Image,
		Declined:    make(map[string]bool),
	}

	// The organizer is roster member #1 from the moment of creation; any
	// participants the record already carries follow them.
	if payload.Organizer != "" {
		session.Roster = append(session.Roster, payload.Organizer)
	}
	for _, p := range payload.Participants {
		if p != "" && !session.Attending(p) {
			session.Roster = append(session.Roster, p)
		}
	}
	return session
}
