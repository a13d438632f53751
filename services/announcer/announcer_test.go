package announcer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	coordinator_constants "github.com/brandonscholten/capstone-spring-2025/constants/coordinator"
	redis_models "github.com/brandonscholten/capstone-spring-2025/models/redis"
	"github.com/brandonscholten/capstone-spring-2025/services/bus"
	"github.com/brandonscholten/capstone-spring-2025/services/gateway"
)

type fakeSurface struct {
	channel     string
	affordances []string
	embed       gateway.Embed
	messages    map[string]*gateway.Message
	edits       int
}

func (s *fakeSurface) PostMessage(channel string, embed gateway.Embed, affordances ...string) (*gateway.Message, error) {
	s.channel = channel
	s.embed = embed
	s.affordances = affordances
	msg := &gateway.Message{ID: "msg-1", Channel: channel, Embed: embed}
	if s.messages == nil {
		s.messages = make(map[string]*gateway.Message)
	}
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *fakeSurface) GetMessage(messageID string) (*gateway.Message, bool) {
	msg, ok := s.messages[messageID]
	return msg, ok
}

func (s *fakeSurface) EditMessageEmbed(messageID string, embed gateway.Embed) error {
	s.edits++
	s.embed = embed
	if msg, ok := s.messages[messageID]; ok {
		msg.Embed = embed
	}
	return nil
}

type fakeRegistry struct {
	saved *redis_models.Session
}

func (r *fakeRegistry) SaveSession(session *redis_models.Session) error {
	r.saved = session
	return nil
}

type fakeTeardowns struct {
	scheduled []string
}

func (t *fakeTeardowns) ScheduleTeardown(session *redis_models.Session) error {
	t.scheduled = append(t.scheduled, session.Id)
	return nil
}

func gamePayload() *bus.SessionCreated {
	return &bus.SessionCreated{
		ID:           "42",
		Kind:         coordinator_constants.KIND_GAME,
		Title:        "Catan Night",
		Organizer:    "organizer",
		StartTime:    time.Date(2025, 3, 14, 23, 0, 0, 0, time.UTC),
		EndTime:      time.Date(2025, 3, 15, 2, 0, 0, 0, time.UTC),
		Capacity:     4,
		Participants: []string{"organizer", "alice"},
	}
}

func TestHandleSessionCreated(t *testing.T) {
	t.Run("Game announcement lands in the games channel", func(t *testing.T) {
		surface := &fakeSurface{}
		registry := &fakeRegistry{}
		teardowns := &fakeTeardowns{}
		a := New(surface, registry, teardowns, "", "")

		a.HandleSessionCreated(gamePayload())

		assert.Equal(t, coordinator_constants.CHANNEL_GAMES, surface.channel)
		assert.Equal(t, []string{
			coordinator_constants.REACTION_ATTEND,
			coordinator_constants.REACTION_DECLINE,
		}, surface.affordances)
	})

	t.Run("Organizer leads the roster without duplication", func(t *testing.T) {
		surface := &fakeSurface{}
		registry := &fakeRegistry{}
		a := New(surface, registry, &fakeTeardowns{}, "", "")

		a.HandleSessionCreated(gamePayload())

		assert.NotNil(t, registry.saved)
		assert.Equal(t, []string{"organizer", "alice"}, registry.saved.Roster)
		assert.Equal(t, "msg-1", registry.saved.AnnouncementID)
	})

	t.Run("Teardown is bound to the session", func(t *testing.T) {
		teardowns := &fakeTeardowns{}
		a := New(&fakeSurface{}, &fakeRegistry{}, teardowns, "", "")

		a.HandleSessionCreated(gamePayload())

		assert.Equal(t, []string{"42"}, teardowns.scheduled)
	})

	t.Run("Event announcement lands in the events channel", func(t *testing.T) {
		surface := &fakeSurface{}
		a := New(surface, &fakeRegistry{}, &fakeTeardowns{}, "", "")

		payload := gamePayload()
		payload.Kind = coordinator_constants.KIND_EVENT
		payload.Organizer = ""
		payload.Participants = nil
		a.HandleSessionCreated(payload)

		assert.Equal(t, coordinator_constants.CHANNEL_EVENTS, surface.channel)
	})

	t.Run("Refresh edits the announcement in place", func(t *testing.T) {
		surface := &fakeSurface{}
		registry := &fakeRegistry{}
		a := New(surface, registry, &fakeTeardowns{}, "", "")

		a.HandleSessionCreated(gamePayload())
		session := registry.saved
		session.Roster = append(session.Roster, "bob")

		assert.NoError(t, a.RefreshAnnouncement(session))
		assert.Equal(t, 1, surface.edits)

		players, ok := surface.embed.Field(FieldPlayers)
		assert.True(t, ok)
		assert.Equal(t, "organizer, alice, bob", players)

		count, ok := surface.embed.Field(FieldAttending)
		assert.True(t, ok)
		assert.Equal(t, "3", count)

		// Non-projection fields survive the edit untouched
		id, err := SessionIDFromEmbed(surface.embed)
		assert.NoError(t, err)
		assert.Equal(t, "42", id)
	})

	t.Run("Refresh fails when the announcement is gone", func(t *testing.T) {
		surface := &fakeSurface{}
		a := New(surface, &fakeRegistry{}, &fakeTeardowns{}, "", "")

		session := &redis_models.Session{Id: "42", AnnouncementID: "msg-missing"}
		assert.Error(t, a.RefreshAnnouncement(session))
		assert.Zero(t, surface.edits)
	})
}
