package gateway

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zishang520/socket.io/v2/socket"
)

// EmbedField is one labeled field on a rendered message.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Embed is the structured body of an announcement or moderation prompt.
type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Image       string       `json:"image,omitempty"`
	Fields      []EmbedField `json:"fields"`
}

// Field returns the value of the named field, if present.
func (e Embed) Field(name string) (string, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// SetField replaces the named field's value, appending the field if absent.
func (e *Embed) SetField(name, value string) {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			e.Fields[i].Value = value
			return
		}
	}
	e.Fields = append(e.Fields, EmbedField{Name: name, Value: value})
}

// Message is one posted message with its live reaction state.
type Message struct {
	ID       string
	Channel  string
	Embed    Embed
	PostedAt time.Time

	// emoji -> set of members currently holding it
	Reactions map[string]map[string]bool
}

// PostMessage renders a message into a channel room and pre-attaches the
// valid affordances so clients show them as toggles.
func (s *SocketServer) PostMessage(channel string, embed Embed, affordances ...string) (*Message, error) {
	if s.Sio_server == nil {
		return nil, fmt.Errorf("gateway not started")
	}

	seq := atomic.AddUint64(&s.nextSeq, 1)
	msg := &Message{
		ID:        fmt.Sprintf("%d-%d", time.Now().UnixMilli(), seq),
		Channel:   channel,
		Embed:     embed,
		PostedAt:  time.Now(),
		Reactions: make(map[string]map[string]bool),
	}
	for _, emoji := range affordances {
		msg.Reactions[emoji] = make(map[string]bool)
	}

	s.messagesMu.Lock()
	s.messages[msg.ID] = msg
	s.messagesMu.Unlock()

	s.Sio_server.To(socket.Room(channel)).Emit("message_posted", gin.H{
		"message_id":  msg.ID,
		"channel":     channel,
		"embed":       embed,
		"affordances": affordances,
	})
	return msg, nil
}

// GetMessage looks a posted message up by id.
func (s *SocketServer) GetMessage(messageID string) (*Message, bool) {
	s.messagesMu.RLock()
	defer s.messagesMu.RUnlock()
	msg, ok := s.messages[messageID]
	return msg, ok
}

// EditMessageEmbed replaces a message's embed and pushes the edit to the
// channel.
func (s *SocketServer) EditMessageEmbed(messageID string, embed Embed) error {
	s.messagesMu.Lock()
	msg, ok := s.messages[messageID]
	if !ok {
		s.messagesMu.Unlock()
		return fmt.Errorf("message %s not found", messageID)
	}
	msg.Embed = embed
	channel := msg.Channel
	s.messagesMu.Unlock()

	s.Sio_server.To(socket.Room(channel)).Emit("message_edited", gin.H{
		"message_id": messageID,
		"embed":      embed,
	})
	return nil
}

// DeleteMessage removes a posted message and tells the channel. Deleting a
// message that is already gone is not an error.
func (s *SocketServer) DeleteMessage(messageID string) error {
	s.messagesMu.Lock()
	msg, ok := s.messages[messageID]
	if ok {
		delete(s.messages, messageID)
	}
	s.messagesMu.Unlock()
	if !ok {
		return nil
	}

	s.Sio_server.To(socket.Room(msg.Channel)).Emit("message_deleted", gin.H{
		"message_id": messageID,
	})
	return nil
}

// setReaction records a member's reaction. Returns false when the message
// is unknown or the emoji is not one of the message's affordances.
func (s *SocketServer) setReaction(messageID, member, emoji string) bool {
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return false
	}
	holders, ok := msg.Reactions[emoji]
	if !ok {
		return false
	}
	holders[member] = true
	return true
}

// clearReaction removes a member's reaction. Returns true if the member
// actually held it.
func (s *SocketServer) clearReaction(messageID, member, emoji string) bool {
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return false
	}
	holders, ok := msg.Reactions[emoji]
	if !ok || !holders[member] {
		return false
	}
	delete(holders, member)
	return true
}

// HasReaction reports whether the member currently holds the emoji on the
// message.
func (s *SocketServer) HasReaction(messageID, member, emoji string) bool {
	s.messagesMu.RLock()
	defer s.messagesMu.RUnlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return false
	}
	return msg.Reactions[emoji][member]
}

// RetractReaction force-removes a member's reaction server-side (capacity
// rejections, exclusivity) and tells the member so their UI un-toggles.
func (s *SocketServer) RetractReaction(messageID, member, emoji string) error {
	if !s.clearReaction(messageID, member, emoji) {
		return nil
	}
	if client, ok := s.GetConnection(member); ok {
		client.Emit("reaction_retracted", gin.H{
			"message_id": messageID,
			"emoji":      emoji,
		})
	}
	return nil
}

// Notify sends a private notice to a member's connection. Offline members
// simply miss the notice; callers treat this as best-effort.
func (s *SocketServer) Notify(member, text string) error {
	client, ok := s.GetConnection(member)
	if !ok {
		log.Printf("[NOTIFY] Member %s is offline, dropping notice: %s", member, text)
		return fmt.Errorf("member %s is not connected", member)
	}
	client.Emit("notice", gin.H{"message": text})
	return nil
}
