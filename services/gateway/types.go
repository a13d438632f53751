package gateway

import (
	"sync"

	"github.com/zishang520/socket.io/v2/socket"
)

// SocketServer is a struct that contains the socket.io server, a map of
// member connections, the posted-message store, and the waiter registry.
// It is the coordinator's entire chat surface.
type SocketServer struct {
	Sio_server *socket.Server
	// Map to track username -> socket connections
	UserConnections map[string]*socket.Socket
	mutex           sync.RWMutex

	// Posted announcements and prompts, keyed by message id
	messages   map[string]*Message
	messagesMu sync.RWMutex
	nextSeq    uint64

	// One-off waiters for reactions/replies on specific messages
	waiters   []*waiter
	waitersMu sync.Mutex

	// Receives roster-affecting reaction toggles on announcements
	reactions ReactionHandler
}

// ReactionHandler receives affordance toggles observed on any posted
// message. Handlers are expected to ignore messages they do not own.
type ReactionHandler interface {
	HandleReactionAdd(member, messageID, emoji string)
	HandleReactionRemove(member, messageID, emoji string)
}

func NewSocketServer() *SocketServer {
	return &SocketServer{
		UserConnections: make(map[string]*socket.Socket),
		messages:        make(map[string]*Message),
	}
}

// SetReactionHandler wires the RSVP coordinator in. Must be called before
// Start.
func (s *SocketServer) SetReactionHandler(h ReactionHandler) {
	s.reactions = h
}

// Add methods to manage connections
func (s *SocketServer) AddConnection(username string, socket *socket.Socket) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.UserConnections[username] = socket
}

func (s *SocketServer) RemoveConnection(username string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.UserConnections, username)
}

func (s *SocketServer) GetConnection(username string) (*socket.Socket, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	socket, exists := s.UserConnections[username]
	return socket, exists
}
