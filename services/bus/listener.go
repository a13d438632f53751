package bus

import (
	"context"
	"log"

	coordinator_constants "github.com/brandonscholten/capstone-spring-2025/constants/coordinator"
	"github.com/brandonscholten/capstone-spring-2025/services/redis"
)

// SessionHandler consumes validated session_created payloads.
type SessionHandler interface {
	HandleSessionCreated(session *SessionCreated)
}

// RoomRequestHandler consumes validated room_request_created payloads.
type RoomRequestHandler interface {
	HandleRoomRequest(request *RoomRequest)
}

// Listener reads the CRUD backend's lifecycle notifications off the bus and
// dispatches them. It runs for process lifetime; a malformed message is
// logged and skipped, never fatal.
type Listener struct {
	redisClient *redis.RedisClient
	sessions    SessionHandler
	requests    RoomRequestHandler
}

func NewListener(redisClient *redis.RedisClient, sessions SessionHandler, requests RoomRequestHandler) *Listener {
	return &Listener{
		redisClient: redisClient,
		sessions:    sessions,
		requests:    requests,
	}
}

// Listen blocks consuming bus messages until ctx is cancelled.
func (l *Listener) Listen(ctx context.Context) {
	messages, closeSub := l.redisClient.Subscribe(ctx,
		coordinator_constants.BUS_SESSION_CREATED,
		coordinator_constants.BUS_ROOM_REQUEST_CREATED)
	defer closeSub()

	log.Printf("[BUS] Listening on %s, %s",
		coordinator_constants.BUS_SESSION_CREATED,
		coordinator_constants.BUS_ROOM_REQUEST_CREATED)

	for {
		select {
		case <-ctx.Done():
			log.Println("[BUS] Listener stopping")
			return
		case msg, ok := <-messages:
			if !ok {
				log.Println("[BUS] Subscription channel closed")
				return
			}

			switch msg.Channel {
			case coordinator_constants.BUS_SESSION_CREATED:
				session, err := DecodeSessionCreated([]byte(msg.Payload))
				if err != nil {
					log.Printf("[BUS-ERROR] Dropping session_created message: %v", err)
					continue
				}
				// Handlers run on their own goroutine so a slow
				// announcement post never stalls the bus reader
				go l.sessions.HandleSessionCreated(session)

			case coordinator_constants.BUS_ROOM_REQUEST_CREATED:
				request, err := DecodeRoomRequest([]byte(msg.Payload))
				if err != nil {
					log.Printf("[BUS-ERROR] Dropping room_request_created message: %v", err)
					continue
				}
				go l.requests.HandleRoomRequest(request)
			}
		}
	}
}
