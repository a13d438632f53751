package gateway

import (
	"log"
	"os"
	"strings"
	"time"

	coordinator_constants "github.com/brandonscholten/capstone-spring-2025/constants/coordinator"

	"github.com/gin-gonic/gin"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io/v2/socket"
	"gorm.io/gorm"
)

// Start mounts the socket.io endpoint on the gin router and wires the
// client-side events: channel joins, RSVP reaction toggles, and prompt
// replies.
func (sio *SocketServer) Start(router *gin.Engine, db *gorm.DB) {
	c := socket.DefaultServerOptions()
	c.SetServeClient(true)
	// NOTE: higher ping interval and timeout to 1) reduce network load and 2) support slower networks
	c.SetPingInterval(5 * time.Second)
	c.SetPingTimeout(3 * time.Second)
	c.SetMaxHttpBufferSize(1000000)
	c.SetConnectTimeout(10 * time.Second)
	c.SetTransports(types.NewSet("polling", "websocket"))
	c.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	sio.Sio_server = socket.NewServer(nil, nil)
	sio.Sio_server.On("connection", func(clients ...interface{}) {
		client := clients[0].(*socket.Socket)

		// Check if the client is authenticated
		success, username, email := VerifyUserConnection(client, db)
		if !success {
			return
		}

		sio.AddConnection(username, client)
		log.Printf("[GATEWAY] Member connected: %s (%s)", username, email)

		// Members follow the venue's channels to see announcements
		client.On("join_channel", sio.handleJoinChannel(client, username))

		// RSVP affordance toggles on announcements (and moderator
		// decisions on prompts, routed through the same events)
		client.On("reaction_add", sio.handleReaction(client, username, true))
		client.On("reaction_remove", sio.handleReaction(client, username, false))

		// Free-text replies to prompt messages (denial reasons)
		client.On("send_reply", sio.handleReply(client, username))

		client.On("disconnecting", func(...interface{}) {
			log.Printf("[GATEWAY] Member disconnected: %s", username)
			sio.RemoveConnection(username)
		})
	})

	router.POST("/socket.io/*f", gin.WrapH(sio.Sio_server.ServeHandler(c)))
	router.GET("/socket.io/*f", gin.WrapH(sio.Sio_server.ServeHandler(c)))

	log.Println("Socket gateway started")
}

// Close shuts the socket server down.
func (sio *SocketServer) Close() {
	if sio.Sio_server != nil {
		sio.Sio_server.Close(nil)
	}
}

func (sio *SocketServer) handleJoinChannel(client *socket.Socket, username string) func(args ...interface{}) {
	return func(args ...interface{}) {
		if len(args) < 1 {
			client.Emit("error", gin.H{"error": "Missing channel name"})
			return
		}
		channel, ok := args[0].(string)
		if !ok {
			client.Emit("error", gin.H{"error": "Invalid channel name"})
			return
		}

		if channel == coordinator_constants.CHANNEL_MODERATION && !IsModerator(username) {
			log.Printf("[GATEWAY] Member %s is not a moderator, refusing channel %s", username, channel)
			client.Emit("error", gin.H{"error": "Moderators only"})
			return
		}

		client.Join(socket.Room(channel))
		client.Emit("channel_joined", gin.H{"channel": channel})
	}
}

func (sio *SocketServer) handleReaction(client *socket.Socket, username string, added bool) func(args ...interface{}) {
	return func(args ...interface{}) {
		if len(args) < 2 {
			client.Emit("error", gin.H{"error": "Missing message id or emoji"})
			return
		}
		messageID, okID := args[0].(string)
		emoji, okEmoji := args[1].(string)
		if !okID || !okEmoji {
			client.Emit("error", gin.H{"error": "Invalid reaction arguments"})
			return
		}

		if added {
			if !sio.setReaction(messageID, username, emoji) {
				client.Emit("error", gin.H{"error": "Unknown message or emoji"})
				return
			}
		} else {
			if !sio.clearReaction(messageID, username, emoji) {
				// Removing a reaction the member never held; nothing to do
				return
			}
		}

		sio.dispatchReaction(ReactionEvent{
			MessageID: messageID,
			Member:    username,
			Emoji:     emoji,
			Added:     added,
		})
	}
}

func (sio *SocketServer) handleReply(client *socket.Socket, username string) func(args ...interface{}) {
	return func(args ...interface{}) {
		if len(args) < 2 {
			client.Emit("error", gin.H{"error": "Missing message id or text"})
			return
		}
		messageID, okID := args[0].(string)
		text, okText := args[1].(string)
		if !okID || !okText {
			client.Emit("error", gin.H{"error": "Invalid reply arguments"})
			return
		}

		sio.dispatchReply(ReplyEvent{
			MessageID: messageID,
			Member:    username,
			Text:      text,
		})
	}
}

// IsModerator checks the member against the MODERATORS env list
// (comma-separated usernames).
func IsModerator(username string) bool {
	for _, mod := range strings.Split(os.Getenv("MODERATORS"), ",") {
		if strings.TrimSpace(mod) == username && username != "" {
			return true
		}
	}
	return false
}
