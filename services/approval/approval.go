// Package approval runs the private-room moderation workflow: a room
// request is posted to the moderation channel, a moderator approves or
// denies it with a reaction, the venue calendar is checked for
// conflicts, and the requester is told the outcome.
package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	coordinator_constants "github.com/brandonscholten/capstone-spring-2025/constants/coordinator"
	redis_models "github.com/brandonscholten/capstone-spring-2025/models/redis"
	"github.com/brandonscholten/capstone-spring-2025/services/bus"
	"github.com/brandonscholten/capstone-spring-2025/services/calendar"
	"github.com/brandonscholten/capstone-spring-2025/services/gateway"
	"github.com/brandonscholten/capstone-spring-2025/services/mail"
	"github.com/brandonscholten/capstone-spring-2025/utils"
)

// Surface is the slice of the chat gateway the workflow talks to.
type Surface interface {
	PostMessage(channel string, embed gateway.Embed, affordances ...string) (*gateway.Message, error)
	AwaitReaction(messageID string, timeout time.Duration,
		predicate func(gateway.ReactionEvent) bool) (gateway.ReactionEvent, error)
	AwaitReply(messageID string, timeout time.Duration) (gateway.ReplyEvent, error)
	Notify(member, text string) error
}

// Store persists requests while they wait on a moderator.
type Store interface {
	SaveApprovalRequest(request *redis_models.ApprovalRequest) error
	GetApprovalRequest(messageId string) (*redis_models.ApprovalRequest, error)
	DeleteApprovalRequest(messageId string) error
}

// Calendar books the private room, reporting calendar.ErrConflict when
// the window is blocked.
type Calendar interface {
	CreateEntry(entry calendar.Entry, roomSize string) error
}

// Backend creates the persisted session record after approval.
type Backend interface {
	CreateSession(kind string, payload json.RawMessage) error
}

// Mailer reaches requesters who have no chat identity.
type Mailer interface {
	Send(m mail.Message) error
}

// Workflow processes room_request_created payloads end to end.
type Workflow struct {
	surface  Surface
	store    Store
	calendar Calendar
	backend  Backend
	mailer   Mailer

	channel         string
	paymentLinkHalf string
	paymentLinkFull string
}

// New wires a workflow. Payment links come from PAYMENT_LINK_HALF_ROOM
// and PAYMENT_LINK_FULL_ROOM.
func New(surface Surface, store Store, cal Calendar, be Backend, mailer Mailer) *Workflow {
	return &Workflow{
		surface:         surface,
		store:           store,
		calendar:        cal,
		backend:         be,
		mailer:          mailer,
		channel:         coordinator_constants.CHANNEL_MODERATION,
		paymentLinkHalf: os.Getenv("PAYMENT_LINK_HALF_ROOM"),
		paymentLinkFull: os.Getenv("PAYMENT_LINK_FULL_ROOM"),
	}
}

// HandleRoomRequest posts the request for moderation and drives it to a
// terminal decision. It blocks for the bounded moderation waits, so the
// bus listener runs it on its own goroutine.
func (w *Workflow) HandleRoomRequest(payload *bus.RoomRequest) {
	request := requestFromPayload(payload)

	if payload.Capacity > 0 && payload.Capacity < coordinator_constants.ROOM_REQUIRED_CAPACITY {
		// The request form only offers the room to parties of ten or
		// more; a smaller party here means the payload was crafted by
		// hand. Moderators see the size on the prompt either way.
		log.Printf("[APPROVAL] Room request for %q has party size %d, below the usual %d",
			request.Title, payload.Capacity, coordinator_constants.ROOM_REQUIRED_CAPACITY)
	}

	message, err := w.surface.PostMessage(w.channel, w.buildPrompt(request, payload.Capacity),
		coordinator_constants.REACTION_ATTEND, coordinator_constants.REACTION_DECLINE)
	if err != nil {
		log.Printf("[APPROVAL-ERROR] Could not post moderation prompt for %q: %v", request.Title, err)
		return
	}
	request.MessageID = message.ID

	if err := w.store.SaveApprovalRequest(request); err != nil {
		log.Printf("[APPROVAL-ERROR] Could not store room request %s: %v", request.MessageID, err)
		return
	}

	decision, err := w.awaitDecision(request.MessageID)
	if err != nil {
		// Timed out or the transport went away. The prompt stays in the
		// moderation channel as the audit trail; nothing else to do.
		log.Printf("[APPROVAL] Room request %s received no moderator decision: %v", request.MessageID, err)
		w.dropRequest(request.MessageID)
		return
	}

	// The store is authoritative while the request waits: an entry that
	// vanished meanwhile was resolved elsewhere and must not be decided
	// again here.
	stored, err := w.store.GetApprovalRequest(request.MessageID)
	if err != nil {
		log.Printf("[APPROVAL-ERROR] Could not reload room request %s: %v", request.MessageID, err)
		return
	}
	if stored == nil {
		log.Printf("[APPROVAL] Room request %s was already resolved", request.MessageID)
		return
	}

	if decision.Emoji == coordinator_constants.REACTION_ATTEND {
		w.approve(request, payload)
	} else {
		w.deny(request, "")
	}
	w.dropRequest(request.MessageID)
}

// awaitDecision blocks until a moderator reacts with one of the decision
// emoji. Non-moderator reactions are ignored by the predicate.
func (w *Workflow) awaitDecision(messageID string) (gateway.ReactionEvent, error) {
	return w.surface.AwaitReaction(messageID, coordinator_constants.DECISION_TIMEOUT,
		func(ev gateway.ReactionEvent) bool {
			if !ev.Added || !gateway.IsModerator(ev.Member) {
				return false
			}
			return ev.Emoji == coordinator_constants.REACTION_ATTEND ||
				ev.Emoji == coordinator_constants.REACTION_DECLINE
		})
}

func (w *Workflow) approve(request *redis_models.ApprovalRequest, payload *bus.RoomRequest) {
	entry := w.buildEntry(request)

	err := w.calendar.CreateEntry(entry, request.RoomSize)
	if errors.Is(err, calendar.ErrConflict) {
		override, overrideErr := w.askOverride(request)
		if overrideErr != nil || !override {
			w.deny(request, "The private room is already reserved for that time.")
			return
		}
		entry.Force = true
		err = w.calendar.CreateEntry(entry, request.RoomSize)
	}
	if err != nil {
		log.Printf("[APPROVAL-ERROR] Calendar entry for request %s failed: %v", request.MessageID, err)
		w.notifyRequester(request, "Your private room request could not be completed. Please contact the venue.")
		return
	}

	// The session record moves before any success notice goes out; a
	// requester is never told approved for a session that was not persisted.
	created, err := finalPayload(payload)
	if err != nil {
		log.Printf("[APPROVAL-ERROR] Could not prepare session payload for request %s: %v", request.MessageID, err)
		w.notifyRequester(request, "Your private room request could not be completed. Please contact the venue.")
		return
	}
	if err := w.backend.CreateSession(payload.Kind, created); err != nil {
		log.Printf("[APPROVAL-ERROR] Could not create session for request %s: %v", request.MessageID, err)
		w.notifyRequester(request, "Your private room request could not be completed. Please contact the venue.")
		return
	}

	request.Decision = redis_models.DecisionApproved
	w.notifyRequester(request, w.approvalNotice(request))
	// The backend publishes session_created for the new record, so the
	// announcement flows through the usual path.
	log.Printf("[APPROVAL] Approved room request %s (%s room) for %q",
		request.MessageID, request.RoomSize, request.Organizer)
}

// askOverride re-prompts the moderators when the calendar reports a
// conflict. Approving the second prompt forces the booking.
func (w *Workflow) askOverride(request *redis_models.ApprovalRequest) (bool, error) {
	embed := gateway.Embed{
		Title: "Calendar conflict",
		Description: fmt.Sprintf(
			"The room is already booked during %q. React %s to book it anyway, or %s to deny the request.",
			request.Title, coordinator_constants.REACTION_ATTEND, coordinator_constants.REACTION_DECLINE),
	}
	message, err := w.surface.PostMessage(w.channel, embed,
		coordinator_constants.REACTION_ATTEND, coordinator_constants.REACTION_DECLINE)
	if err != nil {
		return false, err
	}
	decision, err := w.awaitDecision(message.ID)
	if err != nil {
		return false, err
	}
	return decision.Emoji == coordinator_constants.REACTION_ATTEND, nil
}

// deny asks the deciding moderator for a reason, then notifies the
// requester. A missing reason is fine; the denial stands either way.
func (w *Workflow) deny(request *redis_models.ApprovalRequest, reason string) {
	if reason == "" {
		reason = w.askReason(request)
	}

	request.Decision = redis_models.DecisionDenied
	request.DenialReason = reason

	notice := fmt.Sprintf("Your private room request for %q was denied.", request.Title)
	if reason != "" {
		notice += " Reason: " + reason
	}
	w.notifyRequester(request, notice)
	log.Printf("[APPROVAL] Denied room request %s for %q", request.MessageID, request.Organizer)
}

func (w *Workflow) askReason(request *redis_models.ApprovalRequest) string {
	embed := gateway.Embed{
		Title:       "Denial reason",
		Description: fmt.Sprintf("Reply with the reason for denying %q, or wait to skip.", request.Title),
	}
	message, err := w.surface.PostMessage(w.channel, embed)
	if err != nil {
		log.Printf("[APPROVAL-ERROR] Could not post reason prompt for %s: %v", request.MessageID, err)
		return ""
	}
	reply, err := w.surface.AwaitReply(message.ID, coordinator_constants.REASON_TIMEOUT)
	if err != nil {
		return ""
	}
	return reply.Text
}

// notifyRequester reaches the requester over chat when they registered a
// chat identity, over email otherwise. Delivery is best effort.
func (w *Workflow) notifyRequester(request *redis_models.ApprovalRequest, text string) {
	if request.Username != "" {
		if err := w.surface.Notify(request.Username, text); err != nil {
			log.Printf("[APPROVAL-ERROR] Could not notify %s: %v", request.Username, err)
		}
		return
	}
	if request.Email == "" {
		log.Printf("[APPROVAL-ERROR] Room request %s has no reachable requester", request.MessageID)
		return
	}
	err := w.mailer.Send(mail.Message{
		Subject: "Private room request update",
		To:      []string{request.Email},
		Body:    text,
	})
	if err != nil {
		log.Printf("[APPROVAL-ERROR] Could not mail %s: %v", request.Email, err)
	}
}

func (w *Workflow) approvalNotice(request *redis_models.ApprovalRequest) string {
	link := w.paymentLinkFull
	label := "full room"
	if request.RoomSize == coordinator_constants.ROOM_HALF {
		link = w.paymentLinkHalf
		label = "half room"
	}
	notice := fmt.Sprintf("Your private room request for %q was approved (%s).", request.Title, label)
	if link != "" {
		notice += " Complete your reservation here: " + link
	}
	return notice
}

// buildEntry renders the reservation in the venue's display zone so the
// calendar shows wall-clock times.
func (w *Workflow) buildEntry(request *redis_models.ApprovalRequest) calendar.Entry {
	marker := "Full Room"
	if request.RoomSize == coordinator_constants.ROOM_HALF {
		marker = "Half Room"
	}
	start := request.StartTime
	end := request.EndTime
	if local, err := utils.ToDisplay(start); err == nil {
		start = local
	}
	if local, err := utils.ToDisplay(end); err == nil {
		end = local
	}
	return calendar.Entry{
		Title:       fmt.Sprintf("%s's Session (%s)", request.Organizer, marker),
		Description: fmt.Sprintf("Reserved for %s: %s", request.ReservationName, request.Title),
		Start:       start.Format("2006-01-02T15:04:05"),
		End:         end.Format("2006-01-02T15:04:05"),
		TimeZone:    utils.DisplayZone,
		Force:       false,
	}
}

func (w *Workflow) buildPrompt(request *redis_models.ApprovalRequest, partySize int) gateway.Embed {
	date, _ := utils.DisplayDate(request.StartTime)
	start, _ := utils.DisplayClock(request.StartTime)
	end, _ := utils.DisplayClock(request.EndTime)

	roomLabel := "Full room"
	if request.RoomSize == coordinator_constants.ROOM_HALF {
		roomLabel = "Half room"
	}
	contact := request.Username
	if contact == "" {
		contact = request.Email
	}

	prompt := gateway.Embed{
		Title: "Private room request: " + request.Title,
		Description: fmt.Sprintf("React %s to approve or %s to deny.",
			coordinator_constants.REACTION_ATTEND, coordinator_constants.REACTION_DECLINE),
		Fields: []gateway.EmbedField{
			{Name: "Organizer", Value: request.Organizer, Inline: true},
			{Name: "Contact", Value: contact, Inline: true},
			{Name: "Room", Value: roomLabel, Inline: true},
			{Name: "Date", Value: date, Inline: true},
			{Name: "Start", Value: start, Inline: true},
			{Name: "End", Value: end, Inline: true},
			{Name: "Reservation name", Value: request.ReservationName},
		},
	}
	if partySize > 0 {
		prompt.Fields = append(prompt.Fields,
			gateway.EmbedField{Name: "Party size", Value: strconv.Itoa(partySize), Inline: true})
	}
	return prompt
}

func (w *Workflow) dropRequest(messageID string) {
	if err := w.store.DeleteApprovalRequest(messageID); err != nil {
		log.Printf("[APPROVAL-ERROR] Could not drop room request %s: %v", messageID, err)
	}
}

func requestFromPayload(payload *bus.RoomRequest) *redis_models.ApprovalRequest {
	request := &redis_models.ApprovalRequest{
		RoomSize:        payload.RoomSize,
		ReservationName: payload.ReservationName,
		Organizer:       payload.Organizer,
		Title:           payload.Title,
		StartTime:       payload.StartTime,
		EndTime:         payload.EndTime,
		Decision:        redis_models.DecisionPending,
		Payload:         payload.Raw,
		CreatedAt:       time.Now().UTC(),
	}
	// Chat identity and email are mutually exclusive on the request form.
	if payload.Email != "" {
		request.Email = payload.Email
	} else {
		request.Username = payload.Organizer
	}
	return request
}

// finalPayload rewrites the stored creation payload so the edit password
// is persisted as a bcrypt hash, never in the clear.
func finalPayload(payload *bus.RoomRequest) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload.Raw, &fields); err != nil {
		return nil, fmt.Errorf("decoding request payload: %w", err)
	}
	delete(fields, "privateRoomRequest")

	if payload.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing edit password: %w", err)
		}
		encoded, err := json.Marshal(string(hash))
		if err != nil {
			return nil, err
		}
		fields["password"] = encoded
	}

	return json.Marshal(fields)
}
