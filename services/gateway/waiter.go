package gateway

import (
	"errors"
	"time"
)

// ErrWaitTimeout is returned when nobody produced the awaited event inside
// the bounded wait.
var ErrWaitTimeout = errors.New("timed out waiting for a response")

// ReactionEvent is one observed affordance toggle.
type ReactionEvent struct {
	MessageID string
	Member    string
	Emoji     string
	Added     bool
}

// ReplyEvent is one free-text reply sent against a prompt message.
type ReplyEvent struct {
	MessageID string
	Member    string
	Text      string
}

type waiter struct {
	messageID string
	// exactly one of these is non-nil
	reactionPred func(ReactionEvent) bool
	replyCh      chan ReplyEvent
	reactionCh   chan ReactionEvent
}

// AwaitReaction suspends until a reaction on the message satisfies the
// predicate, or the timeout elapses. The matched reaction is consumed by at
// most one waiter.
func (s *SocketServer) AwaitReaction(messageID string, timeout time.Duration,
	predicate func(ReactionEvent) bool) (ReactionEvent, error) {

	w := &waiter{
		messageID:    messageID,
		reactionPred: predicate,
		reactionCh:   make(chan ReactionEvent, 1),
	}
	s.addWaiter(w)
	defer s.removeWaiter(w)

	select {
	case ev := <-w.reactionCh:
		return ev, nil
	case <-time.After(timeout):
		return ReactionEvent{}, ErrWaitTimeout
	}
}

// AwaitReply suspends until any member replies to the prompt message, or
// the timeout elapses.
func (s *SocketServer) AwaitReply(messageID string, timeout time.Duration) (ReplyEvent, error) {
	w := &waiter{
		messageID: messageID,
		replyCh:   make(chan ReplyEvent, 1),
	}
	s.addWaiter(w)
	defer s.removeWaiter(w)

	select {
	case ev := <-w.replyCh:
		return ev, nil
	case <-time.After(timeout):
		return ReplyEvent{}, ErrWaitTimeout
	}
}

func (s *SocketServer) addWaiter(w *waiter) {
	s.waitersMu.Lock()
	defer s.waitersMu.Unlock()
	s.waiters = append(s.waiters, w)
}

func (s *SocketServer) removeWaiter(w *waiter) {
	s.waitersMu.Lock()
	defer s.waitersMu.Unlock()
	for i, candidate := range s.waiters {
		if candidate == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

// dispatchReaction offers the event to waiters first; if none consumes it,
// it flows to the reaction handler (the RSVP coordinator).
func (s *SocketServer) dispatchReaction(ev ReactionEvent) {
	s.waitersMu.Lock()
	for i, w := range s.waiters {
		if w.reactionCh == nil || w.messageID != ev.MessageID {
			continue
		}
		if w.reactionPred != nil && !w.reactionPred(ev) {
			continue
		}
		s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
		s.waitersMu.Unlock()
		w.reactionCh <- ev
		return
	}
	s.waitersMu.Unlock()

	if s.reactions == nil {
		return
	}
	if ev.Added {
		s.reactions.HandleReactionAdd(ev.Member, ev.MessageID, ev.Emoji)
	} else {
		s.reactions.HandleReactionRemove(ev.Member, ev.MessageID, ev.Emoji)
	}
}

// dispatchReply routes a reply to the first waiter on the message. Replies
// with no waiter are dropped; nothing else consumes them.
func (s *SocketServer) dispatchReply(ev ReplyEvent) {
	s.waitersMu.Lock()
	for i, w := range s.waiters {
		if w.replyCh == nil || w.messageID != ev.MessageID {
			continue
		}
		s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
		s.waitersMu.Unlock()
		w.replyCh <- ev
		return
	}
	s.waitersMu.Unlock()
}
