// Package chat implements sending messages and attaching AI replies to them.
package chat

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"collab-chat/internal/ai"
	"collab-chat/internal/doc"
	"collab-chat/internal/models"
)

// Drafter receives the local typing draft.
type Drafter interface {
	SetTyping(text string) error
}

// Session sends messages on behalf of one identity.
type Session struct {
	doc       *doc.Document
	drafts    Drafter
	responder ai.Responder
	self      models.Identity
	now       func() time.Time

	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewSession wires a session. drafts may be nil.
func NewSession(d *doc.Document, drafts Drafter, responder ai.Responder, self models.Identity) *Session {
	return &Session{doc: d, drafts: drafts, responder: responder, self: self, now: time.Now}
}

// Send appends text as a message and asks for an AI reply in the background.
// Blank text, a destroyed document or a closed session make it a no-op.
// The reply, if any, is appended with ReplyTo set to the returned message id.
// Failures are logged and never retried.
func (s *Session) Send(ctx context.Context, text string) (models.Message, bool) {
	text = strings.TrimSpace(text)
	if text == "" || s.closed.Load() || s.doc == nil || s.doc.Destroyed() {
		return models.Message{}, false
	}

	ts := s.now().UnixMilli()
	msg := models.Message{
		ID:        models.MessageID(s.self.ID, ts),
		Text:      text,
		Sender:    s.self.Name,
		Timestamp: ts,
		Color:     s.self.Color,
	}
	if err := s.doc.Push(msg); err != nil {
		log.WithError(err).Warn("could not append message")
		return models.Message{}, false
	}

	history := ai.HistoryFrom(s.doc.Last(ai.MaxHistory))

	if s.drafts != nil {
		if err := s.drafts.SetTyping(""); err != nil {
			log.WithError(err).Debug("could not clear typing draft")
		}
	}

	if s.responder != nil {
		s.wg.Add(1)
		go s.reply(context.WithoutCancel(ctx), msg, history)
	}
	return msg, true
}

// Draft publishes the text being typed.
func (s *Session) Draft(text string) error {
	if s.drafts == nil {
		return nil
	}
	return s.drafts.SetTyping(text)
}

// Wait blocks until every pending reply finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close stops accepting sends. Replies that complete afterwards are dropped.
func (s *Session) Close() {
	s.closed.Store(true)
}

func (s *Session) reply(ctx context.Context, msg models.Message, history []models.HistoryEntry) {
	defer s.wg.Done()

	text, err := s.responder.Reply(ctx, msg.Text, history)
	if err != nil {
		log.WithError(err).WithField("reply_to", msg.ID).Error("failed to get AI response")
		return
	}
	if text == "" || s.closed.Load() {
		return
	}

	ts := s.now().UnixMilli()
	answer := models.Message{
		ID:        models.MessageID("ai", ts),
		Text:      text,
		Sender:    models.AIUserName,
		Timestamp: ts,
		Color:     models.AIUserColor,
		ReplyTo:   msg.ID,
	}
	if err := s.doc.Push(answer); err != nil {
		entry := log.WithError(err).WithField("reply_to", msg.ID)
		if errors.Is(err, doc.ErrDestroyed) {
			entry.Debug("dropping AI reply")
			return
		}
		entry.Warn("could not append AI reply")
	}
}

// Thread is a user message with the AI reply attached to it, if one arrived.
type Thread struct {
	Message models.Message
	Reply   *models.Message
}

// Threads pairs every non-AI message with the first AI message replying to it.
// AI messages are only reachable through their parent.
func Threads(msgs []models.Message) []Thread {
	replies := make(map[string]models.Message)
	for _, m := range msgs {
		if m.Sender == models.AIUserName && m.ReplyTo != "" {
			if _, ok := replies[m.ReplyTo]; !ok {
				replies[m.ReplyTo] = m
			}
		}
	}

	out := make([]Thread, 0, len(msgs))
	for _, m := range msgs {
		if m.Sender == models.AIUserName {
			continue
		}
		th := Thread{Message: m}
		if r, ok := replies[m.ID]; ok {
			th.Reply = &r
		}
		out = append(out, th)
	}
	return out
}
