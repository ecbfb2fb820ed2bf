package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collab-chat/internal/doc"
	"collab-chat/internal/mocks"
	"collab-chat/internal/models"
)

type recordingDrafter struct {
	drafts []string
}

func (r *recordingDrafter) SetTyping(text string) error {
	r.drafts = append(r.drafts, text)
	return nil
}

var alice = models.Identity{ID: "a1b2c3d4", Name: "Quick Fox", Color: "#FF6B6B"}

func newTestSession(responder *mocks.ResponderMock, drafts Drafter) (*Session, *doc.Document) {
	d := doc.New(alice.ID)
	s := NewSession(d, drafts, responder, alice)
	var tick int64 = 1_700_000_000_000
	s.now = func() time.Time {
		tick++
		return time.UnixMilli(tick)
	}
	return s, d
}

func TestSendAppendsMessageAndReply(t *testing.T) {
	responder := new(mocks.ResponderMock)
	drafts := &recordingDrafter{}
	s, d := newTestSession(responder, drafts)

	responder.On("Reply", mock.Anything, "hello", []models.HistoryEntry{{Sender: "Quick Fox", Text: "hello"}}).
		Return("Hi there!", nil).Once()

	msg, ok := s.Send(context.Background(), "  hello  ")
	require.True(t, ok)
	s.Wait()

	msgs := d.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, msg, msgs[0])
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, models.MessageID(alice.ID, msg.Timestamp), msgs[0].ID)
	assert.Equal(t, alice.Color, msgs[0].Color)

	reply := msgs[1]
	assert.Equal(t, models.AIUserName, reply.Sender)
	assert.Equal(t, models.AIUserColor, reply.Color)
	assert.Equal(t, "Hi there!", reply.Text)
	assert.Equal(t, msg.ID, reply.ReplyTo)
	assert.Regexp(t, `^ai-\d+$`, reply.ID)

	assert.Equal(t, []string{""}, drafts.drafts)
	responder.AssertExpectations(t)
}

func TestSendReplyFailureAppendsNothing(t *testing.T) {
	responder := new(mocks.ResponderMock)
	s, d := newTestSession(responder, nil)

	responder.On("Reply", mock.Anything, "hello", mock.Anything).Return("", assert.AnError).Once()

	_, ok := s.Send(context.Background(), "hello")
	require.True(t, ok)
	s.Wait()

	require.Equal(t, 1, d.Len())
	responder.AssertExpectations(t)
}

func TestSendBlankIsNoop(t *testing.T) {
	responder := new(mocks.ResponderMock)
	s, d := newTestSession(responder, nil)

	_, ok := s.Send(context.Background(), " \n\t ")
	assert.False(t, ok)
	assert.Equal(t, 0, d.Len())
	responder.AssertNotCalled(t, "Reply", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendOnDestroyedDocumentIsNoop(t *testing.T) {
	responder := new(mocks.ResponderMock)
	s, d := newTestSession(responder, nil)
	d.Destroy()

	_, ok := s.Send(context.Background(), "hello")
	assert.False(t, ok)
	responder.AssertNotCalled(t, "Reply", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendHistoryIsLastFive(t *testing.T) {
	responder := new(mocks.ResponderMock)
	s, d := newTestSession(responder, nil)

	for i, text := range []string{"m1", "m2", "m3", "m4", "m5"} {
		require.NoError(t, d.Push(models.Message{ID: models.MessageID("bob", int64(i)), Text: text, Sender: "Bob"}))
	}

	responder.On("Reply", mock.Anything, "m6", []models.HistoryEntry{
		{Sender: "Bob", Text: "m2"},
		{Sender: "Bob", Text: "m3"},
		{Sender: "Bob", Text: "m4"},
		{Sender: "Bob", Text: "m5"},
		{Sender: "Quick Fox", Text: "m6"},
	}).Return("", nil).Once()

	_, ok := s.Send(context.Background(), "m6")
	require.True(t, ok)
	s.Wait()

	assert.Equal(t, 6, d.Len())
	responder.AssertExpectations(t)
}

func TestReplyAfterCloseIsDropped(t *testing.T) {
	responder := new(mocks.ResponderMock)
	s, d := newTestSession(responder, nil)

	release := make(chan time.Time)
	responder.On("Reply", mock.Anything, "hello", mock.Anything).
		WaitUntil(release).
		Return("late", nil).Once()

	_, ok := s.Send(context.Background(), "hello")
	require.True(t, ok)
	s.Close()
	close(release)
	s.Wait()

	assert.Equal(t, 1, d.Len())

	_, ok = s.Send(context.Background(), "again")
	assert.False(t, ok)
}

func TestThreads(t *testing.T) {
	msgs := []models.Message{
		{ID: "u1-1", Text: "hello", Sender: "Quick Fox"},
		{ID: "u2-2", Text: "hey", Sender: "Sleepy Owl"},
		{ID: "ai-3", Text: "first", Sender: models.AIUserName, ReplyTo: "u1-1"},
		{ID: "ai-4", Text: "second", Sender: models.AIUserName, ReplyTo: "u1-1"},
		{ID: "ai-5", Text: "orphan", Sender: models.AIUserName},
	}

	threads := Threads(msgs)

	require.Len(t, threads, 2)
	assert.Equal(t, "u1-1", threads[0].Message.ID)
	require.NotNil(t, threads[0].Reply)
	assert.Equal(t, "first", threads[0].Reply.Text)
	assert.Equal(t, "u2-2", threads[1].Message.ID)
	assert.Nil(t, threads[1].Reply)
}
