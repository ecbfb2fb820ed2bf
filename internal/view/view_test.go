package view

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-chat/internal/models"
	"collab-chat/internal/presence"
)

func TestRenderRoom(t *testing.T) {
	self := models.Identity{ID: "me", Name: "Quick Fox", Color: "#FF6B6B"}
	now := time.UnixMilli(1_700_000_000_000)
	users := map[string]models.User{
		"me":  {Name: "Quick Fox", Color: "#FF6B6B", LastSeen: now.UnixMilli()},
		"bob": {Name: "Sleepy Owl", Color: "#4ECDC4", Typing: "almost done", LastSeen: now.UnixMilli() - 2000},
	}
	msgs := []models.Message{
		{ID: "me-1", Text: "hello", Sender: "Quick Fox", Timestamp: 1, Color: "#FF6B6B"},
		{ID: "ai-2", Text: "Hi there!", Sender: models.AIUserName, Timestamp: 2, Color: models.AIUserColor, ReplyTo: "me-1"},
	}

	var buf bytes.Buffer
	err := Renderer{Room: "main"}.Render(&buf, msgs, presence.Derive(users, self.ID, now, presence.LivenessWindow), self)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Active Users (3)")
	assert.Equal(t, 1, strings.Count(out, "(You)"))
	assert.Contains(t, out, "Sleepy Owl is typing: \"almost done\"")
	assert.Contains(t, out, "AI Reply")
	assert.Less(t, strings.Index(out, "hello"), strings.Index(out, "Hi there!"))
	assert.Less(t, strings.Index(out, models.AIUserName), strings.Index(out, "(You)"))
}

func TestRenderEmptyRoom(t *testing.T) {
	self := models.Identity{ID: "me", Name: "Quick Fox"}

	var buf bytes.Buffer
	require.NoError(t, Renderer{Room: "main"}.Render(&buf, nil, presence.Derive(nil, self.ID, time.Now(), presence.LivenessWindow), self))

	assert.Contains(t, buf.String(), "No messages yet")
	assert.Contains(t, buf.String(), "Active Users (1)")
	assert.NotContains(t, buf.String(), "typing")
}
