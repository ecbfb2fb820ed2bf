package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-chat/internal/models"
	"collab-chat/internal/ws"
)

func setupPagesRouter(handler *PagesHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.SetHTMLTemplate(Templates())
	r.GET("/", handler.Home)
	r.GET("/chat", handler.Chat)
	return r
}

func TestHomeLinksToChat(t *testing.T) {
	router := setupPagesRouter(NewPagesHandler(ws.NewHub(nil), "main"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/chat?room=main"`)
}

func TestChatRendersRoom(t *testing.T) {
	hub := ws.NewHub(nil)
	now := time.UnixMilli(1_700_000_000_000)
	handler := NewPagesHandler(hub, "main")
	handler.now = func() time.Time { return now }
	router := setupPagesRouter(handler)

	replica, err := hub.Replica(context.Background(), "lobby")
	require.NoError(t, err)
	require.NoError(t, replica.Push(models.Message{ID: "u1-1", Text: "hello", Sender: "Quick Fox", Timestamp: 1, Color: "#FF6B6B"}))
	require.NoError(t, replica.Push(models.Message{ID: "ai-2", Text: "Hi there!", Sender: models.AIUserName, Timestamp: 2, Color: models.AIUserColor, ReplyTo: "u1-1"}))
	require.NoError(t, replica.SetUser("u1", models.User{Name: "Quick Fox", Color: "#FF6B6B", Typing: "drafting", LastSeen: now.UnixMilli() - 1000}))
	require.NoError(t, replica.SetUser("u2", models.User{Name: "Sleepy Owl", Color: "#4ECDC4", LastSeen: now.UnixMilli() - 11_000}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat?room=lobby", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Active Users (2)")
	assert.Contains(t, body, "Quick Fox")
	assert.NotContains(t, body, "Sleepy Owl")
	assert.Contains(t, body, "hello")
	assert.Contains(t, body, "AI Reply")
	assert.Contains(t, body, "Hi there!")
	assert.Contains(t, body, "drafting")
}

func TestChatEmptyRoom(t *testing.T) {
	router := setupPagesRouter(NewPagesHandler(ws.NewHub(nil), "main"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No messages yet")
	assert.Contains(t, rec.Body.String(), "Active Users (1)")
}

func TestChatRejectsOversizedRoom(t *testing.T) {
	router := setupPagesRouter(NewPagesHandler(ws.NewHub(nil), "main"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat?room="+strings.Repeat("r", 65), nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
