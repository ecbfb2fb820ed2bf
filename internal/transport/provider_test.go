package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-chat/internal/doc"
	"collab-chat/internal/middleware"
	"collab-chat/internal/models"
	"collab-chat/internal/ws"
)

func startRelay(t *testing.T, token string) (string, *ws.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := ws.NewHub(nil)
	r := gin.New()
	r.GET("/ws/rooms/:room", middleware.RelayAuth(token), ws.NewRelayHandler(hub).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub
}

func connect(t *testing.T, endpoint, token, client string) (*doc.Document, *Provider) {
	t.Helper()
	d := doc.New(client)
	p := NewProvider(endpoint, "main", token, d)
	p.Connect(context.Background())
	t.Cleanup(func() { _ = p.Close() })
	require.Eventually(t, p.Connected, 2*time.Second, 10*time.Millisecond)
	return d, p
}

func TestProvidersConverge(t *testing.T) {
	endpoint, _ := startRelay(t, "")
	a, _ := connect(t, endpoint, "", "a")
	b, _ := connect(t, endpoint, "", "b")

	require.NoError(t, a.Push(models.Message{ID: "a-1", Text: "hello"}))
	require.NoError(t, b.SetUser("bob", models.User{Name: "Bob", LastSeen: 1}))

	require.Eventually(t, func() bool { return b.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { _, ok := a.User("bob"); return ok }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "hello", b.Messages()[0].Text)
}

func TestLateJoinerReceivesSnapshot(t *testing.T) {
	endpoint, hub := startRelay(t, "")
	a, _ := connect(t, endpoint, "", "a")
	require.NoError(t, a.Push(models.Message{ID: "a-1", Text: "early"}))

	require.Eventually(t, func() bool {
		replica, err := hub.Replica(context.Background(), "main")
		return err == nil && replica.Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	late, _ := connect(t, endpoint, "", "late")
	require.Eventually(t, func() bool { return late.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestCloseFlushesPendingDelete(t *testing.T) {
	endpoint, _ := startRelay(t, "")
	a, pa := connect(t, endpoint, "", "a")
	b, _ := connect(t, endpoint, "", "b")

	require.NoError(t, a.SetUser("alice", models.User{Name: "Alice", LastSeen: 1}))
	require.Eventually(t, func() bool { _, ok := b.User("alice"); return ok }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.DeleteUser("alice"))
	require.NoError(t, pa.Close())

	require.Eventually(t, func() bool { _, ok := b.User("alice"); return !ok }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, pa.Connected())
}

func TestRejectedTokenNeverConnects(t *testing.T) {
	endpoint, _ := startRelay(t, "right")
	d := doc.New("a")
	p := NewProvider(endpoint, "main", "wrong", d)
	p.Connect(context.Background())

	time.Sleep(300 * time.Millisecond)
	assert.False(t, p.Connected())

	start := time.Now()
	require.NoError(t, p.Close())
	assert.Less(t, time.Since(start), flushTimeout)
}

func TestCloseWithoutConnect(t *testing.T) {
	p := NewProvider("ws://127.0.0.1:1", "main", "", doc.New("a"))
	assert.NoError(t, p.Close())
	assert.Equal(t, "ws://127.0.0.1:1/ws/rooms/main", p.URL())
}
