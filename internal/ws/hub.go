package ws

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"collab-chat/internal/doc"
	"collab-chat/internal/models"
	"collab-chat/internal/observability"
	"collab-chat/internal/repositories"
)

const writeWait = 10 * time.Second

// Conn is the part of *websocket.Conn the hub writes to.
type Conn interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type client struct {
	conn Conn
	info ConnInfo
	mu   sync.Mutex
}

func (c *client) send(frame models.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(frame)
}

type room struct {
	replica *doc.Document
	clients map[Conn]*client
}

// Hub maintains relay rooms. Each room keeps a replica of the shared
// document so that joining clients can be sent a snapshot.
type Hub struct {
	rooms map[string]*room
	repo  repositories.UpdateRepository
	mu    sync.RWMutex
}

// NewHub creates an empty hub. repo may be nil, in which case rooms live in memory only.
func NewHub(repo repositories.UpdateRepository) *Hub {
	return &Hub{
		rooms: make(map[string]*room),
		repo:  repo,
	}
}

// Replica returns the document of name, replaying persisted messages the
// first time the room is opened.
func (h *Hub) Replica(ctx context.Context, name string) (*doc.Document, error) {
	h.mu.RLock()
	r, ok := h.rooms[name]
	h.mu.RUnlock()
	if ok {
		return r.replica, nil
	}

	replica := doc.New("relay-" + name)
	if h.repo != nil {
		updates, err := h.repo.ListUpdates(ctx, name)
		if err != nil {
			return nil, err
		}
		replica.Apply(updates, doc.OriginRemote)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[name]; ok {
		return r.replica, nil
	}
	h.rooms[name] = &room{replica: replica, clients: make(map[Conn]*client)}
	return replica, nil
}

// AddClient registers a websocket connection to a room.
func (h *Hub) AddClient(ctx context.Context, name string, conn Conn, info ConnInfo) error {
	if _, err := h.Replica(ctx, name); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rooms[name].clients[conn] = &client{conn: conn, info: info}
	return nil
}

// RemoveClient removes a websocket connection. The room replica is kept.
func (h *Hub) RemoveClient(name string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[name]; ok {
		delete(r.clients, conn)
	}
}

// ClientCount returns the number of connections in a room.
func (h *Hub) ClientCount(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[name]; ok {
		return len(r.clients)
	}
	return 0
}

// Handle applies a frame received from conn. A sync frame is answered with
// the full replica snapshot. Updates that changed the replica are sent to
// every other connection of the room.
func (h *Hub) Handle(ctx context.Context, name string, conn Conn, frame models.Frame) error {
	replica, err := h.Replica(ctx, name)
	if err != nil {
		return err
	}

	applied := replica.Apply(frame.Updates, doc.OriginRemote)
	countByKind(applied)
	if h.repo != nil && len(applied) > 0 {
		if err := h.repo.AppendUpdates(ctx, name, applied); err != nil {
			log.WithError(err).WithField("room", name).Error("failed to persist room updates")
		}
	}

	if frame.Type == models.FrameSync {
		if c := h.client(name, conn); c != nil {
			if err := c.send(models.Frame{Type: models.FrameSync, Updates: replica.Snapshot()}); err != nil {
				h.drop(name, c, err)
				return err
			}
		}
	}

	if len(applied) > 0 {
		h.Broadcast(name, conn, models.Frame{Type: models.FrameUpdate, Updates: applied})
	}
	return nil
}

// Broadcast sends frame to every client of a room except the sender.
func (h *Hub) Broadcast(name string, except Conn, frame models.Frame) {
	h.mu.RLock()
	var targets []*client
	if r, ok := h.rooms[name]; ok {
		for conn, c := range r.clients {
			if conn != except {
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(frame); err != nil {
			log.Printf("websocket write error: %v", err)
			h.drop(name, c, err)
		}
	}
}

func (h *Hub) client(name string, conn Conn) *client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[name]; ok {
		return r.clients[conn]
	}
	return nil
}

func (h *Hub) drop(name string, c *client, err error) {
	_ = c.conn.Close()
	h.RemoveClient(name, c.conn)
	publishWSEvent(context.Background(), "ws_error", name, c.info, err.Error())
}

func countByKind(updates []models.Update) {
	counts := map[string]int{}
	for _, u := range updates {
		counts[u.Kind]++
	}
	for kind, n := range counts {
		observability.AddRelayUpdates(kind, n)
	}
}

func publishWSEvent(ctx context.Context, event, name string, info ConnInfo, reason string) {
	observability.IncWSEvent(event)
	_ = observability.PublishEvent(ctx, observability.RoutingWSEvents, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"room":        name,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"client_id": info.ClientID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
