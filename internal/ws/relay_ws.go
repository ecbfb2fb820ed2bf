package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"collab-chat/internal/models"
	"collab-chat/internal/observability"
)

const maxRoomName = 64

// ValidRoom reports whether name can identify a relay room.
func ValidRoom(name string) bool {
	return name != "" && len(name) <= maxRoomName
}

// RelayHandler handles document sync websocket connections.
type RelayHandler struct {
	hub *Hub
}

// NewRelayHandler constructs a RelayHandler.
func NewRelayHandler(hub *Hub) *RelayHandler {
	return &RelayHandler{hub: hub}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, registers the client and pumps its frames
// into the hub until the connection closes.
func (h *RelayHandler) Handle(c *gin.Context) {
	name := c.Param("room")
	if !ValidRoom(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room"})
		return
	}

	ctx, span := otel.Tracer("collab-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	if _, err := h.hub.Replica(ctx, name); err != nil {
		log.WithError(err).WithField("room", name).Error("failed to open room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open room"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	traceID := span.SpanContext().TraceID().String()
	info := ConnInfo{
		ConnID:      newConnID(),
		ClientID:    observability.ClientIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	if err := h.hub.AddClient(ctx, name, conn, info); err != nil {
		_ = conn.Close()
		return
	}

	observability.IncWSActive(name)
	publishWSEvent(ctx, "ws_connect", name, info, "")

	// the handshake span ends with this handler; the pump runs detached
	pumpCtx := context.WithoutCancel(ctx)
	go func() {
		var closeReason string
		defer func() {
			h.hub.RemoveClient(name, conn)
			observability.DecWSActive(name)
			publishWSEvent(pumpCtx, "ws_disconnect", name, info, closeReason)
			conn.Close()
		}()
		for {
			var frame models.Frame
			if err := conn.ReadJSON(&frame); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					publishWSEvent(pumpCtx, "ws_error", name, info, closeReason)
				}
				return
			}
			if err := h.hub.Handle(pumpCtx, name, conn, frame); err != nil {
				closeReason = err.Error()
				return
			}
		}
	}()
}
