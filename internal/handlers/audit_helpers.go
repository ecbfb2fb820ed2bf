package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"collab-chat/internal/middleware"
	"collab-chat/internal/observability"
)

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(middleware.RequestIDKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

func clientIDFromContext(c *gin.Context) *string {
	if id := observability.ClientIDFromRequest(c.Request); id != "" {
		return &id
	}
	return nil
}
