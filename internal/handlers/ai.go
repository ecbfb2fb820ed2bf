package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"collab-chat/internal/ai"
	"collab-chat/internal/models"
	"collab-chat/internal/observability"
	"collab-chat/internal/telemetry"
)

const aiFailureMessage = "Failed to generate AI response"

// AIHandler proxies chat prompts to the AI vendor.
type AIHandler struct {
	generator ai.Generator
	audit     *telemetry.AuditEmitter
}

// NewAIHandler builds an AIHandler. audit may be nil.
func NewAIHandler(generator ai.Generator, audit *telemetry.AuditEmitter) *AIHandler {
	return &AIHandler{generator: generator, audit: audit}
}

// Reply builds a prompt from the message and its recent history and returns
// the vendor text. Every failure answers 500 with success=false; nothing is retried.
func (h *AIHandler) Reply(c *gin.Context) {
	ctx, span := otel.Tracer("collab-chat/handlers").Start(c.Request.Context(), "ai.reply")
	defer span.End()
	start := time.Now()

	var req models.AIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(ctx, c, span, start, errors.Wrap(err, "decode request"))
		return
	}
	if req.Message == "" {
		h.fail(ctx, c, span, start, errors.New("missing message"))
		return
	}

	prompt := ai.BuildPrompt(req.Message, ai.TrimHistory(req.ConversationHistory))
	text, err := h.generator.Generate(ctx, prompt)
	if err != nil {
		h.fail(ctx, c, span, start, err)
		return
	}

	observability.ObserveAIRequest("success", time.Since(start))
	h.publish(ctx, c, span, "ai_reply", "")
	c.JSON(http.StatusOK, models.AIResponse{Success: true, Response: text})
}

func (h *AIHandler) fail(ctx context.Context, c *gin.Context, span trace.Span, start time.Time, err error) {
	log.WithError(err).WithField("request_id", requestIDFromContext(c)).Error("AI API error")
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	observability.ObserveAIRequest("error", time.Since(start))
	h.publish(ctx, c, span, "ai_error", err.Error())
	h.audit.Emit(ctx, "ERROR", "ai proxy failure: "+err.Error(), requestIDFromContext(c), clientIDFromContext(c))
	c.JSON(http.StatusInternalServerError, models.AIResponse{Success: false, Error: aiFailureMessage})
}

func (h *AIHandler) publish(ctx context.Context, c *gin.Context, span trace.Span, event, reason string) {
	requestID := requestIDFromContext(c)
	_ = observability.PublishEvent(ctx, observability.RoutingAIEvents, observability.EventEnvelope{
		EventType: "ai_events",
		EventName: event,
		Payload: map[string]interface{}{
			"reason": reason,
			"ip":     observability.IPFromRequest(c.Request),
		},
	}, observability.BuildHeaders(requestID, span.SpanContext().TraceID().String()))
}
