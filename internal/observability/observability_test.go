package observability

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	keys []string
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ any, _ map[string]string) error {
	p.keys = append(p.keys, routingKey)
	return p.err
}

func TestPublishEventWithoutPublisher(t *testing.T) {
	SetPublisher(nil)
	assert.NoError(t, PublishEvent(context.Background(), RoutingWSEvents, EventEnvelope{}, nil))
}

func TestPublishEventDelegates(t *testing.T) {
	pub := &recordingPublisher{}
	SetPublisher(pub)
	defer SetPublisher(nil)

	require.NoError(t, PublishEvent(context.Background(), RoutingAIEvents, EventEnvelope{EventName: "ai_reply"}, nil))
	assert.Equal(t, []string{RoutingAIEvents}, pub.keys)

	pub.err = assert.AnError
	assert.ErrorIs(t, PublishEvent(context.Background(), RoutingAIEvents, EventEnvelope{}, nil), assert.AnError)
}

func TestBuildHeaders(t *testing.T) {
	assert.Empty(t, BuildHeaders("", ""))
	assert.Equal(t, map[string]string{"x-request-id": "r", "trace_id": "t"}, BuildHeaders("r", "t"))
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", IPFromRequest(req))

	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", IPFromRequest(req))
}

func TestSplitFullMethod(t *testing.T) {
	service, method := splitFullMethod("/grpc.health.v1.Health/Check")
	assert.Equal(t, "grpc.health.v1.Health", service)
	assert.Equal(t, "Check", method)

	service, method = splitFullMethod("bogus")
	assert.Equal(t, "unknown", service)
	assert.Equal(t, "unknown", method)
}

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "", "svc", "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
