package grpc

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthClient wraps the gRPC health client of a relay.
type HealthClient struct {
	conn   *grpclib.ClientConn
	client healthpb.HealthClient
}

// DialHealth connects to addr without transport security.
func DialHealth(addr string) (*HealthClient, error) {
	conn, err := grpclib.NewClient(addr,
		grpclib.WithTransportCredentials(insecure.NewCredentials()),
		grpclib.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return &HealthClient{conn: conn, client: healthpb.NewHealthClient(conn)}, nil
}

// Serving reports whether service is SERVING.
func (h *HealthClient) Serving(ctx context.Context, service string) (bool, error) {
	resp, err := h.client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// Close releases the connection.
func (h *HealthClient) Close() error {
	return h.conn.Close()
}
