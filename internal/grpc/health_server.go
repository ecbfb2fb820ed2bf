package grpc

import (
	"net"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"collab-chat/internal/observability"
)

// RelayService is the health service name reported by the relay.
const RelayService = "collab-chat.Relay"

// HealthServer exposes the standard gRPC health service.
type HealthServer struct {
	server *grpclib.Server
	health *health.Server
}

// NewHealthServer builds a server instrumented with tracing and metrics.
func NewHealthServer() *HealthServer {
	srv := grpclib.NewServer(
		grpclib.StatsHandler(otelgrpc.NewServerHandler()),
		grpclib.UnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(RelayService, healthpb.HealthCheckResponse_SERVING)
	return &HealthServer{server: srv, health: hs}
}

// Serve blocks serving on lis until Stop.
func (s *HealthServer) Serve(lis net.Listener) error {
	log.WithField("addr", lis.Addr().String()).Info("grpc health server listening")
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpclib.ErrServerStopped) {
		return errors.Wrap(err, "grpc serve")
	}
	return nil
}

// Stop marks every service as not serving and drains the server.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
