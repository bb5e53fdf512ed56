package handler

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/hive-corporation/sochub/internal/core/domain"
	"github.com/hive-corporation/sochub/internal/registry"
)

// grpcWatchInterval is how often Watch re-probes the modules.
const grpcWatchInterval = 15 * time.Second

// GrpcHealthServer exposes module health over the standard gRPC health
// protocol, for sidecar probes that speak grpc_health_v1 instead of HTTP.
// The empty service name reports the aggregate; a module name reports that
// module alone.
type GrpcHealthServer struct {
	healthpb.UnimplementedHealthServer
	registry *registry.Registry
}

func NewGrpcHealthServer(reg *registry.Registry) *GrpcHealthServer {
	return &GrpcHealthServer{registry: reg}
}

func (s *GrpcHealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if req.Service != "" {
		if _, ok := s.registry.Get(req.Service); !ok {
			return nil, status.Errorf(codes.NotFound, "unknown service %q", req.Service)
		}
	}
	return &healthpb.HealthCheckResponse{Status: s.probe(ctx, req.Service)}, nil
}

func (s *GrpcHealthServer) Watch(req *healthpb.HealthCheckRequest, stream healthpb.Health_WatchServer) error {
	ctx := stream.Context()

	last := s.probe(ctx, req.Service)
	if err := stream.Send(&healthpb.HealthCheckResponse{Status: last}); err != nil {
		return err
	}

	ticker := time.NewTicker(grpcWatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			current := s.probe(ctx, req.Service)
			if current == last {
				continue
			}
			if err := stream.Send(&healthpb.HealthCheckResponse{Status: current}); err != nil {
				return err
			}
			last = current
		}
	}
}

func (s *GrpcHealthServer) probe(ctx context.Context, service string) healthpb.HealthCheckResponse_ServingStatus {
	if service == "" {
		for _, result := range s.registry.HealthAll(ctx) {
			if result.Status != domain.HealthHealthy {
				return healthpb.HealthCheckResponse_NOT_SERVING
			}
		}
		return healthpb.HealthCheckResponse_SERVING
	}

	m, ok := s.registry.Get(service)
	if !ok {
		return healthpb.HealthCheckResponse_SERVICE_UNKNOWN
	}
	if m.HealthCheck(ctx).Status != domain.HealthHealthy {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
