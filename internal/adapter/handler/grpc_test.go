package handler

import (
	"context"
	"testing"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/hive-corporation/sochub/internal/core/domain"
	"github.com/hive-corporation/sochub/internal/core/ports"
	"github.com/hive-corporation/sochub/internal/registry"
)

func healthServer(modules ...ports.Module) *GrpcHealthServer {
	reg := registry.New()
	for _, m := range modules {
		reg.Register(m)
	}
	return NewGrpcHealthServer(reg)
}

func TestGrpcCheckAggregate(t *testing.T) {
	tests := []struct {
		name    string
		modules []ports.Module
		want    healthpb.HealthCheckResponse_ServingStatus
	}{
		{
			name:    "all healthy",
			modules: []ports.Module{&stubModule{name: "edr"}, &stubModule{name: "hive"}},
			want:    healthpb.HealthCheckResponse_SERVING,
		},
		{
			name:    "one unhealthy",
			modules: []ports.Module{&stubModule{name: "edr"}, &stubModule{name: "hive", health: domain.HealthUnhealthy}},
			want:    healthpb.HealthCheckResponse_NOT_SERVING,
		},
		{
			name:    "empty registry",
			modules: nil,
			want:    healthpb.HealthCheckResponse_SERVING,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := healthServer(tc.modules...)
			resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Status != tc.want {
				t.Errorf("expected %s, got %s", tc.want, resp.Status)
			}
		})
	}
}

func TestGrpcCheckPerModule(t *testing.T) {
	srv := healthServer(
		&stubModule{name: "edr"},
		&stubModule{name: "hive", health: domain.HealthError},
	)

	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "edr"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING for a healthy module, got %s", resp.Status)
	}

	resp, err = srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "hive"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING for a failing module, got %s", resp.Status)
	}
}

func TestGrpcCheckUnknownService(t *testing.T) {
	srv := healthServer(&stubModule{name: "edr"})

	_, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "nope"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

// fakeWatchStream satisfies Health_WatchServer for a direct call to Watch.
type fakeWatchStream struct {
	healthpb.Health_WatchServer
	ctx  context.Context
	sent []*healthpb.HealthCheckResponse
}

func (f *fakeWatchStream) Context() context.Context { return f.ctx }
func (f *fakeWatchStream) Send(resp *healthpb.HealthCheckResponse) error {
	f.sent = append(f.sent, resp)
	return nil
}

func TestGrpcWatchSendsInitialStatus(t *testing.T) {
	srv := healthServer(&stubModule{name: "edr", health: domain.HealthUnhealthy})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stream := &fakeWatchStream{ctx: ctx}

	if err := srv.Watch(&healthpb.HealthCheckRequest{}, stream); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(stream.sent) != 1 {
		t.Fatalf("expected exactly the initial status, got %d responses", len(stream.sent))
	}
	if stream.sent[0].Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING, got %s", stream.sent[0].Status)
	}
}
