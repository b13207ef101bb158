// Package grpc serves and probes the gRPC health endpoint duet exposes for
// orchestrators.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// NewHealthServer returns a gRPC server carrying only the health service,
// with every named service (and the empty overall service) set to SERVING.
func NewHealthServer(services ...string) (*gogrpc.Server, *health.Server) {
	server := gogrpc.NewServer(gogrpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	for _, name := range services {
		healthServer.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	return server, healthServer
}

var errNotServing = errors.New("service is not serving")

// WaitForHealth polls addr until service reports SERVING or ctx ends.
func WaitForHealth(ctx context.Context, addr, service string) error {
	conn, err := gogrpc.NewClient(addr,
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	client := grpc_health_v1.NewHealthClient(conn)
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = time.Second

	_, err = backoff.Retry(ctx, func() (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		if err != nil {
			return 0, err
		}
		if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
			return resp.GetStatus(), fmt.Errorf("%w: %s", errNotServing, resp.GetStatus())
		}
		return resp.GetStatus(), nil
	}, backoff.WithBackOff(policy))
	if err != nil {
		return fmt.Errorf("wait for health of %q at %s: %w", service, addr, err)
	}
	return nil
}
