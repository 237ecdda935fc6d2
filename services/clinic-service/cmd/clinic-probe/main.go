// Command clinic-probe asks a running clinic-service for its gRPC health
// status. It exits non-zero unless the service reports SERVING, which makes
// it usable as a container health check.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/clinicdesk/clinicdesk/libs/config"
	"github.com/clinicdesk/clinicdesk/libs/grpcx"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	addr := flag.String("addr", "localhost:"+config.String("GRPC_PORT", "9090"), "clinic-service gRPC address")
	service := flag.String("service", "", "health service name (empty for the whole server)")
	timeout := flag.Duration("timeout", 3*time.Second, "dial and check timeout")
	flag.Parse()

	status, err := probe(context.Background(), *addr, *service, *timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "probe failed:", err)
		os.Exit(2)
	}
	fmt.Println(status)
	if status != healthpb.HealthCheckResponse_SERVING {
		os.Exit(1)
	}
}

func probe(ctx context.Context, addr, service string, timeout time.Duration, extra ...grpc.DialOption) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpcx.Dial(ctx, addr, timeout, extra...)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
