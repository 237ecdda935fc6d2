package main

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/clinicdesk/clinicdesk/libs/config"
	"github.com/clinicdesk/clinicdesk/libs/grpcx"
	"github.com/clinicdesk/clinicdesk/libs/runtime"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const healthService = "clinic.v1.ClinicService"

// startGrpcServer serves grpc.health.v1 with a status that follows the
// readiness checks.
func startGrpcServer(ctx context.Context, logger *slog.Logger, checks []runtime.ReadyCheck) error {
	port, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpcx.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go watchHealth(ctx, logger, hs, checks, 5*time.Second)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()

	return nil
}

func watchHealth(ctx context.Context, logger *slog.Logger, hs *health.Server, checks []runtime.ReadyCheck, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		status := healthpb.HealthCheckResponse_SERVING
		if failures := runtime.CheckAll(ctx, checks); len(failures) > 0 {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			if status != last {
				logger.Warn("not ready", "failures", failures)
			}
		}
		if ctx.Err() != nil {
			return
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(healthService, status)
		last = status

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
