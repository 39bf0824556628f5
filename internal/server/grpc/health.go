package grpc

import (
	"context"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// checkHealth sets the overall serving status from a database ping.
func (s *GRPCServer) checkHealth(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING

	if s.pinger != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := s.pinger.PingContext(pingCtx); err != nil {
			s.logger.Warn(ctx, "health check failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	s.health.SetServingStatus("", status)
}

func (s *GRPCServer) watchHealth(ctx context.Context) {
	if s.pinger == nil {
		return
	}

	ticker := time.NewTicker(s.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkHealth(ctx)
		}
	}
}
