package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health entry reported alongside the overall "" entry.
const ServiceName = "cardshop.Checkout"

// HealthServer publishes the database state over grpc.health.v1.
type HealthServer struct {
	*health.Server
	db       Pinger
	interval time.Duration
	logger   *zap.Logger
}

func NewHealthServer(db Pinger, interval time.Duration, logger *zap.Logger) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HealthServer{
		Server:   health.NewServer(),
		db:       db,
		interval: interval,
		logger:   logger,
	}
}

// Probe pings the database once and records the result.
func (s *HealthServer) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.db.Ping(pingCtx); err != nil {
		s.logger.Warn("database ping failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.SetServingStatus("", status)
	s.SetServingStatus(ServiceName, status)
	return status
}

// Run probes until ctx is done, then marks everything NOT_SERVING.
func (s *HealthServer) Run(ctx context.Context) {
	s.Probe(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Shutdown()
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}
