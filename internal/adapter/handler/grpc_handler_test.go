package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func zapNop() *zap.Logger { return zap.NewNop() }

func TestHealthServer_Probe(t *testing.T) {
	ctx := context.Background()

	up := NewHealthServer(stubPinger{}, time.Minute, nil)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, up.Probe(ctx))
	resp, err := up.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	down := NewHealthServer(stubPinger{err: errors.New("db down")}, time.Minute, nil)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, down.Probe(ctx))
	resp, err = down.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestHealthServer_RunStopsOnCancel(t *testing.T) {
	s := NewHealthServer(stubPinger{}, 5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	resp, err := s.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}
