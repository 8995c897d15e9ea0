// Package grpc exposes the standard gRPC health service for echocoded.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Health service names.
const (
	IntentService = "echocode.intent"
	STTService    = "echocode.stt"
)

// Server is a gRPC server carrying health and reflection.
type Server struct {
	srv    *grpc.Server
	health *health.Server
}

// New creates a server with every service reported as serving.
func New(opts ...grpc.ServerOption) *Server {
	srv := grpc.NewServer(opts...)
	hs := health.NewServer()

	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &Server{srv: srv, health: hs}
	s.SetServing("", true)
	s.SetServing(IntentService, true)
	s.SetServing(STTService, true)

	return s
}

// SetServing updates the health status of service. The empty name is the
// server as a whole.
func (s *Server) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.health.SetServingStatus(service, status)
}

// Serve accepts connections on l until ctx ends, then stops gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("gRPC server listening", "addr", l.Addr().String())
		errCh <- s.srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.health.Shutdown()
	s.srv.GracefulStop()

	slog.Info("gRPC server stopped")
	return nil
}
