package api

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cuemby/cirrus/pkg/metrics"
)

// ServicePrefix namespaces per-component gRPC health services, e.g.
// "cirrus.scheduler"
const ServicePrefix = "cirrus."

// DefaultSyncInterval is how often component health is copied to the gRPC
// health service
const DefaultSyncInterval = 5 * time.Second

// Server exposes the grpc.health.v1 service. The overall ("") status follows
// readiness; each component is also served as its own service name.
type Server struct {
	grpc       *grpc.Server
	health     *health.Server
	components []string
	interval   time.Duration
	logger     zerolog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewServer creates the gRPC server for the given components
func NewServer(logger zerolog.Logger, components ...string) *Server {
	if len(components) == 0 {
		components = []string{
			metrics.ComponentKubernetes,
			metrics.ComponentPricing,
			metrics.ComponentScheduler,
		}
	}
	s := &Server{
		grpc: grpc.NewServer(
			grpc.ChainUnaryInterceptor(LoggingInterceptor(logger)),
		),
		health:     health.NewServer(),
		components: components,
		interval:   DefaultSyncInterval,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.SyncHealth()
	return s
}

// Start listens on addr and serves until Stop is called
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener
func (s *Server) Serve(lis net.Listener) error {
	go s.syncLoop()
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health service listening")
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops the server gracefully
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.health.Shutdown()
		s.grpc.GracefulStop()
	})
}

// SyncHealth copies component health from the metrics registry
func (s *Server) SyncHealth() {
	for _, name := range s.components {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if c, ok := metrics.Component(name); ok && c.Healthy() {
			st = healthpb.HealthCheckResponse_SERVING
		}
		s.health.SetServingStatus(ServicePrefix+name, st)
	}

	overall := healthpb.HealthCheckResponse_NOT_SERVING
	if metrics.GetReadiness().Status == metrics.StatusReady {
		overall = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", overall)
}

func (s *Server) syncLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SyncHealth()
		case <-s.stopCh:
			return
		}
	}
}

// Check answers a health check in process, mainly for the CLI and tests
func (s *Server) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
