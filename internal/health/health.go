// Package health serves the standard gRPC health protocol. The overall
// status follows the reader link: SERVING while a port is connected.
package health

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name reported for the reader link in addition to the
// overall ("") status.
const Service = "portunus.device"

const DefaultInterval = 5 * time.Second

// Prober reports whether the reader is reachable. serialport.Link
// satisfies it.
type Prober interface {
	Connected() bool
}

type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	prober   Prober
	interval time.Duration
	log      zerolog.Logger
}

func New(p Prober, interval time.Duration, logger zerolog.Logger) *Server {
	if interval <= 0 {
		interval = DefaultInterval
	}
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{
		grpc:     gs,
		health:   hs,
		prober:   p,
		interval: interval,
		log:      logger.With().Str("component", "health").Logger(),
	}
	s.Probe()
	return s
}

// Probe sets the status from the current link state.
func (s *Server) Probe() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.prober.Connected() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(Service, status)
	return status
}

// Watch re-probes on the interval until ctx is done.
func (s *Server) Watch(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	last := s.Probe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if now := s.Probe(); now != last {
				s.log.Info().Str("status", now.String()).Msg("device health changed")
				last = now
			}
		}
	}
}

// Serve blocks serving gRPC on lis.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Stop marks everything NOT_SERVING and drains in-flight RPCs.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
