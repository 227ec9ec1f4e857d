// Package health serves and probes capture readiness over the standard gRPC
// health protocol, for host supervisors and doctor checks.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthsvc "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the health service name reporting capture capability.
const Service = "micgrab.capture"

// Server wraps a gRPC server exposing the health endpoint of one owner
// process. The capture service reports NOT_SERVING on platforms without a
// working backend; the empty service name reports plain process liveness.
type Server struct {
	grpcServer *grpc.Server
	health     *healthsvc.Server
}

// NewServer builds the health server with capture capability pre-set.
func NewServer(supported bool) *Server {
	h := healthsvc.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if supported {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.SetServingStatus(Service, status)

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, h)

	return &Server{grpcServer: grpcServer, health: h}
}

// Serve accepts health clients until context cancellation or listener close.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		s.grpcServer.GracefulStop()
	}()

	if err := s.grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve health endpoint: %w", err)
	}
	return nil
}

// Probe dials addr and reports whether the capture service is SERVING.
func Probe(ctx context.Context, addr string, timeout time.Duration) (bool, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return false, fmt.Errorf("dial health endpoint %q: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn.Connect()
	if err := waitForReady(probeCtx, conn); err != nil {
		return false, fmt.Errorf("wait for health endpoint readiness: %w", err)
	}

	resp, err := healthpb.NewHealthClient(conn).Check(probeCtx, &healthpb.HealthCheckRequest{Service: Service})
	if err != nil {
		return false, fmt.Errorf("health check %q: %w", addr, err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// waitForReady blocks until the gRPC connection enters Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}
