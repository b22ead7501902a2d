// Package grpc runs the gRPC listener. It serves the standard health service
// and guards every other method with the bearer access token interceptors.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/wadai/internal/logging"
	"github.com/dmitrijs2005/wadai/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Verifier validates access tokens.
type Verifier interface {
	Verify(token string) (*auth.Claims, error)
}

type GRPCServer struct {
	address  string
	verifier Verifier
	health   *health.Server
	logger   logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, verifier Verifier) *GRPCServer {
	return &GRPCServer{
		address:  a,
		verifier: verifier,
		health:   health.NewServer(),
		logger:   l.With("module", "grpc_server"),
	}
}

// Run listens on the configured address until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.accessTokenStreamInterceptor),
	)

	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gPRC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
