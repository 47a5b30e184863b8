package httpapi

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/obs"
)

// ServeGRPCHealth runs a standard gRPC health endpoint on addr so platform
// probes that speak gRPC can check the service. It blocks until ctx is done
// or the listener fails.
func ServeGRPCHealth(ctx context.Context, addr string, pinger Pinger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := grpc.NewServer()
	healthSrv := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, healthSrv)
	healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		srv.GracefulStop()
	}()

	if pinger != nil {
		if err := pinger.Ping(ctx); err != nil {
			healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		}
	}

	obs.Log("info", "grpc_health_listening", map[string]any{"addr": addr})
	return srv.Serve(lis)
}
