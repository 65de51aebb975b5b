/*
Package server is the gRPC admin interface of the mediator. At the moment it
offers the standard gRPC health service, and the mediator's serving status
follows the lifecycle of the forward queue.
*/
package server

import (
	"fmt"
	"net"

	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// MediatorService is the health service name of the mediator.
const MediatorService = "findy.didcomm.Mediator"

type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

func New(opts ...grpc.ServerOption) *Server {
	s := &Server{
		grpc:   grpc.NewServer(opts...),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.health.SetServingStatus(MediatorService, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetServing sets the status of the mediator service.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	glog.V(1).Infoln("mediator health:", status)
	s.health.SetServingStatus(MediatorService, status)
}

// Serve blocks until the server is stopped.
func (s *Server) Serve(lis net.Listener) error {
	glog.V(1).Infoln("grpc health server listening:", lis.Addr())
	return s.grpc.Serve(lis)
}

// Start listens the port and serves in its own goroutine.
func (s *Server) Start(port int) (err error) {
	defer err2.Handle(&err, "grpc start")

	lis := try.To1(net.Listen("tcp", fmt.Sprintf(":%d", port)))
	go func() {
		defer err2.Catch(err2.Err(func(err error) {
			glog.Errorln("grpc serve:", err)
		}))
		try.To(s.Serve(lis))
	}()
	return nil
}

// Stop sets every service not serving and stops the server gracefully.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
