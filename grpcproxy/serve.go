package grpcproxy

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
)

// Serve starts a gRPC server bound to addr, registers impl under
// ServiceDesc, and begins serving in a background goroutine. Callers
// get back the *grpc.Server so they can GracefulStop it on shutdown,
// matching the teacher's own "construct, launch in goroutine, return
// handle" pattern for long-running servers.
func Serve(addr string, impl *Server) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpcproxy: listen on %s: %w", addr, err)
	}
	gs := grpc.NewServer()
	gs.RegisterService(&ServiceDesc, impl)
	go gs.Serve(lis)
	return gs, nil
}
