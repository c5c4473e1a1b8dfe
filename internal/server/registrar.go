package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Registrar is a common interface for all gRPC service registrars
type Registrar interface {
	Register(s *grpc.Server)
}

// RegistrarFunc adapts a plain function to Registrar.
type RegistrarFunc func(s *grpc.Server)

func (f RegistrarFunc) Register(s *grpc.Server) { f(s) }

// HealthRegistrar exposes the standard grpc.health.v1 service, reporting
// SERVING for the whole server.
func HealthRegistrar() Registrar {
	return RegistrarFunc(func(s *grpc.Server) {
		healthpb.RegisterHealthServer(s, health.NewServer())
	})
}
